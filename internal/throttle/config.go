// Package throttle provides configuration loading.
package throttle

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ScopeConfig is the on-disk form of a scope rule.
type ScopeConfig struct {
	Rate          string `yaml:"rate"`
	Burst         string `yaml:"burst,omitempty"`
	Algorithm     string `yaml:"algorithm,omitempty"`
	Key           string `yaml:"key,omitempty"`
	FailurePolicy string `yaml:"failure_policy,omitempty"`
}

// MeterSettings is the on-disk form of the usage meter configuration.
type MeterSettings struct {
	Scope  string `yaml:"scope"`
	Cap    int64  `yaml:"cap"`
	Period string `yaml:"period,omitempty"`
}

// Config is the process configuration. Loaded once at startup and treated
// as immutable for the process lifetime.
type Config struct {
	ListenAddr   string                 `yaml:"listen_addr"`
	StoreKind    string                 `yaml:"store"`
	RedisAddr    string                 `yaml:"redis_addr"`
	LogLevel     string                 `yaml:"log_level"`
	DefaultScope string                 `yaml:"default_scope"`
	Scopes       map[string]ScopeConfig `yaml:"scopes"`
	Meter        *MeterSettings         `yaml:"meter,omitempty"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   ":8080",
		StoreKind:    "memory",
		RedisAddr:    "localhost:6379",
		LogLevel:     "info",
		DefaultScope: "default",
		Scopes: map[string]ScopeConfig{
			"default": {Rate: "1000/hour"},
			AuthScope: {Rate: "10/hour", Key: "ip", FailurePolicy: "closed"},
		},
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file, and
// environment overrides, then validates every rate expression. A bad rate
// spec is fatal here so limiting is never silently disabled.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	if _, err := cfg.Rules(); err != nil {
		return nil, err
	}
	if _, err := cfg.MeterConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THROTTLE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("THROTTLE_STORE"); v != "" {
		cfg.StoreKind = v
	}
	if v := os.Getenv("THROTTLE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("THROTTLE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Rules parses the scope table into validated rules.
func (c *Config) Rules() (map[string]ScopeRule, error) {
	rules := make(map[string]ScopeRule, len(c.Scopes))
	for scope, sc := range c.Scopes {
		rule, err := sc.parse()
		if err != nil {
			return nil, fmt.Errorf("scope %q: %w", scope, err)
		}
		rules[scope] = rule
	}
	if _, ok := rules[c.DefaultScope]; !ok {
		return nil, fmt.Errorf("default scope %q has no rule", c.DefaultScope)
	}
	return rules, nil
}

func (sc ScopeConfig) parse() (ScopeRule, error) {
	rule := ScopeRule{}
	rate, err := ParseRate(sc.Rate)
	if err != nil {
		return rule, err
	}
	rule.Rate = rate

	switch sc.Algorithm {
	case "", "sliding_window":
		rule.Algorithm = AlgorithmSlidingWindow
	case "token_bucket":
		rule.Algorithm = AlgorithmTokenBucket
		if sc.Burst == "" {
			return rule, fmt.Errorf("token_bucket requires a burst rate")
		}
	default:
		return rule, fmt.Errorf("unknown algorithm %q", sc.Algorithm)
	}
	if sc.Burst != "" {
		burst, err := ParseRate(sc.Burst)
		if err != nil {
			return rule, err
		}
		rule.Burst = burst
	}

	switch sc.Key {
	case "", "identity":
		rule.KeyMode = KeyByIdentity
	case "ip":
		rule.KeyMode = KeyByIP
	case "tenant":
		rule.KeyMode = KeyByTenant
	default:
		return rule, fmt.Errorf("unknown key mode %q", sc.Key)
	}

	switch sc.FailurePolicy {
	case "", "open":
		rule.Policy = FailOpen
	case "closed":
		rule.Policy = FailClosed
	default:
		return rule, fmt.Errorf("unknown failure policy %q", sc.FailurePolicy)
	}
	return rule, nil
}

// MeterConfig parses the optional usage meter settings. It returns a zero
// MeterConfig when no meter is configured; check HasMeter first.
func (c *Config) MeterConfig() (MeterConfig, error) {
	if c.Meter == nil {
		return MeterConfig{}, nil
	}
	if c.Meter.Cap <= 0 {
		return MeterConfig{}, fmt.Errorf("meter cap must be positive")
	}
	period := time.Hour
	if c.Meter.Period != "" {
		parsed, err := time.ParseDuration(c.Meter.Period)
		if err != nil {
			return MeterConfig{}, fmt.Errorf("meter period: %w", err)
		}
		period = parsed
	}
	scope := c.Meter.Scope
	if scope == "" {
		scope = "usage"
	}
	return MeterConfig{
		Scope:   scope,
		Cap:     c.Meter.Cap,
		Period:  period,
		KeyMode: KeyByIdentity,
		Policy:  FailOpen,
	}, nil
}

// HasMeter reports whether a usage meter is configured.
func (c *Config) HasMeter() bool {
	return c.Meter != nil
}
