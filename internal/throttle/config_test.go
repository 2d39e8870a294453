package throttle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "throttle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "memory", cfg.StoreKind)
	assert.Equal(t, "default", cfg.DefaultScope)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rules["default"].Rate.Count)
	assert.Equal(t, KeyByIP, rules[AuthScope].KeyMode)
	assert.Equal(t, FailClosed, rules[AuthScope].Policy)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfigFile(t, `
listen_addr: ":9999"
store: redis
redis_addr: "redis:6379"
default_scope: api
scopes:
  api:
    rate: 500/hour
  export:
    rate: 100/hour
    burst: 10/second
    algorithm: token_bucket
  tenant-wide:
    rate: 10000/day
    key: tenant
meter:
  scope: ai-tokens
  cap: 50000
  period: 30m
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "redis", cfg.StoreKind)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, AlgorithmTokenBucket, rules["export"].Algorithm)
	assert.Equal(t, int64(10), rules["export"].Burst.Count)
	assert.Equal(t, KeyByTenant, rules["tenant-wide"].KeyMode)
	assert.Equal(t, 24*time.Hour, rules["tenant-wide"].Rate.Window)

	require.True(t, cfg.HasMeter())
	meterCfg, err := cfg.MeterConfig()
	require.NoError(t, err)
	assert.Equal(t, "ai-tokens", meterCfg.Scope)
	assert.Equal(t, int64(50000), meterCfg.Cap)
	assert.Equal(t, 30*time.Minute, meterCfg.Period)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("THROTTLE_LISTEN_ADDR", ":7777")
	t.Setenv("THROTTLE_STORE", "redis")
	t.Setenv("THROTTLE_REDIS_ADDR", "cache:6379")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, "redis", cfg.StoreKind)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
}

func TestLoadConfig_InvalidRateIsFatal(t *testing.T) {
	path := writeConfigFile(t, `
scopes:
  default:
    rate: lots/hour
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRateSpec)
}

func TestLoadConfig_TokenBucketRequiresBurst(t *testing.T) {
	path := writeConfigFile(t, `
scopes:
  default:
    rate: 100/hour
    algorithm: token_bucket
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "burst")
}

func TestLoadConfig_UnknownKeyModeRejected(t *testing.T) {
	path := writeConfigFile(t, `
scopes:
  default:
    rate: 100/hour
    key: fingerprint
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_MissingDefaultScopeRule(t *testing.T) {
	path := writeConfigFile(t, `
default_scope: api
scopes:
  search:
    rate: 100/hour
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default scope")
}
