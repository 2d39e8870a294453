// Package throttle provides scope resolution and throttle presets.
package throttle

import (
	"fmt"
	"time"
)

// Algorithm selects the admission algorithm for a scope.
type Algorithm int

const (
	// AlgorithmSlidingWindow counts timestamps in a moving window.
	AlgorithmSlidingWindow Algorithm = iota
	// AlgorithmTokenBucket allows bursts up to capacity with continuous refill.
	AlgorithmTokenBucket
)

// ScopeRule is a parsed per-scope limit definition. Variants are data, not
// code: the same two algorithms serve every scope.
type ScopeRule struct {
	Rate      Rate
	Burst     Rate
	Algorithm Algorithm
	KeyMode   KeyMode
	Policy    FailurePolicy
}

// ScopeTable resolves endpoint-declared scope names to throttles, falling
// back to a default scope for unknown names. Built once at startup and
// immutable afterwards.
type ScopeTable struct {
	defaultScope string
	throttles    map[string]Throttle
}

// NewScopeTable builds throttles for every rule. The default scope must be
// present in rules.
func NewScopeTable(store Store, defaultScope string, rules map[string]ScopeRule, opts Options) (*ScopeTable, error) {
	if _, ok := rules[defaultScope]; !ok {
		return nil, fmt.Errorf("default scope %q has no rule", defaultScope)
	}
	throttles := make(map[string]Throttle, len(rules))
	for scope, rule := range rules {
		throttles[scope] = buildThrottle(store, scope, rule, opts)
	}
	return &ScopeTable{defaultScope: defaultScope, throttles: throttles}, nil
}

// Resolve returns the throttle for scope, or the default scope's throttle
// when the name is unknown.
func (t *ScopeTable) Resolve(scope string) Throttle {
	if throttle, ok := t.throttles[scope]; ok {
		return throttle
	}
	return t.throttles[t.defaultScope]
}

// Scopes lists the configured scope names.
func (t *ScopeTable) Scopes() []string {
	scopes := make([]string, 0, len(t.throttles))
	for scope := range t.throttles {
		scopes = append(scopes, scope)
	}
	return scopes
}

func buildThrottle(store Store, scope string, rule ScopeRule, opts Options) Throttle {
	if rule.Algorithm == AlgorithmTokenBucket {
		return NewTokenBucket(store, BucketConfig{
			Scope:     scope,
			Burst:     rule.Burst,
			Sustained: rule.Rate,
			KeyMode:   rule.KeyMode,
			Policy:    rule.Policy,
		}, opts)
	}
	return NewSlidingWindow(store, WindowConfig{
		Scope:   scope,
		Rate:    rule.Rate,
		KeyMode: rule.KeyMode,
		Policy:  rule.Policy,
	}, opts)
}

// AuthScope is the scope name used by the authentication preset.
const AuthScope = "authentication"

// defaultAuthRate is deliberately strict: authentication endpoints are keyed
// by IP before identity is known, defending against credential stuffing.
var defaultAuthRate = Rate{Count: 10, Window: time.Hour}

// NewAuthThrottle builds the authentication throttle: always keyed by IP,
// fail-closed. A zero rate selects the strict default.
func NewAuthThrottle(store Store, rate Rate, opts Options) *SlidingWindow {
	if rate.Count <= 0 {
		rate = defaultAuthRate
	}
	return NewSlidingWindow(store, WindowConfig{
		Scope:   AuthScope,
		Rate:    rate,
		KeyMode: KeyByIP,
		Policy:  FailClosed,
	}, opts)
}

// NewTenantThrottle builds a tenant-wide throttle. Identities without a
// tenant id always admit, so multi-tenant limiting stays opt-in.
func NewTenantThrottle(store Store, scope string, rate Rate, opts Options) *SlidingWindow {
	return NewSlidingWindow(store, WindowConfig{
		Scope:   scope,
		Rate:    rate,
		KeyMode: KeyByTenant,
		Policy:  FailOpen,
	}, opts)
}

// NewBurstThrottle builds a burst-tolerant token bucket throttle.
func NewBurstThrottle(store Store, scope string, burst, sustained Rate, opts Options) *TokenBucket {
	return NewTokenBucket(store, BucketConfig{
		Scope:     scope,
		Burst:     burst,
		Sustained: sustained,
		KeyMode:   KeyByIdentity,
		Policy:    FailOpen,
	}, opts)
}
