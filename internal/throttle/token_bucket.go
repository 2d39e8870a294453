// Package throttle provides the token bucket throttle.
package throttle

import (
	"context"
	"encoding/json"
	"math"
	"time"
)

// BucketConfig parameterizes a token bucket throttle. Burst sizes the
// capacity; Sustained sets the long-run refill rate and the state TTL.
type BucketConfig struct {
	Scope     string
	Burst     Rate
	Sustained Rate
	KeyMode   KeyMode
	Policy    FailurePolicy
}

type bucketState struct {
	Tokens float64 `json:"tokens"`
	LastMs int64   `json:"last"`
}

// TokenBucket refills continuously at the sustained rate and spends one
// token per admitted request. Continuous refill avoids thundering-herd
// re-admission at tick boundaries.
type TokenBucket struct {
	store Store
	cfg   BucketConfig
	opts  Options
}

// NewTokenBucket constructs a token bucket throttle.
func NewTokenBucket(store Store, cfg BucketConfig, opts Options) *TokenBucket {
	return &TokenBucket{store: store, cfg: cfg, opts: opts.withDefaults()}
}

// Scope reports the throttle's scope name.
func (t *TokenBucket) Scope() string {
	return t.cfg.Scope
}

// Allow evaluates one request. A rejection still persists the refilled
// state so later checks see correct refill progress.
func (t *TokenBucket) Allow(ctx context.Context, id Identity) (*Decision, error) {
	start := t.opts.Now()
	defer t.observeDuration(start)

	key, err := DeriveKey(t.cfg.Scope, id, t.cfg.KeyMode)
	if err != nil {
		return t.skipDecision(start), nil
	}

	data, err := t.store.Get(ctx, key)
	if err != nil {
		return t.storeFailure("get", err, start)
	}

	capacity := float64(t.cfg.Burst.Count)
	refillPerSec := t.cfg.Sustained.PerSecond()
	nowMs := start.UnixMilli()

	state := bucketState{Tokens: capacity, LastMs: nowMs}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &state); err != nil {
			t.opts.Logger.Warn().Err(err).Msg("discarding corrupt bucket state")
			state = bucketState{Tokens: capacity, LastMs: nowMs}
		}
	}

	elapsed := float64(nowMs-state.LastMs) / 1000
	if elapsed > 0 {
		state.Tokens = math.Min(capacity, state.Tokens+elapsed*refillPerSec)
	}
	state.LastMs = nowMs

	allowed := state.Tokens >= 1
	var retry time.Duration
	if allowed {
		state.Tokens--
	} else if refillPerSec > 0 {
		retry = time.Duration((1 - state.Tokens) / refillPerSec * float64(time.Second))
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		return t.storeFailure("encode", err, start)
	}
	if err := t.store.Set(ctx, key, encoded, t.cfg.Sustained.Window); err != nil {
		return t.storeFailure("set", err, start)
	}

	var reset time.Time
	if refillPerSec > 0 {
		reset = start.Add(time.Duration((capacity - state.Tokens) / refillPerSec * float64(time.Second)))
	} else {
		reset = start
	}
	decision := &Decision{
		Allowed:    allowed,
		Scope:      t.cfg.Scope,
		Limit:      t.cfg.Burst.Count,
		Remaining:  int64(math.Floor(state.Tokens)),
		Reset:      reset,
		RetryAfter: retry,
	}
	t.opts.Metrics.observeDecision(t.cfg.Scope, decision)
	return decision, nil
}

func (t *TokenBucket) skipDecision(now time.Time) *Decision {
	return &Decision{
		Allowed:   true,
		Scope:     t.cfg.Scope,
		Limit:     t.cfg.Burst.Count,
		Remaining: t.cfg.Burst.Count,
		Reset:     now,
	}
}

func (t *TokenBucket) storeFailure(op string, err error, now time.Time) (*Decision, error) {
	return storeFailure(t.cfg.Scope, t.cfg.Policy, t.cfg.Burst, op, err, now, t.opts)
}

func (t *TokenBucket) observeDuration(start time.Time) {
	if t.opts.Metrics == nil {
		return
	}
	t.opts.Metrics.EvalDuration.WithLabelValues(t.cfg.Scope).Observe(t.opts.Now().Sub(start).Seconds())
}
