// Package throttle provides the sliding window throttle.
package throttle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Options carries cross-cutting dependencies shared by all throttles. The
// zero value is usable: real clock, no-op logger, no metrics.
type Options struct {
	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *Metrics
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// WindowConfig parameterizes a sliding window throttle.
type WindowConfig struct {
	Scope   string
	Rate    Rate
	KeyMode KeyMode
	Policy  FailurePolicy
}

// SlidingWindow keeps a per-key list of request timestamps and admits while
// fewer than Rate.Count fall inside the moving window. Exact sliding
// semantics: no boundary burst doubling, at the cost of O(count) storage.
type SlidingWindow struct {
	store Store
	cfg   WindowConfig
	opts  Options
}

// NewSlidingWindow constructs a sliding window throttle.
func NewSlidingWindow(store Store, cfg WindowConfig, opts Options) *SlidingWindow {
	return &SlidingWindow{store: store, cfg: cfg, opts: opts.withDefaults()}
}

// Scope reports the throttle's scope name.
func (t *SlidingWindow) Scope() string {
	return t.cfg.Scope
}

// Allow evaluates one request. Rejections never mutate stored state, so
// hammering an exhausted key cannot extend the penalty.
func (t *SlidingWindow) Allow(ctx context.Context, id Identity) (*Decision, error) {
	start := t.opts.Now()
	defer t.observeDuration(start)

	key, err := DeriveKey(t.cfg.Scope, id, t.cfg.KeyMode)
	if err != nil {
		// No usable key axis: tenant-keyed throttles are opt-in and skip.
		return t.skipDecision(start), nil
	}

	data, err := t.store.Get(ctx, key)
	if err != nil {
		return t.storeFailure("get", err, start)
	}
	stamps := decodeStamps(data, t.opts.Logger)

	nowMs := start.UnixMilli()
	windowMs := t.cfg.Rate.Window.Milliseconds()
	cutoff := nowMs - windowMs
	for len(stamps) > 0 && stamps[len(stamps)-1] <= cutoff {
		stamps = stamps[:len(stamps)-1]
	}

	if int64(len(stamps)) >= t.cfg.Rate.Count {
		oldest := stamps[len(stamps)-1]
		retry := time.Duration(windowMs-(nowMs-oldest)) * time.Millisecond
		if retry < 0 {
			retry = 0
		}
		decision := &Decision{
			Allowed:    false,
			Scope:      t.cfg.Scope,
			Limit:      t.cfg.Rate.Count,
			Remaining:  0,
			Reset:      start.Add(retry),
			RetryAfter: retry,
		}
		t.opts.Metrics.observeDecision(t.cfg.Scope, decision)
		return decision, nil
	}

	stamps = append(stamps, 0)
	copy(stamps[1:], stamps)
	stamps[0] = nowMs
	encoded, err := json.Marshal(stamps)
	if err != nil {
		return t.storeFailure("encode", err, start)
	}
	if err := t.store.Set(ctx, key, encoded, t.cfg.Rate.Window); err != nil {
		return t.storeFailure("set", err, start)
	}

	decision := &Decision{
		Allowed:   true,
		Scope:     t.cfg.Scope,
		Limit:     t.cfg.Rate.Count,
		Remaining: t.cfg.Rate.Count - int64(len(stamps)),
		Reset:     start.Add(t.cfg.Rate.Window),
	}
	t.opts.Metrics.observeDecision(t.cfg.Scope, decision)
	return decision, nil
}

func (t *SlidingWindow) skipDecision(now time.Time) *Decision {
	return &Decision{
		Allowed:   true,
		Scope:     t.cfg.Scope,
		Limit:     t.cfg.Rate.Count,
		Remaining: t.cfg.Rate.Count,
		Reset:     now,
	}
}

func (t *SlidingWindow) storeFailure(op string, err error, now time.Time) (*Decision, error) {
	return storeFailure(t.cfg.Scope, t.cfg.Policy, t.cfg.Rate, op, err, now, t.opts)
}

func (t *SlidingWindow) observeDuration(start time.Time) {
	if t.opts.Metrics == nil {
		return
	}
	t.opts.Metrics.EvalDuration.WithLabelValues(t.cfg.Scope).Observe(t.opts.Now().Sub(start).Seconds())
}

// decodeStamps tolerates corrupt state by starting a fresh window; losing a
// partial window is safer than rejecting every request behind a bad key.
func decodeStamps(data []byte, logger zerolog.Logger) []int64 {
	if len(data) == 0 {
		return nil
	}
	var stamps []int64
	if err := json.Unmarshal(data, &stamps); err != nil {
		logger.Warn().Err(err).Msg("discarding corrupt window state")
		return nil
	}
	return stamps
}

// storeFailure applies the scope's fail-open or fail-closed policy to a
// counter store outage.
func storeFailure(scope string, policy FailurePolicy, rate Rate, op string, err error, now time.Time, opts Options) (*Decision, error) {
	opts.Metrics.observeStoreError(op)
	if policy == FailClosed {
		opts.Metrics.observeDegraded(scope, false)
		opts.Logger.Error().Err(err).Str("scope", scope).Str("op", op).Msg("counter store unavailable, failing closed")
		return nil, &StoreUnavailableError{Scope: scope, Err: err}
	}
	opts.Metrics.observeDegraded(scope, true)
	opts.Logger.Warn().Err(err).Str("scope", scope).Str("op", op).Msg("counter store unavailable, admitting")
	return &Decision{
		Allowed:   true,
		Scope:     scope,
		Limit:     rate.Count,
		Remaining: rate.Count,
		Reset:     now.Add(rate.Window),
	}, nil
}
