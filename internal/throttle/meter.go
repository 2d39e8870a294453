// Package throttle provides the secondary resource usage meter.
package throttle

import (
	"context"
	"strconv"
	"time"
)

// MeterConfig parameterizes a usage meter: Cap units per Period, keyed per
// identity. Period defaults to one hour.
type MeterConfig struct {
	Scope   string
	Cap     int64
	Period  time.Duration
	KeyMode KeyMode
	Policy  FailurePolicy
}

// UsageMeter gates admission on cumulative resource cost (tokens consumed,
// bytes uploaded) rather than request count. Usage is recorded post-hoc,
// after the real cost is known, so admission reflects previously recorded
// usage only.
type UsageMeter struct {
	store Store
	cfg   MeterConfig
	opts  Options
}

// NewUsageMeter constructs a usage meter.
func NewUsageMeter(store Store, cfg MeterConfig, opts Options) *UsageMeter {
	if cfg.Period <= 0 {
		cfg.Period = time.Hour
	}
	return &UsageMeter{store: store, cfg: cfg, opts: opts.withDefaults()}
}

// Scope reports the meter's scope name.
func (m *UsageMeter) Scope() string {
	return m.cfg.Scope
}

// Record accumulates used units against the identity's rolling counter.
func (m *UsageMeter) Record(ctx context.Context, id Identity, used int64) error {
	if used <= 0 {
		return nil
	}
	key, err := DeriveKey(m.cfg.Scope, id, m.cfg.KeyMode)
	if err != nil {
		return nil
	}
	if _, err := m.store.IncrBy(ctx, key, used, m.cfg.Period); err != nil {
		m.opts.Metrics.observeStoreError("incrby")
		m.opts.Logger.Warn().Err(err).Str("scope", m.cfg.Scope).Msg("failed to record usage")
		return err
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.MeterRecorded.WithLabelValues(m.cfg.Scope).Add(float64(used))
	}
	return nil
}

// Check gates admission on recorded usage. It rejects with a
// SecondaryLimitError once usage has reached the cap; the request-count
// throttle's own state plays no part.
func (m *UsageMeter) Check(ctx context.Context, id Identity) (*Decision, error) {
	now := m.opts.Now()
	key, err := DeriveKey(m.cfg.Scope, id, m.cfg.KeyMode)
	if err != nil {
		return m.skipDecision(now), nil
	}
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return storeFailure(m.cfg.Scope, m.cfg.Policy, Rate{Count: m.cfg.Cap, Window: m.cfg.Period}, "get", err, now, m.opts)
	}
	var used int64
	if len(data) > 0 {
		parsed, parseErr := strconv.ParseInt(string(data), 10, 64)
		if parseErr == nil {
			used = parsed
		}
	}
	remaining := m.cfg.Cap - used
	if remaining < 0 {
		remaining = 0
	}
	decision := &Decision{
		Allowed:   used < m.cfg.Cap,
		Scope:     m.cfg.Scope,
		Limit:     m.cfg.Cap,
		Remaining: remaining,
		Reset:     now.Add(m.cfg.Period),
	}
	if !decision.Allowed {
		decision.RetryAfter = m.cfg.Period
		m.opts.Metrics.observeDecision(m.cfg.Scope, decision)
		return decision, &SecondaryLimitError{
			Scope:    m.cfg.Scope,
			Used:     used,
			Cap:      m.cfg.Cap,
			Decision: decision,
		}
	}
	m.opts.Metrics.observeDecision(m.cfg.Scope, decision)
	return decision, nil
}

// skipDecision admits an identity the key mode cannot resolve.
func (m *UsageMeter) skipDecision(now time.Time) *Decision {
	return &Decision{
		Allowed:   true,
		Scope:     m.cfg.Scope,
		Limit:     m.cfg.Cap,
		Remaining: m.cfg.Cap,
		Reset:     now,
	}
}
