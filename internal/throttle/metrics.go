// Package throttle provides Prometheus metrics for the engine.
package throttle

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. Decision outcomes and
// store errors are labeled so throttled traffic and degraded-store traffic
// never blur together.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	StoreErrors   *prometheus.CounterVec
	EvalDuration  *prometheus.HistogramVec
	MeterRecorded *prometheus.CounterVec
}

// NewMetrics constructs and registers the engine collectors. A nil reg
// leaves the collectors unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttle_decisions_total",
				Help: "Admission decisions by scope and outcome",
			},
			[]string{"scope", "outcome"},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttle_store_errors_total",
				Help: "Counter store failures by operation",
			},
			[]string{"op"},
		),
		EvalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "throttle_eval_duration_seconds",
				Help:    "Duration of a single throttle evaluation",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"scope"},
		),
		MeterRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttle_meter_recorded_total",
				Help: "Units of secondary resource usage recorded by scope",
			},
			[]string{"scope"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Decisions, m.StoreErrors, m.EvalDuration, m.MeterRecorded)
	}
	return m
}

func (m *Metrics) observeDecision(scope string, d *Decision) {
	if m == nil || d == nil {
		return
	}
	outcome := "denied"
	if d.Allowed {
		outcome = "allowed"
	}
	m.Decisions.WithLabelValues(scope, outcome).Inc()
}

func (m *Metrics) observeStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) observeDegraded(scope string, admitted bool) {
	if m == nil {
		return
	}
	outcome := "degraded_denied"
	if admitted {
		outcome = "degraded_allowed"
	}
	m.Decisions.WithLabelValues(scope, outcome).Inc()
}
