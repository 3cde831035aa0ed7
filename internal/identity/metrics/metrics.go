package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks calls to the registration backend and the identifier
// matches it returns.
type Metrics struct {
	BackendRequests *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	MatchOutcomes   *prometheus.CounterVec
	BreakerOpen     prometheus.Gauge
}

// New registers the identity metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers with reg. A nil reg leaves the collectors unregistered,
// which tests use to build several instances.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BackendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genlive_backend_requests_total",
			Help: "Registration backend calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		BackendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genlive_backend_request_duration_seconds",
			Help:    "Latency of registration backend calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		MatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genlive_identity_match_outcomes_total",
			Help: "Identifier match results by kind",
		}, []string{"kind"}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "genlive_backend_circuit_open",
			Help: "1 while the registration backend circuit breaker is open",
		}),
	}
}

// ObserveBackendCall records one backend call. Call with time.Now() at the
// start of the call.
func (m *Metrics) ObserveBackendCall(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.BackendRequests.WithLabelValues(operation, outcome).Inc()
	m.BackendDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementMatchOutcome(kind string) {
	if m == nil {
		return
	}
	m.MatchOutcomes.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
