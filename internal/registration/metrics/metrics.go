package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registration visits.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	VerifyOutcomes     *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	StepDuration       *prometheus.HistogramVec
	DroppedInputs      prometheus.Counter
	ActiveVisits       prometheus.Gauge
	ExpiredVisits      prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genlive_flow_transitions_total",
			Help: "Registration flow transitions by source state, target state and event",
		}, []string{"from", "to", "event"}),
		VerifyOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genlive_flow_verify_outcomes_total",
			Help: "Identifier verifications by outcome",
		}, []string{"outcome"}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genlive_flow_validation_failures_total",
			Help: "Rejected verify or submit attempts by step",
		}, []string{"step"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genlive_flow_step_duration_seconds",
			Help:    "Duration of verify, continue and submit steps including backend calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"step"}),
		DroppedInputs: f.NewCounter(prometheus.CounterOpts{
			Name: "genlive_flow_dropped_inputs_total",
			Help: "User inputs dropped because the field is unknown or auto-calculated",
		}),
		ActiveVisits: f.NewGauge(prometheus.GaugeOpts{
			Name: "genlive_flow_active_visits",
			Help: "Visits currently held in memory",
		}),
		ExpiredVisits: f.NewCounter(prometheus.CounterOpts{
			Name: "genlive_flow_expired_visits_total",
			Help: "Visits removed after sitting idle",
		}),
	}
}

func (m *Metrics) IncrementTransition(from, to, event string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to, event).Inc()
}

func (m *Metrics) IncrementVerifyOutcome(outcome string) {
	if m == nil {
		return
	}
	m.VerifyOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementValidationFailure(step string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) ObserveStep(step string, start time.Time) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddDroppedInputs(n int) {
	if m == nil || n == 0 {
		return
	}
	m.DroppedInputs.Add(float64(n))
}

func (m *Metrics) SetActiveVisits(n int) {
	if m == nil {
		return
	}
	m.ActiveVisits.Set(float64(n))
}

func (m *Metrics) IncrementExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ExpiredVisits.Add(float64(n))
}
