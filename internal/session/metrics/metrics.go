package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session bindings.
type Metrics struct {
	Bindings        *prometheus.CounterVec
	SharedBindCalls prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bindings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genlive_session_bindings_total",
			Help: "Session binds by outcome (created, reused)",
		}, []string{"outcome"}),
		SharedBindCalls: f.NewCounter(prometheus.CounterOpts{
			Name: "genlive_session_bind_shared_total",
			Help: "Bind calls that joined a bind already in flight",
		}),
	}
}

func (m *Metrics) IncrementBinding(outcome string) {
	if m == nil {
		return
	}
	m.Bindings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementShared() {
	if m == nil {
		return
	}
	m.SharedBindCalls.Inc()
}
