package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks contradiction churn.
type Metrics struct {
	Upserts  *prometheus.CounterVec
	Resolved prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Upserts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "explorer_contradictions_upserted_total",
			Help: "Open contradictions created or superseded, by severity and action",
		}, []string{"severity", "action"}), // action: created, superseded
		Resolved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "explorer_contradictions_resolved_total",
			Help: "Contradictions closed because the figures converged",
		}),
	}
}

func (m *Metrics) IncrementUpsert(severity, action string) {
	if m != nil {
		m.Upserts.WithLabelValues(severity, action).Inc()
	}
}

func (m *Metrics) IncrementResolved() {
	if m != nil {
		m.Resolved.Inc()
	}
}
