package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the source registry.
type Metrics struct {
	Writes *prometheus.CounterVec
}

// New registers the source metrics with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the source metrics on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Writes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "explorer_source_writes_total",
			Help: "Source registry writes by operation and outcome",
		}, []string{"operation", "outcome"}), // outcome: ok, rejected, error
	}
}

// IncrementWrite records one write attempt.
func (m *Metrics) IncrementWrite(operation, outcome string) {
	if m != nil {
		m.Writes.WithLabelValues(operation, outcome).Inc()
	}
}
