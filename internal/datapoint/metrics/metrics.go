package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for data point writes.
type Metrics struct {
	Writes    *prometheus.CounterVec
	Contested prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Writes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "explorer_data_point_writes_total",
			Help: "Data point writes by operation and outcome",
		}, []string{"operation", "outcome"}),
		Contested: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "explorer_data_point_contested_writes_total",
			Help: "Data point writes that carried divergent figures",
		}),
	}
}

func (m *Metrics) IncrementWrite(operation, outcome string) {
	if m != nil {
		m.Writes.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Metrics) IncrementContested() {
	if m != nil {
		m.Contested.Inc()
	}
}
