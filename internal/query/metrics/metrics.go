package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the query engine.
type Metrics struct {
	Latency      *prometheus.HistogramVec
	RowsReturned *prometheus.CounterVec
	Exports      *prometheus.CounterVec
	Rejected     *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "explorer_query_duration_seconds",
			Help:    "Query engine latency by table and operation",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"table", "operation"}), // operation: execute, export
		RowsReturned: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "explorer_query_rows_returned_total",
			Help: "Rows returned by the query engine",
		}, []string{"table", "operation"}),
		Exports: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "explorer_query_exports_total",
			Help: "Exports by format and outcome",
		}, []string{"format", "outcome"}), // outcome: ok, too_large, error
		Rejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "explorer_query_rejected_total",
			Help: "Queries rejected before reaching the store, by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) ObserveQuery(table, operation string, d time.Duration, rows int) {
	if m == nil {
		return
	}
	m.Latency.WithLabelValues(table, operation).Observe(d.Seconds())
	m.RowsReturned.WithLabelValues(table, operation).Add(float64(rows))
}

func (m *Metrics) IncrementExport(format, outcome string) {
	if m != nil {
		m.Exports.WithLabelValues(format, outcome).Inc()
	}
}

func (m *Metrics) IncrementRejected(code string) {
	if m != nil {
		m.Rejected.WithLabelValues(code).Inc()
	}
}
