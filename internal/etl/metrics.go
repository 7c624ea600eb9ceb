package etl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the export counters. A nil *Metrics records nothing.
type Metrics struct {
	rowsEncoded    *prometheus.CounterVec
	rowsSkipped    *prometheus.CounterVec
	exports        *prometheus.CounterVec
	exportDuration *prometheus.HistogramVec
}

// NewMetrics creates the export metrics and registers them with reg.
// If reg is nil, a fresh registry is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		rowsEncoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tablexport",
			Name:      "rows_encoded_total",
			Help:      "Rows encoded and written to CSV shards.",
		}, []string{"table"}),
		rowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tablexport",
			Name:      "rows_skipped_total",
			Help:      "Rows dropped because a value could not be encoded.",
		}, []string{"table"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tablexport",
			Name:      "exports_total",
			Help:      "Finished export runs by status.",
		}, []string{"table", "status"}),
		exportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tablexport",
			Name:      "export_duration_seconds",
			Help:      "Wall time of export runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"table"}),
	}
	reg.MustRegister(m.rowsEncoded, m.rowsSkipped, m.exports, m.exportDuration)
	return m
}

func (m *Metrics) rowEncoded(table string) {
	if m == nil {
		return
	}
	m.rowsEncoded.WithLabelValues(table).Inc()
}

func (m *Metrics) rowSkipped(table string) {
	if m == nil {
		return
	}
	m.rowsSkipped.WithLabelValues(table).Inc()
}

func (m *Metrics) exportFinished(table, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(table, status).Inc()
	m.exportDuration.WithLabelValues(table).Observe(d.Seconds())
}
