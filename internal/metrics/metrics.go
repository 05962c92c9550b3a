// Package metrics holds the prometheus instruments for exports and imports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a set of instruments registered on one registerer. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ObjectsExported *prometheus.CounterVec
	ObjectsImported *prometheus.CounterVec
	ImportFailures  *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ObjectsExported: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haul_objects_exported_total",
			Help: "Objects serialized into export containers",
		}, []string{"kind"}),

		ObjectsImported: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haul_objects_imported_total",
			Help: "Imported records by kind and relink action",
		}, []string{"kind", "action"}),

		ImportFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haul_import_failures_total",
			Help: "Imports rolled back, by reason",
		}, []string{"reason"}),

		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "haul_operation_duration_seconds",
			Help:    "Time spent in export and import calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) Exported(kind string) {
	if m == nil {
		return
	}
	m.ObjectsExported.WithLabelValues(kind).Inc()
}

func (m *Metrics) Imported(kind, action string) {
	if m == nil {
		return
	}
	m.ObjectsImported.WithLabelValues(kind, action).Inc()
}

func (m *Metrics) Failed(reason string) {
	if m == nil {
		return
	}
	m.ImportFailures.WithLabelValues(reason).Inc()
}

// Observe records the duration of operation since start.
func (m *Metrics) Observe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
