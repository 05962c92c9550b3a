// Package container holds the export and import containers: the traversal
// that collects an object graph into records and the two-phase engine that
// writes records back into a database.
package container

import (
	"github.com/sirupsen/logrus"

	"github.com/ALT-F4-LLC/haul/internal/logging"
	"github.com/ALT-F4-LLC/haul/internal/metrics"
	"github.com/ALT-F4-LLC/haul/internal/policy"
)

type settings struct {
	exportPolicy  policy.ExportPolicy
	importPolicy  policy.ImportPolicy
	log           *logrus.Logger
	metrics       *metrics.Metrics
	snapshot      bool
	depOrder      bool
	ignoreUnknown bool
}

func newSettings(opts []Option) settings {
	s := settings{
		exportPolicy: policy.DefaultExport{},
		importPolicy: policy.DefaultImport{},
		log:          logging.Discard(),
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Option configures an Export or an Import. Options that only apply to one
// of them are ignored by the other.
type Option func(*settings)

// WithExportPolicy sets the policy that filters and decorates exported objects.
func WithExportPolicy(p policy.ExportPolicy) Option {
	return func(s *settings) {
		if p != nil {
			s.exportPolicy = p
		}
	}
}

// WithImportPolicy sets the policy that relinks imported records.
func WithImportPolicy(p policy.ImportPolicy) Option {
	return func(s *settings) {
		if p != nil {
			s.importPolicy = p
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logrus.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records counters and durations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithSnapshot makes ExportObjects read through one consistent read
// transaction when the querier supports it.
func WithSnapshot(on bool) Option {
	return func(s *settings) { s.snapshot = on }
}

// WithDependencyOrder makes Write emit referenced records before the records
// pointing at them. Records in a reference cycle keep visitation order.
func WithDependencyOrder() Option {
	return func(s *settings) { s.depOrder = true }
}

// IgnoreUnknown makes Import accept containers holding kinds that have no
// exporter. Such records are discarded.
func IgnoreUnknown() Option {
	return func(s *settings) { s.ignoreUnknown = true }
}
