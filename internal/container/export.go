package container

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ALT-F4-LLC/haul/internal/codec"
	"github.com/ALT-F4-LLC/haul/internal/exporter"
	"github.com/ALT-F4-LLC/haul/internal/graph"
	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
)

// Export collects objects and everything they reference into records. An
// Export is not safe for concurrent use.
type Export struct {
	registry *exporter.Registry
	settings

	visited map[model.ID]bool
	records []*model.Record
}

// NewExport returns an empty export container. The registry is validated up
// front so misconfigured relations fail before anything is read.
func NewExport(registry *exporter.Registry, opts ...Option) (*Export, error) {
	if registry == nil {
		return nil, model.Configf("export needs an exporter registry")
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return &Export{
		registry: registry,
		settings: newSettings(opts),
		visited:  make(map[model.ID]bool),
	}, nil
}

// ExportObjects serializes seeds and every registered object reachable from
// them. Objects already in the container are skipped, so repeated calls and
// cycles never serialize an object twice. On error the container is left as
// it was before the call.
func (e *Export) ExportObjects(ctx context.Context, q orm.Querier, seeds []orm.Object) error {
	start := time.Now()
	defer e.metrics.Observe("export", start)

	var staged []*model.Record
	run := func(q orm.Querier) error {
		var err error
		staged, err = e.traverse(ctx, q, seeds)
		return err
	}

	var err error
	if s, ok := q.(orm.Snapshotter); ok && e.snapshot {
		err = s.Snapshot(ctx, run)
	} else {
		err = run(q)
	}
	if err != nil {
		return err
	}

	for _, rec := range staged {
		e.visited[rec.ID] = true
		e.records = append(e.records, rec)
		e.metrics.Exported(rec.Kind())
	}
	e.log.WithFields(logrus.Fields{
		"seeds":   len(seeds),
		"records": len(staged),
		"total":   len(e.records),
	}).Debug("exported objects")
	return nil
}

func (e *Export) traverse(ctx context.Context, q orm.Querier, seeds []orm.Object) ([]*model.Record, error) {
	seen := make(map[model.ID]bool)
	var (
		staged []*model.Record
		queue  []orm.Object
	)
	for _, obj := range seeds {
		if e.exportPolicy.ShouldExportObject(obj) {
			queue = append(queue, obj)
		}
	}

	follow := func(obj orm.Object, f exporter.Field, target orm.Object) bool {
		if !e.registry.Has(target.Kind()) || !e.exportPolicy.ShouldExportObject(target) {
			return false
		}
		tid, err := orm.IDOf(target)
		if err != nil {
			// Serialize reports the bad key.
			return true
		}
		return e.exportPolicy.ShouldFollowReference(obj, tid, f.Name)
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obj := queue[0]
		queue = queue[1:]

		id, err := orm.IDOf(obj)
		if err != nil {
			return nil, &model.SerializationError{Field: "pk", Value: obj.PK(), Reason: err.Error()}
		}
		if e.visited[id] || seen[id] {
			continue
		}
		seen[id] = true

		exp, err := e.registry.Lookup(id.Kind)
		if err != nil {
			return nil, err
		}
		rec, reached, err := exp.Serialize(ctx, q, obj, follow)
		if err != nil {
			return nil, err
		}
		rec.Attachments, err = e.exportPolicy.Attachments(ctx, obj)
		if err != nil {
			return nil, fmt.Errorf("collecting attachments of %s: %w", id, err)
		}

		e.log.WithFields(logrus.Fields{
			"id":      id.String(),
			"reached": len(reached),
		}).Trace("serialized object")

		staged = append(staged, rec)
		queue = append(queue, reached...)
	}
	return staged, nil
}

// Records returns the collected records in visitation order.
func (e *Export) Records() []*model.Record {
	out := make([]*model.Record, len(e.records))
	copy(out, e.records)
	return out
}

// Kinds returns the sorted set of kinds present in the container.
func (e *Export) Kinds() []string {
	set := make(map[string]bool)
	for _, rec := range e.records {
		set[rec.Kind()] = true
	}
	kinds := make([]string, 0, len(set))
	for k := range set {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Len returns the number of collected records.
func (e *Export) Len() int { return len(e.records) }

// Write writes the header and every collected record to w. The whole
// container is encoded before the first byte reaches w.
func (e *Export) Write(w io.Writer, format codec.Format, metadata any) error {
	records := e.records
	if e.depOrder {
		var err error
		records, err = graph.Order(records, e.refs)
		if err != nil {
			return err
		}
	}
	header := model.Header{
		Version:     model.CurrentVersion,
		ObjectKinds: e.Kinds(),
		Metadata:    metadata,
	}
	if err := codec.Write(w, format, header, records); err != nil {
		return fmt.Errorf("writing %s container: %w", format, err)
	}
	e.log.WithFields(logrus.Fields{
		"format":  format.String(),
		"records": len(records),
	}).Info("wrote container")
	return nil
}

func (e *Export) refs(rec *model.Record) ([]model.Ref, error) {
	exp, err := e.registry.Lookup(rec.Kind())
	if err != nil {
		return nil, err
	}
	_, refs, err := exp.Split(rec.ID, rec.Data)
	return refs, err
}
