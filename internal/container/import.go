package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ALT-F4-LLC/haul/internal/codec"
	"github.com/ALT-F4-LLC/haul/internal/exporter"
	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
	"github.com/ALT-F4-LLC/haul/internal/policy"
)

// ErrNotOpen is returned by ImportObjects when no container has been read or
// the container was closed.
var ErrNotOpen = errors.New("import container is not open")

// Import reads a container and writes its records into a database. An
// Import is not safe for concurrent use.
type Import struct {
	registry *exporter.Registry
	settings

	archive *codec.Archive
	header  *model.Header
	records []*model.Record
}

// NewImport returns an import container for the kinds in registry.
func NewImport(registry *exporter.Registry, opts ...Option) (*Import, error) {
	if registry == nil {
		return nil, model.Configf("import needs an exporter registry")
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return &Import{registry: registry, settings: newSettings(opts)}, nil
}

// Read decodes the container held in r. Header problems are reported before
// any record is looked at. Records are buffered; attachment bodies stay in r
// and are read during ImportObjects, so r must remain readable until then.
func (im *Import) Read(r io.ReaderAt, size int64) error {
	a, err := codec.Open(r, size)
	if err != nil {
		return err
	}
	dec, err := a.Documents()
	if err != nil {
		return err
	}
	defer dec.Close()

	var (
		header  *model.Header
		records []*model.Record
		seen    = make(map[model.ID]bool)
	)
	for {
		doc, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if doc.Header != nil {
			if err := im.checkKinds(doc.Header.ObjectKinds); err != nil {
				return err
			}
			header = doc.Header
			continue
		}

		rec := doc.Record
		if seen[rec.ID] {
			return model.Formatf("duplicate object %s", rec.ID)
		}
		seen[rec.ID] = true

		exp, err := im.registry.Lookup(rec.Kind())
		if err != nil {
			if !im.ignoreUnknown {
				return err
			}
		} else if _, _, err := exp.Split(rec.ID, rec.Data); err != nil {
			return err
		}
		records = append(records, rec)
	}

	im.archive = a
	im.header = header
	im.records = records
	im.log.WithFields(logrus.Fields{
		"format":  a.Format().String(),
		"version": header.Version,
		"records": len(records),
	}).Debug("read container")
	return nil
}

func (im *Import) checkKinds(kinds []string) error {
	var unknown []string
	for _, k := range kinds {
		if !im.registry.Has(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	if im.ignoreUnknown {
		im.log.WithField("kinds", unknown).Warn("container holds unknown kinds, their objects will be discarded")
		return nil
	}
	return fmt.Errorf("%w: %v", model.ErrKindNotRegistered, unknown)
}

// Header returns the header of the container read last.
func (im *Import) Header() (model.Header, bool) {
	if im.header == nil {
		return model.Header{}, false
	}
	return *im.header, true
}

// Metadata returns the free-form metadata stored by Export.Write.
func (im *Import) Metadata() any {
	if im.header == nil {
		return nil
	}
	return im.header.Metadata
}

// Records returns the buffered records in stream order.
func (im *Import) Records() []*model.Record {
	out := make([]*model.Record, len(im.records))
	copy(out, im.records)
	return out
}

// Close releases the container. Records stay available; ImportObjects does
// not.
func (im *Import) Close() error {
	im.archive = nil
	return nil
}

// ImportObjects writes every buffered record into store inside one
// transaction. Any error rolls back everything the call wrote.
func (im *Import) ImportObjects(ctx context.Context, store orm.Store) (*Report, error) {
	if im.archive == nil || im.header == nil {
		return nil, ErrNotOpen
	}
	start := time.Now()
	defer im.metrics.Observe("import", start)

	var report *Report
	err := store.InTx(ctx, func(tx orm.Tx) error {
		s := newSession(im, tx)
		if err := s.run(ctx); err != nil {
			return err
		}
		report = s.report
		return nil
	})
	if f, ok := im.importPolicy.(policy.Finalizer); ok {
		if ferr := f.Finalize(err == nil); ferr != nil {
			if err == nil {
				im.metrics.Failed("finalize")
				return nil, fmt.Errorf("import committed but finalizing failed: %w", ferr)
			}
			im.log.WithError(ferr).Warn("cleaning up after rollback")
		}
	}
	if err != nil {
		im.metrics.Failed(failureReason(err))
		im.log.WithError(err).Error("import rolled back")
		return nil, err
	}

	for _, a := range report.actions {
		im.metrics.Imported(a.kind, a.action)
	}
	im.log.WithFields(logrus.Fields{
		"loaded":    report.Loaded,
		"created":   len(report.Created),
		"linked":    len(report.Linked),
		"discarded": len(report.Discarded),
	}).Info("imported container")
	return report, nil
}

func failureReason(err error) string {
	var (
		fe *model.FailError
		ae *model.AmbiguousLinkError
		ue *model.UnresolvedReferenceError
		me *model.FormatError
	)
	switch {
	case errors.As(err, &fe):
		return "fail"
	case errors.As(err, &ae):
		return "ambiguous_link"
	case errors.As(err, &ue):
		return "unresolved_reference"
	case errors.As(err, &me):
		return "format"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
