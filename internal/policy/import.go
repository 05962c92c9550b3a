package policy

import (
	"context"
	"fmt"
	"io"

	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
)

// M2MMode selects how imported many-to-many members are written.
type M2MMode int

const (
	// Replace sets the relation to exactly the imported members.
	Replace M2MMode = iota
	// Append adds the imported members to whatever the object already has.
	Append
)

func (m M2MMode) String() string {
	if m == Append {
		return "append"
	}
	return "replace"
}

// ImportPolicy decides, record by record, how a container maps onto the
// target database. RelinkObject may query q but must not write through it.
type ImportPolicy interface {
	RelinkObject(ctx context.Context, q orm.Querier, rec *model.Record) (Action, error)
	// PreprocessFields runs before RelinkObject and may edit fields in place.
	PreprocessFields(kind string, fields *model.Fields) error
	// PostprocessFields runs after RelinkObject, before the action is
	// applied, and may edit fields in place.
	PostprocessFields(kind string, fields *model.Fields) error
	ManyToMany(kind, field string) M2MMode
	ProcessAttachment(ctx context.Context, obj orm.Object, key any, r io.Reader) error
	PostObjectImport(ctx context.Context, obj orm.Object) error
}

// ReferenceResolver is an optional ImportPolicy extension. The importer
// consults it for references to objects that are not in the container; a
// nil object means the reference stays unresolved.
type ReferenceResolver interface {
	ResolveReference(ctx context.Context, q orm.Querier, id model.ID) (orm.Object, error)
}

// Finalizer is an optional ImportPolicy extension for side effects outside
// the database. The importer calls Finalize once the transaction has
// committed or rolled back.
type Finalizer interface {
	Finalize(committed bool) error
}

// DefaultImport creates every object and rejects attachments. Embed it to
// override single hooks.
type DefaultImport struct{}

var _ ImportPolicy = DefaultImport{}

func (DefaultImport) RelinkObject(context.Context, orm.Querier, *model.Record) (Action, error) {
	return Create{}, nil
}

func (DefaultImport) PreprocessFields(string, *model.Fields) error  { return nil }
func (DefaultImport) PostprocessFields(string, *model.Fields) error { return nil }
func (DefaultImport) ManyToMany(string, string) M2MMode             { return Replace }

func (DefaultImport) ProcessAttachment(_ context.Context, obj orm.Object, key any, _ io.Reader) error {
	return fmt.Errorf("%s attachment %v: %w", obj.Kind(), key, model.ErrAttachmentsUnsupported)
}

func (DefaultImport) PostObjectImport(context.Context, orm.Object) error { return nil }

// RelinkFunc turns a plain function into an ImportPolicy with default hooks.
type RelinkFunc func(ctx context.Context, q orm.Querier, rec *model.Record) (Action, error)

type relinkFunc struct {
	DefaultImport
	fn RelinkFunc
}

func (r relinkFunc) RelinkObject(ctx context.Context, q orm.Querier, rec *model.Record) (Action, error) {
	return r.fn(ctx, q, rec)
}

// Policy wraps fn.
func (fn RelinkFunc) Policy() ImportPolicy {
	return relinkFunc{fn: fn}
}
