package exporter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
)

// Exporter is the immutable field description of one kind. It is built once
// at startup and shared read-only by every export and import.
type Exporter struct {
	kind   string
	fields []Field
	index  map[string]int
}

// New builds an exporter for kind from an explicit field list.
func New(kind string, fields ...Field) (*Exporter, error) {
	if _, _, err := model.ParseKind(kind); err != nil {
		return nil, err
	}
	e := &Exporter{
		kind:   kind,
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, model.Configf("%s: field with empty name", kind)
		}
		if _, dup := e.index[f.Name]; dup {
			return nil, model.Configf("%s: duplicate field %q", kind, f.Name)
		}
		if f.IsRelation() {
			if _, _, err := model.ParseKind(f.Target); err != nil {
				return nil, model.Configf("%s.%s: %v", kind, f.Name, err)
			}
		}
		e.index[f.Name] = len(e.fields)
		e.fields = append(e.fields, f)
	}
	return e, nil
}

// Derive builds an exporter exporting every column except the primary key as
// a plain field, followed by the declared fields. A declared field replaces
// a column of the same name.
func Derive(kind, pk string, columns []string, declared ...Field) (*Exporter, error) {
	names := make(map[string]bool, len(declared))
	for _, f := range declared {
		names[f.Name] = true
	}
	fields := make([]Field, 0, len(columns)+len(declared))
	for _, c := range columns {
		if c == pk || names[c] {
			continue
		}
		fields = append(fields, PlainField(c))
	}
	fields = append(fields, declared...)
	return New(kind, fields...)
}

// MustNew is like New but panics on error. Meant for package-level exporter
// declarations.
func MustNew(kind string, fields ...Field) *Exporter {
	e, err := New(kind, fields...)
	if err != nil {
		panic(err)
	}
	return e
}

// Kind returns the kind tag this exporter handles.
func (e *Exporter) Kind() string { return e.kind }

// Describe returns the ordered field list.
func (e *Exporter) Describe() []Field {
	out := make([]Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// Field looks up a field by name.
func (e *Exporter) Field(name string) (Field, bool) {
	i, ok := e.index[name]
	if !ok {
		return Field{}, false
	}
	return e.fields[i], true
}

// FollowFunc decides whether target, reached from obj through f, is part of
// the export. Returning false turns the reference into null (to-one) or drops
// it from the list (to-many).
type FollowFunc func(obj orm.Object, f Field, target orm.Object) bool

// Serialize reads obj into a record. Relation fields become IDs; the objects
// they point to are returned so the caller can export them too. Only reads
// go through q.
func (e *Exporter) Serialize(ctx context.Context, q orm.Querier, obj orm.Object, follow FollowFunc) (*model.Record, []orm.Object, error) {
	if obj.Kind() != e.kind {
		return nil, nil, fmt.Errorf("exporter for %s cannot serialize %s", e.kind, obj.Kind())
	}
	id, err := orm.IDOf(obj)
	if err != nil {
		return nil, nil, &model.SerializationError{Field: "pk", Value: obj.PK(), Reason: err.Error()}
	}

	rec := &model.Record{ID: id, Data: model.NewFields()}
	var reached []orm.Object

	for _, f := range e.fields {
		if f.Type == Plain {
			v, err := obj.Get(f.Name)
			if err != nil {
				return nil, nil, fmt.Errorf("reading %s.%s: %w", id, f.Name, err)
			}
			cv, err := model.CheckValue(f.Name, v)
			if err != nil {
				var se *model.SerializationError
				if errors.As(err, &se) {
					se.ID = id
				}
				return nil, nil, err
			}
			rec.Data.Set(f.Name, cv)
			continue
		}

		related, err := q.Related(ctx, obj, f.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("reading relation %s.%s: %w", id, f.Name, err)
		}

		ids := make([]model.ID, 0, len(related))
		for _, target := range related {
			if follow != nil && !follow(obj, f, target) {
				continue
			}
			tid, err := orm.IDOf(target)
			if err != nil {
				return nil, nil, &model.SerializationError{ID: id, Field: f.Name, Value: target.PK(), Reason: err.Error()}
			}
			ids = append(ids, tid)
			reached = append(reached, target)
		}

		if f.Many() {
			rec.Data.Set(f.Name, ids)
			continue
		}
		switch {
		case len(ids) == 1:
			rec.Data.Set(f.Name, ids[0])
		case len(ids) > 1:
			return nil, nil, &model.SerializationError{ID: id, Field: f.Name, Reason: "foreign key resolved to more than one object"}
		case !f.AllowNull && len(related) > 0:
			return nil, nil, &model.SerializationError{ID: id, Field: f.Name, Reason: "field is not nullable but its target was excluded from the export"}
		case !f.AllowNull:
			return nil, nil, &model.SerializationError{ID: id, Field: f.Name, Reason: "field is not nullable but holds null"}
		default:
			rec.Data.Set(f.Name, nil)
		}
	}
	return rec, reached, nil
}

// Split separates record data into scalar fields and relation references.
// Fields not described by the exporter are rejected.
func (e *Exporter) Split(id model.ID, data *model.Fields) (*model.Fields, []model.Ref, error) {
	scalars := model.NewFields()
	var refs []model.Ref

	err := data.Each(func(name string, value any) error {
		f, ok := e.Field(name)
		if !ok {
			return model.Formatf("%s: unknown field %q for kind %s", id, name, e.kind)
		}
		if f.Type == Plain {
			if _, isID := value.(model.ID); isID {
				return model.Formatf("%s: plain field %q holds a reference", id, name)
			}
			scalars.Set(name, value)
			return nil
		}
		ref, err := e.refFor(id, f, value)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return scalars, refs, nil
}

// DeserializeInto writes the scalar fields of data onto target and returns
// the relation references that still need resolving. Only fields in only are
// written when only is non-nil.
func (e *Exporter) DeserializeInto(id model.ID, data *model.Fields, target orm.Object, only map[string]bool) ([]model.Ref, error) {
	scalars, refs, err := e.Split(id, data)
	if err != nil {
		return nil, err
	}
	err = scalars.Each(func(name string, value any) error {
		if only != nil && !only[name] {
			return nil
		}
		if err := target.Set(name, value); err != nil {
			return fmt.Errorf("setting %s.%s: %w", id, name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if only == nil {
		return refs, nil
	}
	kept := refs[:0]
	for _, r := range refs {
		if only[r.Field] {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func (e *Exporter) refFor(id model.ID, f Field, value any) (model.Ref, error) {
	ref := model.Ref{
		Field:    f.Name,
		Many:     f.Many(),
		Nullable: f.AllowNull,
		Weak:     f.Type == ReverseForeignKey,
	}
	if !f.Many() {
		switch v := value.(type) {
		case nil:
			if !f.AllowNull {
				return ref, model.Formatf("%s: field %q is not nullable but holds null", id, f.Name)
			}
		case model.ID:
			if v.Kind != f.Target {
				return ref, model.Formatf("%s: field %q points to %s, want kind %s", id, f.Name, v, f.Target)
			}
			ref.IDs = []model.ID{v}
		default:
			return ref, model.Formatf("%s: field %q must hold a reference, got %T", id, f.Name, value)
		}
		return ref, nil
	}

	switch v := value.(type) {
	case nil:
	case []model.ID:
		ref.IDs = append(ref.IDs, v...)
	case []any:
		for i, item := range v {
			tid, ok := item.(model.ID)
			if !ok {
				return ref, model.Formatf("%s: item %d of field %q must be a reference, got %T", id, i, f.Name, item)
			}
			ref.IDs = append(ref.IDs, tid)
		}
	default:
		return ref, model.Formatf("%s: field %q must hold a list of references, got %T", id, f.Name, value)
	}
	for _, tid := range ref.IDs {
		if tid.Kind != f.Target {
			return ref, model.Formatf("%s: field %q points to %s, want kind %s", id, f.Name, tid, f.Target)
		}
	}
	return ref, nil
}
