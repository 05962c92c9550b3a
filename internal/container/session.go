package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ALT-F4-LLC/haul/internal/exporter"
	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
	"github.com/ALT-F4-LLC/haul/internal/policy"
)

// Report summarizes a committed import.
type Report struct {
	// Loaded is the number of records in the container.
	Loaded    int
	Created   []model.ID
	Linked    []model.ID
	Discarded []model.ID
	// PKMap maps every created or linked record to its object in the
	// target database.
	PKMap map[model.ID]orm.Object

	actions []appliedAction
}

type appliedAction struct {
	kind, action string
}

// Tally counts the applied actions, keyed by kind and then action name.
func (r *Report) Tally() map[string]map[string]int {
	out := map[string]map[string]int{}
	for _, a := range r.actions {
		if out[a.kind] == nil {
			out[a.kind] = map[string]int{}
		}
		out[a.kind][a.action]++
	}
	return out
}

// bound is a record that ended up as a live object.
type bound struct {
	rec *model.Record
	obj orm.Object
}

// edge is a relation of a bound object still to be written.
type edge struct {
	from    model.ID
	obj     orm.Object
	ref     model.Ref
	created bool
}

// session is the state of one ImportObjects call.
type session struct {
	im  *Import
	tx  orm.Tx
	log *logrus.Entry

	present   map[model.ID]bool
	resolved  map[model.ID]orm.Object
	discarded map[model.ID]bool
	bound     []bound
	pending   []edge
	ambiguous []error
	// unsettled holds records whose link depends on an ambiguous match.
	unsettled map[model.ID]bool

	report *Report
}

func newSession(im *Import, tx orm.Tx) *session {
	s := &session{
		im:        im,
		tx:        tx,
		log:       logrus.NewEntry(im.log),
		present:   make(map[model.ID]bool, len(im.records)),
		resolved:  make(map[model.ID]orm.Object, len(im.records)),
		discarded: make(map[model.ID]bool),
		unsettled: make(map[model.ID]bool),
		report: &Report{
			Loaded: len(im.records),
			PKMap:  make(map[model.ID]orm.Object, len(im.records)),
		},
	}
	for _, rec := range im.records {
		s.present[rec.ID] = true
	}
	return s
}

func (s *session) run(ctx context.Context) error {
	// Phase 1: every record becomes an object, a link or a discard.
	for _, rec := range s.im.records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.relink(ctx, rec); err != nil {
			return err
		}
	}
	if len(s.ambiguous) > 0 {
		return errors.Join(s.ambiguous...)
	}

	// Phase 2: all objects exist, so every edge can be written.
	for _, e := range s.pending {
		if err := s.drain(ctx, e); err != nil {
			return err
		}
	}

	pol := s.im.importPolicy
	for _, b := range s.bound {
		for _, a := range b.rec.Attachments {
			if err := s.attach(ctx, b, a); err != nil {
				return err
			}
		}
	}
	for _, b := range s.bound {
		if err := pol.PostObjectImport(ctx, b.obj); err != nil {
			return fmt.Errorf("post-import hook for %s: %w", b.rec.ID, err)
		}
	}
	return nil
}

func (s *session) relink(ctx context.Context, rec *model.Record) error {
	exp, err := s.im.registry.Lookup(rec.Kind())
	if err != nil {
		// Read only lets unknown kinds through when they are ignored.
		s.discard(rec.ID, "unknown kind")
		return nil
	}

	pol := s.im.importPolicy
	fields := rec.Data.Clone()
	if err := pol.PreprocessFields(rec.Kind(), fields); err != nil {
		return fmt.Errorf("preprocessing %s: %w", rec.ID, err)
	}
	view := &model.Record{ID: rec.ID, Data: fields, Attachments: rec.Attachments}

	action, err := pol.RelinkObject(ctx, s.tx, view)
	if err != nil {
		return fmt.Errorf("relinking %s: %w", rec.ID, err)
	}
	if err := policy.Validate(action); err != nil {
		return fmt.Errorf("relink action for %s: %w", rec.ID, err)
	}
	if err := pol.PostprocessFields(rec.Kind(), fields); err != nil {
		return fmt.Errorf("postprocessing %s: %w", rec.ID, err)
	}
	return s.apply(ctx, exp, view, action)
}

// apply runs action for rec, descending into fallbacks.
func (s *session) apply(ctx context.Context, exp *exporter.Exporter, rec *model.Record, action policy.Action) error {
	switch a := action.(type) {
	case policy.Create:
		return s.create(ctx, exp, rec, a)

	case policy.LinkByFields:
		match, values, err := s.lookup(exp, rec, a.LookupFields)
		if errors.Is(err, errUnsettled) {
			// Reported through the ambiguity it depends on.
			s.unsettled[rec.ID] = true
			return nil
		}
		if err != nil {
			return err
		}
		found, err := s.tx.Find(ctx, rec.Kind(), match)
		if err != nil {
			return fmt.Errorf("looking up %s: %w", rec.ID, err)
		}
		switch len(found) {
		case 0:
			return s.fallback(ctx, exp, rec, a, a.Fallback)
		case 1:
			return s.link(ctx, exp, rec, found[0], a.OverwriteFields, a)
		default:
			cands := make([]model.ID, 0, len(found))
			for _, obj := range found {
				id, err := orm.IDOf(obj)
				if err != nil {
					return err
				}
				cands = append(cands, id)
			}
			s.unsettled[rec.ID] = true
			s.ambiguous = append(s.ambiguous, &model.AmbiguousLinkError{
				Record:     rec.ID,
				Kind:       rec.Kind(),
				Lookup:     a.LookupFields,
				Values:     values,
				Candidates: cands,
			})
			return nil
		}

	case policy.LinkByPK:
		obj, err := s.tx.Get(ctx, rec.Kind(), rec.ID.PK)
		if errors.Is(err, orm.ErrNotFound) {
			return s.fallback(ctx, exp, rec, a, a.Fallback)
		}
		if err != nil {
			return fmt.Errorf("looking up %s: %w", rec.ID, err)
		}
		return s.link(ctx, exp, rec, obj, a.OverwriteFields, a)

	case policy.LinkToInstance:
		obj, err := s.tx.Get(ctx, rec.Kind(), a.PK)
		if err != nil {
			return fmt.Errorf("linking %s to %s-%v: %w", rec.ID, rec.Kind(), a.PK, err)
		}
		return s.link(ctx, exp, rec, obj, a.OverwriteFields, a)

	case policy.Discard:
		s.discard(rec.ID, "relink policy")
		s.report.actions = append(s.report.actions, appliedAction{rec.Kind(), policy.Name(a)})
		return nil

	case policy.Fail:
		return &model.FailError{ID: rec.ID, Reason: a.Reason}
	}
	return model.Configf("unknown relink action %T", action)
}

func (s *session) fallback(ctx context.Context, exp *exporter.Exporter, rec *model.Record, from, next policy.Action) error {
	if next == nil {
		return &model.FailError{
			ID:     rec.ID,
			Reason: fmt.Sprintf("%s: %s found no existing object and has no fallback", rec.ID, from),
		}
	}
	s.log.WithFields(logrus.Fields{
		"id":       rec.ID.String(),
		"fallback": next.String(),
	}).Debug("no match, falling back")
	return s.apply(ctx, exp, rec, next)
}

func (s *session) create(ctx context.Context, exp *exporter.Exporter, rec *model.Record, a policy.Create) error {
	scalars, refs, err := exp.Split(rec.ID, rec.Data)
	if err != nil {
		return err
	}
	ignore := make(map[string]bool, len(a.IgnoreFields))
	for _, f := range a.IgnoreFields {
		ignore[f] = true
		scalars.Delete(f)
	}

	obj, err := s.tx.Create(ctx, rec.Kind(), scalars)
	if err != nil {
		return fmt.Errorf("creating %s: %w", rec.ID, err)
	}

	kept := refs[:0]
	for _, r := range refs {
		if !ignore[r.Field] {
			kept = append(kept, r)
		}
	}
	s.bind(rec, obj, kept, true, a)
	s.report.Created = append(s.report.Created, rec.ID)
	return nil
}

// link binds rec to an existing object, overwriting the configured fields.
func (s *session) link(ctx context.Context, exp *exporter.Exporter, rec *model.Record, obj orm.Object, overwrite []string, a policy.Action) error {
	all, only := policy.Overwrites(overwrite)

	var refs []model.Ref
	if all || only != nil {
		var err error
		refs, err = exp.DeserializeInto(rec.ID, rec.Data, obj, only)
		if err != nil {
			return err
		}
		if err := s.tx.Save(ctx, obj); err != nil {
			return fmt.Errorf("overwriting %s: %w", rec.ID, err)
		}
	}
	s.bind(rec, obj, refs, false, a)
	s.report.Linked = append(s.report.Linked, rec.ID)
	return nil
}

func (s *session) bind(rec *model.Record, obj orm.Object, refs []model.Ref, created bool, a policy.Action) {
	s.resolved[rec.ID] = obj
	s.bound = append(s.bound, bound{rec: rec, obj: obj})
	s.report.PKMap[rec.ID] = obj
	s.report.actions = append(s.report.actions, appliedAction{rec.Kind(), policy.Name(a)})

	for _, r := range refs {
		// The other side of a reverse foreign key carries the link.
		if r.Weak {
			continue
		}
		s.pending = append(s.pending, edge{from: rec.ID, obj: obj, ref: r, created: created})
	}
	s.log.WithFields(logrus.Fields{
		"id":     rec.ID.String(),
		"pk":     obj.PK(),
		"action": policy.Name(a),
	}).Debug("relinked object")
}

func (s *session) discard(id model.ID, reason string) {
	s.discarded[id] = true
	s.report.Discarded = append(s.report.Discarded, id)
	s.log.WithFields(logrus.Fields{
		"id":     id.String(),
		"reason": reason,
	}).Debug("discarded object")
}

// lookup turns the lookup fields of rec into match conditions. Relation
// fields match the object their reference was bound to, so the target must
// come earlier in the stream.
func (s *session) lookup(exp *exporter.Exporter, rec *model.Record, names []string) ([]orm.Match, []any, error) {
	match := make([]orm.Match, 0, len(names))
	values := make([]any, 0, len(names))
	for _, name := range names {
		f, ok := exp.Field(name)
		if !ok {
			return nil, nil, model.Configf("lookup field %q is not a field of %s", name, rec.Kind())
		}
		v, _ := rec.Data.Get(name)
		values = append(values, v)

		if f.Type == exporter.Plain {
			match = append(match, orm.Match{Field: name, Value: v})
			continue
		}
		if f.Type != exporter.ForeignKey {
			return nil, nil, model.Configf("lookup field %s.%s must be a plain field or a foreign key", rec.Kind(), name)
		}

		id, isID := v.(model.ID)
		switch {
		case !isID:
			match = append(match, orm.Match{Field: name, Value: nil})
		case s.resolved[id] != nil:
			match = append(match, orm.Match{Field: name, Value: s.resolved[id]})
		case s.discarded[id]:
			match = append(match, orm.Match{Field: name, Value: nil})
		case s.unsettled[id]:
			return nil, nil, errUnsettled
		default:
			return nil, nil, fmt.Errorf("%s: lookup field %q points to %s, which has not been imported yet", rec.ID, name, id)
		}
	}
	return match, values, nil
}

var errUnsettled = errors.New("lookup target has no settled link")

// drain writes one pending edge.
func (s *session) drain(ctx context.Context, e edge) error {
	targets, err := s.targets(ctx, e)
	if err != nil {
		return err
	}

	if !e.ref.Many {
		if len(targets) == 0 && e.created {
			return nil
		}
		var target orm.Object
		if len(targets) > 0 {
			target = targets[0]
		}
		if err := s.tx.SetRelation(ctx, e.obj, e.ref.Field, target); err != nil {
			return fmt.Errorf("linking %s.%s: %w", e.from, e.ref.Field, err)
		}
		return nil
	}

	if s.im.importPolicy.ManyToMany(e.from.Kind, e.ref.Field) == policy.Append {
		err = s.tx.AddMembers(ctx, e.obj, e.ref.Field, targets)
	} else {
		err = s.tx.SetMembers(ctx, e.obj, e.ref.Field, targets)
	}
	if err != nil {
		return fmt.Errorf("linking %s.%s: %w", e.from, e.ref.Field, err)
	}
	return nil
}

// targets resolves the IDs of an edge. References to discarded records are
// dropped when the field allows it.
func (s *session) targets(ctx context.Context, e edge) ([]orm.Object, error) {
	resolver, _ := s.im.importPolicy.(policy.ReferenceResolver)

	out := make([]orm.Object, 0, len(e.ref.IDs))
	for _, id := range e.ref.IDs {
		if obj, ok := s.resolved[id]; ok {
			out = append(out, obj)
			continue
		}
		if s.discarded[id] {
			if e.ref.Many || e.ref.Nullable {
				s.log.WithFields(logrus.Fields{
					"from":  e.from.String(),
					"field": e.ref.Field,
					"to":    id.String(),
				}).Debug("breaking reference to discarded object")
				continue
			}
			return nil, &model.UnresolvedReferenceError{From: e.from, Field: e.ref.Field, To: id, Discarded: true}
		}
		if !s.present[id] && resolver != nil {
			obj, err := resolver.ResolveReference(ctx, s.tx, id)
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", id, err)
			}
			if obj != nil {
				s.resolved[id] = obj
				out = append(out, obj)
				continue
			}
		}
		return nil, &model.UnresolvedReferenceError{From: e.from, Field: e.ref.Field, To: id}
	}
	return out, nil
}

func (s *session) attach(ctx context.Context, b bound, a model.Attachment) error {
	r, err := a.Open()
	if err != nil {
		return fmt.Errorf("opening attachment %s of %s: %w", a.ID, b.rec.ID, err)
	}
	defer r.Close()

	if err := s.im.importPolicy.ProcessAttachment(ctx, b.obj, a.Key, r); err != nil {
		return fmt.Errorf("processing attachment %s of %s: %w", a.ID, b.rec.ID, err)
	}
	return nil
}
