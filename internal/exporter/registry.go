package exporter

import (
	"fmt"
	"sort"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// Registry maps kinds to their exporters.
type Registry struct {
	byKind map[string]*Exporter
	order  []string
}

// NewRegistry returns a registry holding exporters. Registering the same kind
// twice is an error.
func NewRegistry(exporters ...*Exporter) (*Registry, error) {
	r := &Registry{byKind: make(map[string]*Exporter, len(exporters))}
	for _, e := range exporters {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds e to the registry.
func (r *Registry) Register(e *Exporter) error {
	if e == nil {
		return model.Configf("nil exporter")
	}
	if _, dup := r.byKind[e.Kind()]; dup {
		return model.Configf("exporter for %s registered twice", e.Kind())
	}
	r.byKind[e.Kind()] = e
	r.order = append(r.order, e.Kind())
	return nil
}

// Lookup returns the exporter for kind.
func (r *Registry) Lookup(kind string) (*Exporter, error) {
	e, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrKindNotRegistered, kind)
	}
	return e, nil
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	_, ok := r.byKind[kind]
	return ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

// Validate checks that every non-nullable foreign key points to a registered
// kind. Nullable relations to unknown kinds are allowed and export as null.
func (r *Registry) Validate() error {
	for _, kind := range r.order {
		for _, f := range r.byKind[kind].fields {
			if f.Type == ForeignKey && !f.AllowNull && !r.Has(f.Target) {
				return model.Configf("%s.%s is not nullable but points to unregistered kind %s", kind, f.Name, f.Target)
			}
		}
	}
	return nil
}
