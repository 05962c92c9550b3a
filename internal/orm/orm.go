// Package orm declares the contract haul needs from the host data layer:
// field access on live objects, identity lookup, relation reads, equality
// queries, object creation, relation writes and transactions.
package orm

import (
	"context"
	"errors"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// ErrNotFound is returned by Get when no object has the requested key.
var ErrNotFound = errors.New("object not found")

// Object is a live row of some kind.
type Object interface {
	Kind() string
	PK() any
	Get(field string) (any, error)
	Set(field string, value any) error
}

// Match is one field-equality condition. Value may be an Object when Field
// names a foreign key.
type Match struct {
	Field string
	Value any
}

// Querier reads objects. Implementations must not mutate data.
type Querier interface {
	Get(ctx context.Context, kind string, pk any) (Object, error)
	Find(ctx context.Context, kind string, match []Match) ([]Object, error)
	// Related returns the objects a relation field of obj points to: zero or
	// one for a foreign key, any number for reverse and many-to-many fields.
	Related(ctx context.Context, obj Object, field string) ([]Object, error)
}

// Tx is a unit of work against the target database.
type Tx interface {
	Querier
	// Create inserts a new object of kind with the given scalar fields.
	Create(ctx context.Context, kind string, fields *model.Fields) (Object, error)
	// Save writes fields changed through Object.Set.
	Save(ctx context.Context, obj Object) error
	// SetRelation points a to-one relation at target, or clears it when
	// target is nil.
	SetRelation(ctx context.Context, obj Object, field string, target Object) error
	// SetMembers replaces the members of a to-many relation.
	SetMembers(ctx context.Context, obj Object, field string, targets []Object) error
	// AddMembers adds to a to-many relation, ignoring existing members.
	AddMembers(ctx context.Context, obj Object, field string, targets []Object) error
}

// Store is a database that can run transactions. A non-nil error returned by
// fn rolls the transaction back.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Snapshotter is implemented by stores that can run reads inside one
// consistent read transaction.
type Snapshotter interface {
	Snapshot(ctx context.Context, fn func(q Querier) error) error
}

// IDOf returns the portable identity of obj.
func IDOf(obj Object) (model.ID, error) {
	return model.NewID(obj.Kind(), obj.PK())
}
