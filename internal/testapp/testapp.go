// Package testapp is a small library schema (authors, books, tags) backed by
// an in-memory SQLite store. Tests across packages share it.
package testapp

import (
	"context"
	"fmt"

	"github.com/ALT-F4-LLC/haul/internal/db"
	"github.com/ALT-F4-LLC/haul/internal/exporter"
	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
)

// Schema describes the fixture tables. Book.author is required, coauthor
// and Author.favorite are nullable, so author and favorite book form a cycle.
const Schema = `
namespace: testapp
tables:
  - name: tag
    columns:
      - {name: name, type: text}
  - name: author
    columns:
      - {name: name, type: text}
    relations:
      - {name: books, type: reverse_foreign_key, target: book, via: author}
      - {name: tags, type: many_to_many, target: tag}
      - {name: favorite, type: foreign_key, target: book, nullable: true}
  - name: book
    columns:
      - {name: name, type: text}
      - {name: isbn, type: text}
    relations:
      - {name: author, type: foreign_key, target: author}
      - {name: coauthor, type: foreign_key, target: author, nullable: true}
      - {name: tags, type: many_to_many, target: tag}
`

// Kinds of the fixture tables.
const (
	Tag    = "testapp:tag"
	Author = "testapp:author"
	Book   = "testapp:book"
)

// App bundles a fresh database with the exporters derived from Schema.
type App struct {
	Store     *db.Store
	Exporters *exporter.Registry
}

// New opens an empty in-memory database and creates the fixture tables.
func New(ctx context.Context) (*App, error) {
	s, err := db.ParseSchema([]byte(Schema))
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(":memory:")
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(ctx, conn, db.SQLite, s); err != nil {
		conn.Close()
		return nil, err
	}
	reg, err := s.Exporters()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &App{Store: db.NewStore(conn, db.SQLite, s), Exporters: reg}, nil
}

// Close closes the database.
func (a *App) Close() error { return a.Store.Close() }

// Create inserts an object and points its to-one relations at the given
// targets. Values in fields that are orm.Object or []orm.Object are written
// as relations, everything else as columns.
func (a *App) Create(ctx context.Context, kind string, fields map[string]any) (orm.Object, error) {
	var obj orm.Object
	err := a.Store.InTx(ctx, func(tx orm.Tx) error {
		var err error
		obj, err = create(ctx, tx, kind, fields)
		return err
	})
	return obj, err
}

func create(ctx context.Context, tx orm.Tx, kind string, fields map[string]any) (orm.Object, error) {
	scalars := model.NewFields()
	for name, v := range fields {
		switch v.(type) {
		case orm.Object, []orm.Object:
		default:
			scalars.Set(name, v)
		}
	}
	obj, err := tx.Create(ctx, kind, scalars)
	if err != nil {
		return nil, err
	}
	for name, v := range fields {
		switch rel := v.(type) {
		case orm.Object:
			err = tx.SetRelation(ctx, obj, name, rel)
		case []orm.Object:
			err = tx.SetMembers(ctx, obj, name, rel)
		}
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", kind, name, err)
		}
	}
	return obj, nil
}

// Link points obj.field at target, for relations that have to be set after
// both sides exist.
func (a *App) Link(ctx context.Context, obj orm.Object, field string, target orm.Object) error {
	return a.Store.InTx(ctx, func(tx orm.Tx) error {
		return tx.SetRelation(ctx, obj, field, target)
	})
}

// All returns every object of kind ordered by primary key.
func (a *App) All(ctx context.Context, kind string) ([]orm.Object, error) {
	return a.Store.Find(ctx, kind, nil)
}

// One returns the single object of kind whose field equals value.
func (a *App) One(ctx context.Context, kind, field string, value any) (orm.Object, error) {
	objs, err := a.Store.Find(ctx, kind, []orm.Match{{Field: field, Value: value}})
	if err != nil {
		return nil, err
	}
	if len(objs) != 1 {
		return nil, fmt.Errorf("%s with %s=%v: found %d objects, want 1", kind, field, value, len(objs))
	}
	return objs[0], nil
}

// Name reads the name column of obj.
func Name(obj orm.Object) string {
	v, _ := obj.Get("name")
	s, _ := v.(string)
	return s
}
