package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
)

// queryer is the part of *sql.DB and *sql.Tx the store uses.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Row is a live row of some table.
type Row struct {
	table   *Table
	dialect Dialect
	pk      any
	values  map[string]any
	fks     map[string]any // relation name -> target key
	dirty   map[string]bool
}

var _ orm.Object = (*Row)(nil)

func (r *Row) Kind() string { return r.table.kind }
func (r *Row) PK() any      { return r.pk }

// Get returns a scalar column value.
func (r *Row) Get(field string) (any, error) {
	if _, ok := r.table.column(field); !ok {
		return nil, fmt.Errorf("%s has no column %q", r.table.kind, field)
	}
	return r.values[field], nil
}

// Set changes a scalar column. The change is written by Tx.Save.
func (r *Row) Set(field string, value any) error {
	c, ok := r.table.column(field)
	if !ok {
		return fmt.Errorf("%s has no column %q", r.table.kind, field)
	}
	v, err := model.CheckValue(field, value)
	if err != nil {
		return err
	}
	if _, err := toDB(r.dialect, c, v); err != nil {
		return err
	}
	r.values[field] = v
	if r.dirty == nil {
		r.dirty = map[string]bool{}
	}
	r.dirty[field] = true
	return nil
}

// Store implements orm.Store over a database/sql connection.
type Store struct {
	db     *sql.DB
	schema *Schema
	b      builder
}

var (
	_ orm.Store       = (*Store)(nil)
	_ orm.Snapshotter = (*Store)(nil)
)

// NewStore wraps db. The schema must have been validated.
func NewStore(db *sql.DB, d Dialect, s *Schema) *Store {
	return &Store{db: db, schema: s, b: builder{d: d}}
}

// Schema returns the store's schema.
func (s *Store) Schema() *Schema { return s.schema }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) q() *querier {
	return &querier{q: s.db, schema: s.schema, b: s.b}
}

func (s *Store) Get(ctx context.Context, kind string, pk any) (orm.Object, error) {
	return s.q().Get(ctx, kind, pk)
}

func (s *Store) Find(ctx context.Context, kind string, match []orm.Match) ([]orm.Object, error) {
	return s.q().Find(ctx, kind, match)
}

func (s *Store) Related(ctx context.Context, obj orm.Object, field string) ([]orm.Object, error) {
	return s.q().Related(ctx, obj, field)
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx orm.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{querier{q: tx, schema: s.schema, b: s.b}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Snapshot runs fn inside one read transaction.
func (s *Store) Snapshot(ctx context.Context, fn func(q orm.Querier) error) error {
	var opts *sql.TxOptions
	if s.b.d == Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning snapshot: %w", err)
	}
	defer tx.Rollback()

	return fn(&querier{q: tx, schema: s.schema, b: s.b})
}

// Count returns the number of rows of kind.
func (s *Store) Count(ctx context.Context, kind string) (int, error) {
	t, err := s.schema.Table(kind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(t.Name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", kind, err)
	}
	return n, nil
}

type querier struct {
	q      queryer
	schema *Schema
	b      builder
}

func (q *querier) scanRows(rows *sql.Rows, t *Table) ([]orm.Object, error) {
	defer rows.Close()
	var out []orm.Object
	for rows.Next() {
		r, err := q.scan(rows, t)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", t.kind, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (q *querier) scan(s scanner, t *Table) (*Row, error) {
	cols := t.selectColumns()
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := s.Scan(ptrs...); err != nil {
		return nil, err
	}

	pk, err := keyFromDB(raw[0])
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", t.kind, err)
	}
	r := &Row{table: t, dialect: q.b.d, pk: pk, values: make(map[string]any, len(t.Columns)), fks: map[string]any{}}
	i := 1
	for _, c := range t.Columns {
		v, err := fromDB(c, raw[i])
		if err != nil {
			return nil, fmt.Errorf("scanning %s-%v: %w", t.kind, pk, err)
		}
		r.values[c.Name] = v
		i++
	}
	for _, rel := range t.Relations {
		if rel.Type != RelForeignKey {
			continue
		}
		if raw[i] != nil {
			k, err := keyFromDB(raw[i])
			if err != nil {
				return nil, fmt.Errorf("scanning %s-%v.%s: %w", t.kind, pk, rel.Name, err)
			}
			r.fks[rel.Name] = k
		}
		i++
	}
	return r, nil
}

func (q *querier) Get(ctx context.Context, kind string, pk any) (orm.Object, error) {
	t, err := q.schema.Table(kind)
	if err != nil {
		return nil, err
	}
	return q.get(ctx, t, pk)
}

func (q *querier) get(ctx context.Context, t *Table, pk any) (*Row, error) {
	key, err := keyToDB(t, pk)
	if err != nil {
		return nil, err
	}
	query := q.b.selectFrom(t, []string{quote(t.PK) + " = ?"}, false)
	r, err := q.scan(q.q.QueryRowContext(ctx, query, key), t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s-%v: %w", t.kind, pk, orm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s-%v: %w", t.kind, pk, err)
	}
	return r, nil
}

// Find matches scalar columns by value and foreign keys by target object.
// A nil value matches NULL.
func (q *querier) Find(ctx context.Context, kind string, match []orm.Match) ([]orm.Object, error) {
	t, err := q.schema.Table(kind)
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	for _, m := range match {
		col, arg, err := q.matchArg(t, m)
		if err != nil {
			return nil, err
		}
		if arg == nil {
			where = append(where, quote(col)+" IS NULL")
			continue
		}
		where = append(where, quote(col)+" = ?")
		args = append(args, arg)
	}
	rows, err := q.q.QueryContext(ctx, q.b.selectFrom(t, where, true), args...)
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", kind, err)
	}
	return q.scanRows(rows, t)
}

func (q *querier) matchArg(t *Table, m orm.Match) (string, any, error) {
	if m.Field == t.PK {
		if m.Value == nil {
			return t.PK, nil, nil
		}
		k, err := keyToDB(t, m.Value)
		return t.PK, k, err
	}
	if c, ok := t.column(m.Field); ok {
		arg, err := toDB(q.b.d, c, m.Value)
		return c.Name, arg, err
	}
	rel := t.relation(m.Field)
	if rel == nil || rel.Type != RelForeignKey {
		return "", nil, fmt.Errorf("%s: cannot match on field %q", t.kind, m.Field)
	}
	var target any
	switch v := m.Value.(type) {
	case nil:
		return rel.fkColumn(), nil, nil
	case orm.Object:
		target = v.PK()
	case model.ID:
		target = v.PK
	default:
		target = v
	}
	k, err := keyToDB(rel.target, target)
	return rel.fkColumn(), k, err
}

func (q *querier) Related(ctx context.Context, obj orm.Object, field string) ([]orm.Object, error) {
	r, ok := obj.(*Row)
	if !ok {
		return nil, fmt.Errorf("object %s-%v does not belong to this store", obj.Kind(), obj.PK())
	}
	rel := r.table.relation(field)
	if rel == nil {
		return nil, fmt.Errorf("%s has no relation %q", r.table.kind, field)
	}

	switch rel.Type {
	case RelForeignKey:
		key, ok := r.fks[field]
		if !ok {
			return nil, nil
		}
		target, err := q.get(ctx, rel.target, key)
		if err != nil {
			return nil, err
		}
		return []orm.Object{target}, nil
	case RelReverseForeignKey:
		back := rel.target.relation(rel.Via)
		key, err := keyToDB(r.table, r.pk)
		if err != nil {
			return nil, err
		}
		query := q.b.selectFrom(rel.target, []string{quote(back.fkColumn()) + " = ?"}, true)
		rows, err := q.q.QueryContext(ctx, query, key)
		if err != nil {
			return nil, fmt.Errorf("reading %s.%s: %w", r.table.kind, field, err)
		}
		return q.scanRows(rows, rel.target)
	default:
		key, err := keyToDB(r.table, r.pk)
		if err != nil {
			return nil, err
		}
		rows, err := q.q.QueryContext(ctx, q.b.selectJoined(rel.target, r.table.joinTable(rel)), key)
		if err != nil {
			return nil, fmt.Errorf("reading %s.%s: %w", r.table.kind, field, err)
		}
		return q.scanRows(rows, rel.target)
	}
}

type txStore struct {
	querier
}

var _ orm.Tx = (*txStore)(nil)

func (tx *txStore) Create(ctx context.Context, kind string, fields *model.Fields) (orm.Object, error) {
	t, err := tx.schema.Table(kind)
	if err != nil {
		return nil, err
	}

	var (
		cols []string
		args []any
	)
	if t.PKType == TypeText {
		cols = append(cols, t.PK)
		args = append(args, uuid.NewString())
	}
	err = fields.Each(func(name string, value any) error {
		c, ok := t.column(name)
		if !ok {
			return fmt.Errorf("%s has no column %q", kind, name)
		}
		arg, err := toDB(tx.b.d, c, value)
		if err != nil {
			return err
		}
		cols = append(cols, name)
		args = append(args, arg)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var raw any
	if err := tx.q.QueryRowContext(ctx, tx.b.insert(t, cols), args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("inserting %s: %w", kind, err)
	}
	pk, err := keyFromDB(raw)
	if err != nil {
		return nil, err
	}

	r := &Row{table: t, dialect: tx.b.d, pk: pk, values: make(map[string]any, len(t.Columns)), fks: map[string]any{}}
	for _, c := range t.Columns {
		v, _ := fields.Get(c.Name)
		cv, err := model.CheckValue(c.Name, v)
		if err != nil {
			return nil, err
		}
		r.values[c.Name] = cv
	}
	return r, nil
}

func (tx *txStore) Save(ctx context.Context, obj orm.Object) error {
	r, ok := obj.(*Row)
	if !ok {
		return fmt.Errorf("object %s-%v does not belong to this store", obj.Kind(), obj.PK())
	}
	if len(r.dirty) == 0 {
		return nil
	}
	cols := make([]string, 0, len(r.dirty))
	for name := range r.dirty {
		cols = append(cols, name)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols)+1)
	for _, name := range cols {
		c, _ := r.table.column(name)
		arg, err := toDB(tx.b.d, c, r.values[name])
		if err != nil {
			return err
		}
		args = append(args, arg)
	}
	key, err := keyToDB(r.table, r.pk)
	if err != nil {
		return err
	}
	args = append(args, key)

	if _, err := tx.q.ExecContext(ctx, tx.b.update(r.table, cols), args...); err != nil {
		return fmt.Errorf("updating %s-%v: %w", r.table.kind, r.pk, err)
	}
	r.dirty = nil
	return nil
}

func (tx *txStore) relation(obj orm.Object, field, want string) (*Row, *Relation, error) {
	r, ok := obj.(*Row)
	if !ok {
		return nil, nil, fmt.Errorf("object %s-%v does not belong to this store", obj.Kind(), obj.PK())
	}
	rel := r.table.relation(field)
	if rel == nil {
		return nil, nil, fmt.Errorf("%s has no relation %q", r.table.kind, field)
	}
	if rel.Type != want {
		return nil, nil, fmt.Errorf("%s.%s is a %s relation, not %s", r.table.kind, field, rel.Type, want)
	}
	return r, rel, nil
}

func (tx *txStore) SetRelation(ctx context.Context, obj orm.Object, field string, target orm.Object) error {
	r, rel, err := tx.relation(obj, field, RelForeignKey)
	if err != nil {
		return err
	}
	var arg any
	if target != nil {
		if target.Kind() != rel.target.kind {
			return fmt.Errorf("%s.%s cannot point to %s", r.table.kind, field, target.Kind())
		}
		if arg, err = keyToDB(rel.target, target.PK()); err != nil {
			return err
		}
	}
	key, err := keyToDB(r.table, r.pk)
	if err != nil {
		return err
	}
	if _, err := tx.q.ExecContext(ctx, tx.b.update(r.table, []string{rel.fkColumn()}), arg, key); err != nil {
		return fmt.Errorf("linking %s-%v.%s: %w", r.table.kind, r.pk, field, err)
	}
	if target == nil {
		delete(r.fks, field)
	} else {
		r.fks[field], _ = keyFromDB(arg)
	}
	return nil
}

func (tx *txStore) SetMembers(ctx context.Context, obj orm.Object, field string, targets []orm.Object) error {
	r, rel, err := tx.relation(obj, field, RelManyToMany)
	if err != nil {
		return err
	}
	key, err := keyToDB(r.table, r.pk)
	if err != nil {
		return err
	}
	if _, err := tx.q.ExecContext(ctx, tx.b.clearMembers(r.table.joinTable(rel)), key); err != nil {
		return fmt.Errorf("clearing %s-%v.%s: %w", r.table.kind, r.pk, field, err)
	}
	return tx.addMembers(ctx, r, rel, key, targets)
}

func (tx *txStore) AddMembers(ctx context.Context, obj orm.Object, field string, targets []orm.Object) error {
	r, rel, err := tx.relation(obj, field, RelManyToMany)
	if err != nil {
		return err
	}
	key, err := keyToDB(r.table, r.pk)
	if err != nil {
		return err
	}
	return tx.addMembers(ctx, r, rel, key, targets)
}

func (tx *txStore) addMembers(ctx context.Context, r *Row, rel *Relation, key any, targets []orm.Object) error {
	query := tx.b.addMember(r.table.joinTable(rel))
	for _, target := range targets {
		if target.Kind() != rel.target.kind {
			return fmt.Errorf("%s.%s cannot hold %s", r.table.kind, rel.Name, target.Kind())
		}
		tk, err := keyToDB(rel.target, target.PK())
		if err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, query, key, tk); err != nil {
			return fmt.Errorf("adding %s-%v to %s-%v.%s: %w", target.Kind(), target.PK(), r.table.kind, r.pk, rel.Name, err)
		}
	}
	return nil
}
