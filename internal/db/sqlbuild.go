package db

import (
	"fmt"
	"strings"
)

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteAll(idents []string) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = quote(id)
	}
	return out
}

// rebind rewrites ? placeholders into the dialect's form.
func rebind(d Dialect, query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) pkType(t string) string {
	switch {
	case t == TypeText:
		return "TEXT PRIMARY KEY"
	case d == Postgres:
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

func (d Dialect) keyType(pkType string) string {
	switch {
	case pkType == TypeText:
		return "TEXT"
	case d == Postgres:
		return "BIGINT"
	default:
		return "INTEGER"
	}
}

func (d Dialect) columnType(t string) string {
	if d == Postgres {
		switch t {
		case TypeInteger:
			return "BIGINT"
		case TypeReal:
			return "DOUBLE PRECISION"
		case TypeBool:
			return "BOOLEAN"
		case TypeTimestamp:
			return "TIMESTAMPTZ"
		case TypeBlob:
			return "BYTEA"
		case TypeJSON:
			return "JSONB"
		}
		return "TEXT"
	}
	switch t {
	case TypeInteger, TypeBool:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeBlob:
		return "BLOB"
	}
	// Timestamps and JSON are stored as text.
	return "TEXT"
}

// builder renders the statements the store needs for one dialect. Column
// order always follows the order given by the caller.
type builder struct {
	d Dialect
}

func (b builder) selectFrom(t *Table, where []string, orderByPK bool) string {
	cols := t.selectColumns()
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoteAll(cols), ", "), quote(t.Name))
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if orderByPK {
		q += " ORDER BY " + quote(t.PK)
	}
	return rebind(b.d, q)
}

func (b builder) selectJoined(target *Table, join string) string {
	cols := target.selectColumns()
	for i, c := range cols {
		cols[i] = "t." + quote(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s t JOIN %s j ON j.to_id = t.%s WHERE j.from_id = ? ORDER BY t.%s",
		strings.Join(cols, ", "), quote(target.Name), quote(join), quote(target.PK), quote(target.PK))
	return rebind(b.d, q)
}

func (b builder) insert(t *Table, cols []string) string {
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", quote(t.Name), quote(t.PK))
	}
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quote(t.Name), strings.Join(quoteAll(cols), ", "), ph, quote(t.PK))
	return rebind(b.d, q)
}

func (b builder) update(t *Table, cols []string) string {
	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = quote(c) + " = ?"
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(t.Name), strings.Join(set, ", "), quote(t.PK))
	return rebind(b.d, q)
}

func (b builder) clearMembers(join string) string {
	return rebind(b.d, fmt.Sprintf("DELETE FROM %s WHERE from_id = ?", quote(join)))
}

func (b builder) addMember(join string) string {
	return rebind(b.d, fmt.Sprintf("INSERT INTO %s (from_id, to_id) VALUES (?, ?) ON CONFLICT DO NOTHING", quote(join)))
}

// selectColumns lists the primary key, the scalar columns and the foreign
// key columns, in that order.
func (t *Table) selectColumns() []string {
	cols := []string{t.PK}
	for _, c := range t.Columns {
		cols = append(cols, c.Name)
	}
	for _, r := range t.Relations {
		if r.Type == RelForeignKey {
			cols = append(cols, r.fkColumn())
		}
	}
	return cols
}
