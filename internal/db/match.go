package db

import (
	"strconv"
	"strings"
	"time"

	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
)

// ParseMatch turns a "field=value" filter typed on the command line into a
// match for kind. The value is parsed according to the field's column
// type; "null" matches NULL. Primary keys and foreign keys take the
// target's key as text.
func (s *Schema) ParseMatch(kind, expr string) (orm.Match, error) {
	field, raw, ok := strings.Cut(expr, "=")
	if !ok || field == "" {
		return orm.Match{}, model.Configf("invalid filter %q: expected field=value", expr)
	}
	t, err := s.Table(kind)
	if err != nil {
		return orm.Match{}, err
	}
	if raw == "null" {
		return orm.Match{Field: field}, nil
	}
	if field == t.PK {
		return orm.Match{Field: field, Value: raw}, nil
	}
	if rel := t.relation(field); rel != nil {
		if rel.Type != RelForeignKey {
			return orm.Match{}, model.Configf("%s: cannot filter on %s relation %q", kind, rel.Type, field)
		}
		return orm.Match{Field: field, Value: raw}, nil
	}
	c, ok := t.column(field)
	if !ok {
		return orm.Match{}, model.Configf("%s has no field %q", kind, field)
	}

	var v any
	switch c.Type {
	case TypeText:
		v = raw
	case TypeInteger:
		v, err = strconv.ParseInt(raw, 10, 64)
	case TypeReal:
		v, err = strconv.ParseFloat(raw, 64)
	case TypeBool:
		v, err = strconv.ParseBool(raw)
	case TypeTimestamp:
		v, err = time.Parse(time.RFC3339, raw)
	default:
		return orm.Match{}, model.Configf("%s: cannot filter on %s column %q", kind, c.Type, field)
	}
	if err != nil {
		return orm.Match{}, model.Configf("%s.%s: invalid %s value %q", kind, field, c.Type, raw)
	}
	return orm.Match{Field: field, Value: v}, nil
}
