// Package exporter describes how each exportable kind maps between live
// objects and container records.
package exporter

import "fmt"

// FieldType classifies an exported field.
type FieldType int

const (
	Plain FieldType = iota
	ForeignKey
	ReverseForeignKey
	ManyToMany
)

func (t FieldType) String() string {
	switch t {
	case Plain:
		return "plain"
	case ForeignKey:
		return "foreign_key"
	case ReverseForeignKey:
		return "reverse_foreign_key"
	case ManyToMany:
		return "many_to_many"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// ParseFieldType accepts the names produced by String, with hyphens or
// underscores.
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "plain", "":
		return Plain, nil
	case "foreign_key", "foreign-key", "fk":
		return ForeignKey, nil
	case "reverse_foreign_key", "reverse-foreign-key", "reverse_fk":
		return ReverseForeignKey, nil
	case "many_to_many", "many-to-many", "m2m":
		return ManyToMany, nil
	}
	return 0, fmt.Errorf("invalid field type %q", s)
}

// Field is one entry of an exporter's field list.
type Field struct {
	Name      string
	Type      FieldType
	Target    string // kind the relation points to; empty for plain fields
	AllowNull bool
}

// IsRelation reports whether the field points at other objects.
func (f Field) IsRelation() bool {
	return f.Type != Plain
}

// Many reports whether the field holds a list of references.
func (f Field) Many() bool {
	return f.Type == ReverseForeignKey || f.Type == ManyToMany
}

// PlainField declares a scalar field.
func PlainField(name string) Field {
	return Field{Name: name, Type: Plain, AllowNull: true}
}

// ForeignKeyField declares a to-one relation to target.
func ForeignKeyField(name, target string, allowNull bool) Field {
	return Field{Name: name, Type: ForeignKey, Target: target, AllowNull: allowNull}
}

// ReverseForeignKeyField declares the one-to-many side of a foreign key
// declared on target.
func ReverseForeignKeyField(name, target string) Field {
	return Field{Name: name, Type: ReverseForeignKey, Target: target, AllowNull: true}
}

// ManyToManyField declares a many-to-many relation to target.
func ManyToManyField(name, target string) Field {
	return Field{Name: name, Type: ManyToMany, Target: target, AllowNull: true}
}
