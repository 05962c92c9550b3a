package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ALT-F4-LLC/haul/internal/exporter"
	"github.com/ALT-F4-LLC/haul/internal/model"
)

const currentSchemaVersion = 1

// Column types understood by the store.
const (
	TypeInteger   = "integer"
	TypeReal      = "real"
	TypeText      = "text"
	TypeBool      = "bool"
	TypeTimestamp = "timestamp"
	TypeBlob      = "blob"
	TypeJSON      = "json"
)

// Relation types, named like exporter.FieldType.
const (
	RelForeignKey        = "foreign_key"
	RelReverseForeignKey = "reverse_foreign_key"
	RelManyToMany        = "many_to_many"
)

// Schema describes the tables of one namespace. Every table is one kind,
// "namespace:table".
type Schema struct {
	Namespace string   `yaml:"namespace" validate:"required,ident"`
	Tables    []*Table `yaml:"tables" validate:"required,min=1,dive"`

	byName map[string]*Table
}

// Table is one model.
type Table struct {
	Name      string      `yaml:"name" validate:"required,ident"`
	PK        string      `yaml:"pk" validate:"omitempty,ident"`
	PKType    string      `yaml:"pk_type" validate:"omitempty,oneof=integer text"`
	Columns   []Column    `yaml:"columns" validate:"dive"`
	Relations []*Relation `yaml:"relations" validate:"dive"`

	kind string
}

// Column is a scalar field.
type Column struct {
	Name     string `yaml:"name" validate:"required,ident"`
	Type     string `yaml:"type" validate:"required,oneof=integer real text bool timestamp blob json"`
	Required bool   `yaml:"required"`
	Unique   bool   `yaml:"unique"`
}

// Relation is a link to another table. Foreign keys live in the column
// <name>_id; many-to-many members in the join table <table>_<name>; reverse
// foreign keys name the foreign key on the target table in Via.
type Relation struct {
	Name     string `yaml:"name" validate:"required,ident"`
	Type     string `yaml:"type" validate:"required,oneof=foreign_key reverse_foreign_key many_to_many"`
	Target   string `yaml:"target" validate:"required,ident"`
	Nullable bool   `yaml:"nullable"`
	Via      string `yaml:"via" validate:"omitempty,ident"`

	target *Table
}

var (
	schemaValidate *validator.Validate
	identRe        = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

func init() {
	schemaValidate = validator.New()
	_ = schemaValidate.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identRe.MatchString(fl.Field().String())
	})
}

// LoadSchema reads and validates a YAML schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	return ParseSchema(data)
}

// ParseSchema decodes and validates a YAML schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, model.Configf("parsing schema: %v", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the schema and resolves relation targets. It must be
// called before the schema is used; ParseSchema does so.
func (s *Schema) Validate() error {
	if err := schemaValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag())
			}
			return model.Configf("invalid schema: %s", strings.Join(msgs, "; "))
		}
		return model.Configf("invalid schema: %v", err)
	}

	s.byName = make(map[string]*Table, len(s.Tables))
	for _, t := range s.Tables {
		if _, dup := s.byName[t.Name]; dup {
			return model.Configf("table %s declared twice", t.Name)
		}
		if t.PK == "" {
			t.PK = "id"
		}
		if t.PKType == "" {
			t.PKType = TypeInteger
		}
		t.kind = model.Kind(s.Namespace, t.Name)
		s.byName[t.Name] = t
	}

	for _, t := range s.Tables {
		names := map[string]bool{t.PK: true}
		for _, c := range t.Columns {
			if names[c.Name] {
				return model.Configf("%s.%s declared twice", t.Name, c.Name)
			}
			names[c.Name] = true
		}
		for _, r := range t.Relations {
			if names[r.Name] || names[r.Name+"_id"] {
				return model.Configf("%s.%s clashes with another field", t.Name, r.Name)
			}
			names[r.Name] = true
			if r.Type == RelForeignKey {
				names[r.Name+"_id"] = true
			}
			target, ok := s.byName[r.Target]
			if !ok {
				return model.Configf("%s.%s points to unknown table %s", t.Name, r.Name, r.Target)
			}
			r.target = target
		}
	}

	for _, t := range s.Tables {
		for _, r := range t.Relations {
			if r.Type != RelReverseForeignKey {
				continue
			}
			back := r.target.relation(r.Via)
			if back == nil || back.Type != RelForeignKey || back.Target != t.Name {
				return model.Configf("%s.%s: %s.%s is not a foreign key to %s", t.Name, r.Name, r.Target, r.Via, t.Name)
			}
		}
	}
	return nil
}

// Table returns the table for kind.
func (s *Schema) Table(kind string) (*Table, error) {
	ns, name, err := model.ParseKind(kind)
	if err != nil || ns != s.Namespace {
		return nil, fmt.Errorf("%w: %s", model.ErrKindNotRegistered, kind)
	}
	t, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrKindNotRegistered, kind)
	}
	return t, nil
}

// Kinds lists the kinds of all tables in declaration order.
func (s *Schema) Kinds() []string {
	out := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		out[i] = t.kind
	}
	return out
}

// Exporters derives one exporter per table: every column as a plain field
// followed by the relations.
func (s *Schema) Exporters() (*exporter.Registry, error) {
	reg, err := exporter.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, t := range s.Tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name
		}
		declared := make([]exporter.Field, 0, len(t.Relations))
		for _, r := range t.Relations {
			switch r.Type {
			case RelForeignKey:
				declared = append(declared, exporter.ForeignKeyField(r.Name, r.target.kind, r.Nullable))
			case RelReverseForeignKey:
				declared = append(declared, exporter.ReverseForeignKeyField(r.Name, r.target.kind))
			case RelManyToMany:
				declared = append(declared, exporter.ManyToManyField(r.Name, r.target.kind))
			}
		}
		e, err := exporter.Derive(t.kind, t.PK, cols, declared...)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}
	return reg, reg.Validate()
}

// Kind returns the table's kind tag.
func (t *Table) Kind() string { return t.kind }

func (t *Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t *Table) relation(name string) *Relation {
	for _, r := range t.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (r *Relation) fkColumn() string { return r.Name + "_id" }

func (t *Table) joinTable(r *Relation) string { return t.Name + "_" + r.Name }

// DDL renders the CREATE statements for the schema. Foreign key columns are
// always nullable so rows can be inserted before their links are known;
// nullability of relations is enforced by the importer.
func (s *Schema) DDL(d Dialect) []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS haul_meta (
	key   TEXT PRIMARY KEY,
	value TEXT
)`,
	}
	for _, t := range s.Tables {
		var cols []string
		cols = append(cols, fmt.Sprintf("%s %s", quote(t.PK), d.pkType(t.PKType)))
		for _, c := range t.Columns {
			def := fmt.Sprintf("%s %s", quote(c.Name), d.columnType(c.Type))
			if c.Required {
				def += " NOT NULL"
			}
			if c.Unique {
				def += " UNIQUE"
			}
			cols = append(cols, def)
		}
		for _, r := range t.Relations {
			if r.Type != RelForeignKey {
				continue
			}
			def := fmt.Sprintf("%s %s", quote(r.fkColumn()), d.keyType(r.target.PKType))
			if d == SQLite {
				def += fmt.Sprintf(" REFERENCES %s(%s) ON DELETE SET NULL", quote(r.target.Name), quote(r.target.PK))
			}
			cols = append(cols, def)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(t.Name), strings.Join(cols, ",\n\t")))
	}
	for _, t := range s.Tables {
		for _, r := range t.Relations {
			switch r.Type {
			case RelForeignKey:
				if d == Postgres {
					// Tables may reference each other, so constraints are
					// added once every table exists.
					stmts = append(stmts, fmt.Sprintf(`DO $$ BEGIN
	ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE SET NULL;
EXCEPTION WHEN duplicate_object THEN NULL;
END $$`,
						quote(t.Name), quote("fk_"+t.Name+"_"+r.fkColumn()), quote(r.fkColumn()), quote(r.target.Name), quote(r.target.PK)))
				}
				stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
					quote("idx_"+t.Name+"_"+r.fkColumn()), quote(t.Name), quote(r.fkColumn())))
			case RelManyToMany:
				stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	from_id %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
	to_id   %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
	PRIMARY KEY (from_id, to_id)
)`,
					quote(t.joinTable(r)),
					d.keyType(t.PKType), quote(t.Name), quote(t.PK),
					d.keyType(r.target.PKType), quote(r.target.Name), quote(r.target.PK)))
			}
		}
	}
	return stmts
}

// Initialize creates all tables if they don't exist and sets the schema version.
func Initialize(ctx context.Context, db *sql.DB, d Dialect, s *Schema) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range s.DDL(d) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	// Set schema version only if not already set.
	_, err = tx.ExecContext(ctx,
		rebind(d, `INSERT INTO haul_meta (key, value) VALUES ('schema_version', ?) ON CONFLICT (key) DO NOTHING`),
		strconv.Itoa(currentSchemaVersion),
	)
	if err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}

	return tx.Commit()
}

// SchemaVersion returns the current schema version from the meta table.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var val string
	err := db.QueryRowContext(ctx, `SELECT value FROM haul_meta WHERE key = 'schema_version'`).Scan(&val)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	v, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parsing schema version %q: %w", val, err)
	}

	return v, nil
}
