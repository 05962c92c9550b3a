package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ALT-F4-LLC/haul/internal/model"
	"github.com/ALT-F4-LLC/haul/internal/orm"
)

// Rules is a table-driven ImportPolicy: one action per kind, Default (or
// Create) for the rest. When AttachmentDir is set, attachments are staged
// below it and moved to <kind>/<pk>/<key> when the import commits.
type Rules struct {
	DefaultImport

	Actions       map[string]Action
	Default       Action
	AppendM2M     map[string]bool // "kind.field"
	AttachmentDir string

	staged []stagedFile
}

type stagedFile struct {
	tmp, path string
}

var _ Finalizer = (*Rules)(nil)

// NewRules returns an empty rule table.
func NewRules() *Rules {
	return &Rules{Actions: map[string]Action{}, AppendM2M: map[string]bool{}}
}

// Set assigns the action for kind.
func (r *Rules) Set(kind string, a Action) error {
	if _, _, err := model.ParseKind(kind); err != nil {
		return model.Configf("%v", err)
	}
	if err := Validate(a); err != nil {
		return fmt.Errorf("rule for %s: %w", kind, err)
	}
	if r.Actions == nil {
		r.Actions = map[string]Action{}
	}
	r.Actions[kind] = a
	return nil
}

func (r *Rules) RelinkObject(_ context.Context, _ orm.Querier, rec *model.Record) (Action, error) {
	if a, ok := r.Actions[rec.Kind()]; ok {
		return a, nil
	}
	if r.Default != nil {
		return r.Default, nil
	}
	return Create{}, nil
}

func (r *Rules) ManyToMany(kind, field string) M2MMode {
	if r.AppendM2M[kind+"."+field] {
		return Append
	}
	return Replace
}

func (r *Rules) ProcessAttachment(ctx context.Context, obj orm.Object, key any, src io.Reader) error {
	if r.AttachmentDir == "" {
		return r.DefaultImport.ProcessAttachment(ctx, obj, key, src)
	}
	dir := filepath.Join(r.AttachmentDir, strings.ReplaceAll(obj.Kind(), ":", "_"), fmt.Sprint(obj.PK()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating attachment directory: %w", err)
	}
	name := filepath.Base(fmt.Sprint(key))
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("attachment key %v is not a usable file name", key)
	}
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating attachment file: %w", err)
	}
	r.staged = append(r.staged, stagedFile{tmp: f.Name(), path: filepath.Join(dir, name)})
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("writing attachment: %w", err)
	}
	return f.Close()
}

// Finalize moves staged attachments into place after a commit and removes
// them after a rollback.
func (r *Rules) Finalize(committed bool) error {
	staged := r.staged
	r.staged = nil

	var errs []error
	for _, sf := range staged {
		if committed {
			if err := os.Rename(sf.tmp, sf.path); err != nil {
				errs = append(errs, fmt.Errorf("placing attachment %s: %w", sf.path, err))
			}
			continue
		}
		if err := os.Remove(sf.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing staged attachment: %w", err))
		}
		// Only succeeds for directories this import left empty.
		_ = os.Remove(filepath.Dir(sf.tmp))
	}
	return errors.Join(errs...)
}

// ParseLinkRule parses "kind=field1,field2".
func ParseLinkRule(s string) (kind string, fields []string, err error) {
	kind, list, ok := strings.Cut(s, "=")
	if !ok || kind == "" || list == "" {
		return "", nil, fmt.Errorf("invalid link rule %q: expected kind=field[,field...]", s)
	}
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			return "", nil, fmt.Errorf("invalid link rule %q: empty field name", s)
		}
		fields = append(fields, f)
	}
	return kind, fields, nil
}
