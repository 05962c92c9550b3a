// Package policy holds the relink action vocabulary and the pluggable
// strategies that steer export and import.
package policy

import (
	"fmt"
	"strings"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// OverwriteAll as the only OverwriteFields entry overwrites every scalar
// field of a linked object.
const OverwriteAll = "__all__"

// Action tells the importer what to do with one record. The concrete types
// below are the only implementations.
type Action interface {
	action()
	String() string
}

// Create inserts a new object, skipping IgnoreFields.
type Create struct {
	IgnoreFields []string
}

// LinkByFields binds the record to the single existing object whose
// LookupFields equal the record's values. No match runs Fallback; a nil
// Fallback fails the import. More than one match is an ambiguity error.
type LinkByFields struct {
	LookupFields    []string
	OverwriteFields []string
	Fallback        Action
}

// LinkByPK binds the record to the existing object with the same primary
// key. Useful when source and target share key spaces.
type LinkByPK struct {
	OverwriteFields []string
	Fallback        Action
}

// LinkToInstance binds the record to the object with primary key PK.
type LinkToInstance struct {
	PK              any
	OverwriteFields []string
}

// Discard drops the record. Nullable references to it become null.
type Discard struct{}

// Fail aborts the whole import with Reason.
type Fail struct {
	Reason string
}

func (Create) action()         {}
func (LinkByFields) action()   {}
func (LinkByPK) action()       {}
func (LinkToInstance) action() {}
func (Discard) action()        {}
func (Fail) action()           {}

func (a Create) String() string {
	if len(a.IgnoreFields) == 0 {
		return "Create"
	}
	return fmt.Sprintf("Create(ignore=%s)", strings.Join(a.IgnoreFields, ","))
}

func (a LinkByFields) String() string {
	return fmt.Sprintf("LinkByFields(%s)%s", strings.Join(a.LookupFields, ","), fallbackString(a.Fallback))
}

func (a LinkByPK) String() string {
	return "LinkByPK" + fallbackString(a.Fallback)
}

func (a LinkToInstance) String() string {
	return fmt.Sprintf("LinkToInstance(%v)", a.PK)
}

func (Discard) String() string { return "Discard" }

func (a Fail) String() string { return fmt.Sprintf("Fail(%q)", a.Reason) }

func fallbackString(a Action) string {
	if a == nil {
		return ""
	}
	return " else " + a.String()
}

// Name returns a short snake_case label for a, used in logs and metrics.
func Name(a Action) string {
	switch a.(type) {
	case Create:
		return "create"
	case LinkByFields:
		return "link_by_fields"
	case LinkByPK:
		return "link_by_pk"
	case LinkToInstance:
		return "link_to_instance"
	case Discard:
		return "discard"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Validate checks an action and its fallbacks for missing payloads.
func Validate(a Action) error {
	switch v := a.(type) {
	case nil:
		return model.Configf("relink action is nil")
	case Create, Discard:
		return nil
	case Fail:
		if v.Reason == "" {
			return model.Configf("Fail action needs a reason")
		}
		return nil
	case LinkByFields:
		if len(v.LookupFields) == 0 {
			return model.Configf("LinkByFields needs at least one lookup field")
		}
		if err := validateOverwrite(v.OverwriteFields); err != nil {
			return err
		}
		if v.Fallback != nil {
			return Validate(v.Fallback)
		}
		return nil
	case LinkByPK:
		if err := validateOverwrite(v.OverwriteFields); err != nil {
			return err
		}
		if v.Fallback != nil {
			return Validate(v.Fallback)
		}
		return nil
	case LinkToInstance:
		if v.PK == nil {
			return model.Configf("LinkToInstance needs a primary key")
		}
		return validateOverwrite(v.OverwriteFields)
	default:
		return model.Configf("unknown relink action %T", a)
	}
}

func validateOverwrite(fields []string) error {
	for _, f := range fields {
		if f == OverwriteAll && len(fields) > 1 {
			return model.Configf("%s cannot be combined with other overwrite fields", OverwriteAll)
		}
		if f == "" {
			return model.Configf("empty overwrite field name")
		}
	}
	return nil
}

// Overwrites reports which fields of a linked object to overwrite: all when
// the list is OverwriteAll, the named ones otherwise, none when empty.
func Overwrites(fields []string) (all bool, only map[string]bool) {
	if len(fields) == 1 && fields[0] == OverwriteAll {
		return true, nil
	}
	if len(fields) == 0 {
		return false, nil
	}
	only = make(map[string]bool, len(fields))
	for _, f := range fields {
		only[f] = true
	}
	return false, only
}
