package model

// CurrentVersion is the newest container format version this build reads and
// the version it writes.
const CurrentVersion = 1

// Header is the first document of every container stream.
type Header struct {
	Version     int
	ObjectKinds []string
	Metadata    any
}

// Record is one exported object: its identity, its field data in declaration
// order, and any attachments.
type Record struct {
	ID          ID
	Data        *Fields
	Attachments []Attachment
}

// Kind returns the record's kind tag.
func (r *Record) Kind() string {
	return r.ID.Kind
}

// Ref is a relation value read from a record that still has to be resolved
// against the target database.
type Ref struct {
	Field    string
	IDs      []ID
	Many     bool
	Nullable bool
	// Weak references are followed at export time only; the other side of
	// the relation carries the link on import.
	Weak bool
}
