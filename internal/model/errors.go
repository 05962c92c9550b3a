package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrKindNotRegistered      = errors.New("kind not registered")
	ErrAttachmentsUnsupported = errors.New("attachments found but the import policy does not process them")
)

// FormatError reports a malformed or unsupported container stream.
type FormatError struct {
	Msg string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return "invalid container: " + e.Msg + ": " + e.Err.Error()
	}
	return "invalid container: " + e.Msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// Formatf builds a FormatError.
func Formatf(format string, args ...any) *FormatError {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}

// SerializationError reports a field value that cannot be written.
type SerializationError struct {
	ID     ID
	Field  string
	Value  any
	Reason string
}

func (e *SerializationError) Error() string {
	if e.ID.IsZero() {
		return fmt.Sprintf("cannot serialize field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("cannot serialize field %q of %s: %s", e.Field, e.ID, e.Reason)
}

// AmbiguousLinkError reports a lookup that matched more than one existing row.
type AmbiguousLinkError struct {
	Record     ID
	Kind       string
	Lookup     []string
	Values     []any
	Candidates []ID
}

func (e *AmbiguousLinkError) Error() string {
	pairs := make([]string, len(e.Lookup))
	for i, f := range e.Lookup {
		pairs[i] = fmt.Sprintf("%s=%v", f, e.Values[i])
	}
	cands := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		cands[i] = c.String()
	}
	return fmt.Sprintf("ambiguous link for %s: %s matched %d %s objects (%s)",
		e.Record, strings.Join(pairs, ", "), len(e.Candidates), e.Kind, strings.Join(cands, ", "))
}

// UnresolvedReferenceError reports a relation whose target was never imported.
type UnresolvedReferenceError struct {
	From  ID
	Field string
	To    ID
	// Discarded is set when the target was present but dropped by the policy.
	Discarded bool
}

func (e *UnresolvedReferenceError) Error() string {
	if e.Discarded {
		return fmt.Sprintf("unresolved reference %s.%s -> %s: target was discarded and the field is not nullable", e.From, e.Field, e.To)
	}
	return fmt.Sprintf("unresolved reference %s.%s -> %s: target is not in the container", e.From, e.Field, e.To)
}

// FailError is raised by a Fail relink action. Its message is the policy's
// reason, unchanged.
type FailError struct {
	ID     ID
	Reason string
}

func (e *FailError) Error() string { return e.Reason }

// ConfigError reports a mistake in exporter or policy configuration.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Msg }

// Configf builds a ConfigError.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}
