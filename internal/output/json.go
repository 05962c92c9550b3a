package output

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// ErrorCode represents a machine-readable error classification.
type ErrorCode string

// Error code constants.
const (
	ErrGeneral    ErrorCode = "GENERAL_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrFormat     ErrorCode = "INVALID_CONTAINER"
	ErrAborted    ErrorCode = "IMPORT_ABORTED"
)

// Exit code constants.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitNotFound   = 2
	ExitValidation = 3
	ExitConflict   = 4
	ExitFormat     = 5
	ExitAborted    = 6
)

// ExitCodeForError maps an ErrorCode to its corresponding exit code.
func ExitCodeForError(code ErrorCode) int {
	switch code {
	case ErrNotFound:
		return ExitNotFound
	case ErrValidation:
		return ExitValidation
	case ErrConflict:
		return ExitConflict
	case ErrFormat:
		return ExitFormat
	case ErrAborted:
		return ExitAborted
	default:
		return ExitGeneral
	}
}

// CodeFor classifies an export or import error.
func CodeFor(err error) ErrorCode {
	var (
		formatErr     *model.FormatError
		ambiguousErr  *model.AmbiguousLinkError
		unresolvedErr *model.UnresolvedReferenceError
		failErr       *model.FailError
		configErr     *model.ConfigError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &failErr), errors.Is(err, context.Canceled):
		return ErrAborted
	case errors.As(err, &formatErr):
		return ErrFormat
	case errors.As(err, &ambiguousErr), errors.As(err, &unresolvedErr):
		return ErrConflict
	case errors.As(err, &configErr), errors.Is(err, model.ErrKindNotRegistered),
		errors.Is(err, model.ErrAttachmentsUnsupported):
		return ErrValidation
	case errors.Is(err, os.ErrNotExist):
		return ErrNotFound
	default:
		return ErrGeneral
	}
}

type successEnvelope struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type errorEnvelope struct {
	OK    bool      `json:"ok"`
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// writeJSONSuccess writes a success envelope to w.
func writeJSONSuccess(w io.Writer, data any, message string) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(successEnvelope{
		OK:      true,
		Data:    data,
		Message: message,
	})
}

// writeJSONError writes an error envelope to w.
func writeJSONError(w io.Writer, err error, code ErrorCode) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(errorEnvelope{
		OK:    false,
		Error: err.Error(),
		Code:  code,
	})
}
