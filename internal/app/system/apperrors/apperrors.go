// internal/app/system/apperrors/apperrors.go
package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced student, group, or project does
// not exist. Stores map mongo.ErrNoDocuments to this sentinel so callers
// never depend on the driver's error values.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an optimistic-concurrency write still fails
// after its retry budget. A single version miss is recovered internally by
// re-reading and reapplying; only exhaustion surfaces.
var ErrConflict = errors.New("write conflict: version retries exhausted")

// ValidationError reports malformed or out-of-stage input. It is surfaced
// directly to the immediate caller and never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validation builds a ValidationError for a field.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
