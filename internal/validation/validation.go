// Package validation defines the error returned for malformed caller input.
package validation

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every *Error via errors.Is.
var ErrInvalid = errors.New("validation failed")

// Error describes one rejected input field.
type Error struct {
	Field  string
	Reason string
}

// New returns an *Error for field.
func New(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

// Newf returns an *Error with a formatted reason.
func Newf(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is reports true for ErrInvalid.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}
