package engine

import (
	"errors"
	"fmt"
)

// InvariantError reports a broken internal invariant, such as a hidden
// argument that is needed without the implicit-argument pointer it is read
// through, or a query for an attribute kind outside the allow-list.
//
// Invariant errors are programming errors. They are raised with panic and
// never returned as ordinary errors; outer layers may recover them.
type InvariantError struct {
	// Code identifies the error category.
	Code InvariantErrorCode

	// Kind is the attribute kind that detected the violation.
	Kind Kind

	// Function names the function the attribute is attached to.
	Function string

	// Message is a human-readable description.
	Message string
}

// InvariantErrorCode categorizes invariant errors.
type InvariantErrorCode string

const (
	// ErrCodeInvariant indicates an attribute found an impossible state.
	ErrCodeInvariant InvariantErrorCode = "INVARIANT_VIOLATION"

	// ErrCodeUnknownKind indicates a query for an unregistered kind.
	ErrCodeUnknownKind InvariantErrorCode = "UNKNOWN_KIND"

	// ErrCodeBadPosition indicates a kind was requested at a position it
	// does not support.
	ErrCodeBadPosition InvariantErrorCode = "BAD_POSITION"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: %s (kind=%s, function=%s)", e.Code, e.Message, e.Kind, e.Function)
	}
	return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
}

// Violation panics with an InvariantError for kind at fn.
func Violation(kind Kind, fn string, format string, args ...any) {
	panic(&InvariantError{
		Code:     ErrCodeInvariant,
		Kind:     kind,
		Function: fn,
		Message:  fmt.Sprintf(format, args...),
	})
}

// IsInvariantError returns true if err is an InvariantError.
// Uses errors.As to handle wrapped errors.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// RecoverInvariant converts a recovered panic value into an error when it is
// an InvariantError, and re-panics otherwise. Use in a deferred function:
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = engine.RecoverInvariant(r)
//	    }
//	}()
func RecoverInvariant(r any) error {
	if ie, ok := r.(*InvariantError); ok {
		return ie
	}
	panic(r)
}
