// Package service implements the short-code resolver and the slot
// reservation engine on top of injected storage, cache and verification
// collaborators.  Every failure leaving this package is one of the
// sentinels below, so handlers branch with errors.Is.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input.  Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the code or slot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSoldOut means the party no longer fits in the slot.
	ErrSoldOut = errors.New("sold out")
	// ErrTransient covers timeouts and unexpected backend failures.
	ErrTransient = errors.New("temporarily unavailable")
	// ErrCodeTaken means no free short code could be secured.
	ErrCodeTaken = errors.New("short code unavailable")
	// ErrVerificationFailed is a rejected or reused challenge token.  It is
	// a validation error.
	ErrVerificationFailed = fmt.Errorf("%w: verification failed", ErrValidation)
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// Reason returns the short machine-readable reason for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSoldOut):
		return "sold_out"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCodeTaken):
		return "code_taken"
	case errors.Is(err, ErrTransient):
		return "unavailable"
	default:
		return "error"
	}
}
