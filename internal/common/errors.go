// Package common defines shared constants and sentinel errors used across
// the livepoll client layers. Callers should use errors.Is to match these
// values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Local input errors. Never retried, shown next to the offending input.
	ErrValidation = errors.New("validation error")

	// Transport errors: no response reached us (timeout, unreachable).
	ErrUnavailable = errors.New("server unavailable")

	// Status-derived server errors.
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limited")
	ErrBadRequest   = errors.New("bad request")
	ErrServer       = errors.New("server error")

	// Session errors.
	ErrNotAuthenticated = errors.New("not logged in")
	ErrNoActivePoll     = errors.New("no active poll")
)

// ValidationError describes rejected local input. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
