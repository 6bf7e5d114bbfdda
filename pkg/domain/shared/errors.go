// Package shared provides shared domain types and utilities.
package shared

import "errors"

// Domain errors. Handlers map these onto HTTP status codes; services and
// repositories wrap them with context via fmt.Errorf("...: %w", ...).
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation error")
	ErrTransient     = errors.New("transient storage failure")
)

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsForbidden checks if the error is a permission error.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsTransient checks if the error is a retryable infrastructure failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
