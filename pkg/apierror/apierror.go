// Package apierror defines the JSON error envelope every handler and
// middleware writes on failure. Clients switch on the code field; the
// message is for humans.
package apierror

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Code is the machine-readable error discriminator.
type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeValidationFailed   Code = "VALIDATION_FAILED"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error is an API error. It marshals directly as the response body; the
// HTTP status travels out of band.
type Error struct {
	Status  int    `json:"-"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WriteJSON writes the error to w with its status code.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}

// New creates an error with an explicit status and code, for cases the
// shorthand constructors below don't cover.
func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

// NotFound names the missing resource, e.g. NotFound("Asset") renders
// "Asset not found".
func NotFound(resource string) *Error {
	if resource == "" {
		resource = "Resource"
	}
	return New(http.StatusNotFound, CodeNotFound, resource+" not found")
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

// ValidationFailed carries per-field details, typically a
// []ValidationError built from validator output.
func ValidationFailed(message string, details any) *Error {
	err := New(http.StatusUnprocessableEntity, CodeValidationFailed, message)
	err.Details = details
	return err
}

func InternalServerError(message string) *Error {
	return New(http.StatusInternalServerError, CodeInternalError, message)
}

func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, message)
}

// ServiceUnavailable signals a retryable backend outage; clients should
// back off and retry.
func ServiceUnavailable(message string) *Error {
	return New(http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// ValidationError is one field-level failure inside a validation response.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
