// Package apperror provides the typed errors surfaced to API callers. Each
// error carries an HTTP status, a stable machine-readable code and a message
// that is safe to show to the client.
//
// Storage and other infrastructure errors are wrapped in Internal for logging
// and never reach the client.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Stable error codes. Callers branch on these, so they must not change.
const (
	CodeValidation         = "validation_error"
	CodeInvalidCredentials = "invalid_credentials"
	CodeLocked             = "account_locked"
	CodeTokenExpired       = "token_expired"
	CodeTokenInvalid       = "token_invalid"
	CodeInactive           = "principal_inactive"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeStorage            = "storage_error"
	CodeUnavailable        = "service_unavailable"
	CodeInternal           = "internal_error"
)

// AppError is the base error type for all domain errors.
type AppError struct {
	// Status is the HTTP status code.
	Status int

	// Code is the stable error classifier.
	Code string

	// Message is a human-readable description safe for the client.
	Message string

	// RetryAfter is set on lockout errors to the time the lock lifts.
	RetryAfter time.Time

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Is matches another *AppError by code, so sentinel comparisons like
// errors.Is(err, &AppError{Code: CodeLocked}) work.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewValidation(message string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeValidation, Message: message}
}

func NewInvalidCredentials() *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: CodeInvalidCredentials, Message: "invalid email or password"}
}

// NewLocked reports an active lockout that lifts at until.
func NewLocked(until time.Time) *AppError {
	return &AppError{
		Status:     http.StatusUnauthorized,
		Code:       CodeLocked,
		Message:    "account temporarily locked after repeated failed logins",
		RetryAfter: until,
	}
}

func NewTokenExpired() *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: CodeTokenExpired, Message: "token expired"}
}

func NewTokenInvalid(err error) *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: CodeTokenInvalid, Message: "invalid token", Internal: err}
}

func NewInactive() *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: CodeInactive, Message: "account no longer exists or is inactive"}
}

func NewForbidden(message string) *AppError {
	return &AppError{Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

func NewNotFound(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

func NewConflict(message string) *AppError {
	return &AppError{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// NewStorage wraps a backing store failure. The client sees a generic message.
func NewStorage(err error) *AppError {
	return &AppError{
		Status:   http.StatusInternalServerError,
		Code:     CodeStorage,
		Message:  "an unexpected error occurred, please try again",
		Internal: err,
	}
}

// NewUnavailable reports a dependent service that could not be reached.
func NewUnavailable(message string, err error) *AppError {
	return &AppError{Status: http.StatusServiceUnavailable, Code: CodeUnavailable, Message: message, Internal: err}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Status:   http.StatusInternalServerError,
		Code:     CodeInternal,
		Message:  "an unexpected error occurred, please try again",
		Internal: err,
	}
}

// From returns err as an *AppError, wrapping anything else as internal.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternal(err)
}

// HasCode reports whether err is an *AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
