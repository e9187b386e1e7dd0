// Package apperr defines the single tagged error type used across the
// service. Every domain failure is one of a small set of kinds, each with a
// fixed HTTP status, so handlers translate errors without inspecting message
// text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

// Violation describes a single failed field check.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error carries a kind, a caller-facing message, and for validation failures
// the full list of field violations.
type Error struct {
	Kind       Kind
	Message    string
	Violations []Violation
	cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Status maps the error kind to its HTTP status code. Unknown kinds map to
// 500, matching the catch-all policy for unrecognized errors.
func (e *Error) Status() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an error of the given kind preserving the underlying cause for
// errors.Is/As chains and log output.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation builds a 422 error carrying the supplied violations.
func Validation(violations []Violation) *Error {
	return &Error{Kind: KindValidation, Message: "Invalid input.", Violations: violations}
}

// Authentication builds a 401 error.
func Authentication(message string) *Error {
	return New(KindAuthentication, message)
}

// Authorization builds a 403 error.
func Authorization(message string) *Error {
	return New(KindAuthorization, message)
}

// NotFound builds a 404 error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Conflict builds a 409 error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Internal wraps an unexpected failure as a 500 with a generic message.
func Internal(cause error) *Error {
	return Wrap(KindInternal, "An error occurred.", cause)
}

// From returns err as an *Error when it is one, or wraps it as internal
// otherwise. A nil err returns nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == kind
}
