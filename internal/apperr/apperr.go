// Package apperr defines the error taxonomy surfaced to API callers.
// Each Kind maps to a stable HTTP status; the Message is safe to show
// to clients while the wrapped Err is only ever logged.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind int

const (
	// Internal is any failure not attributable to the caller.
	Internal Kind = iota

	// Unauthenticated means no valid credential was presented.
	Unauthenticated

	// Forbidden means the actor is authenticated but the policy denies.
	Forbidden

	// ValidationFailed covers malformed ids, missing required fields,
	// invalid enum values and unknown referenced users.
	ValidationFailed

	// NotFound means the referenced task or user is absent.
	NotFound

	// Conflict means the request collides with existing state.
	Conflict
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case ValidationFailed:
		return "validation_failed"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case ValidationFailed:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error of the given kind wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Unauthenticatedf returns an Unauthenticated error.
func Unauthenticatedf(format string, args ...any) *Error {
	return New(Unauthenticated, fmt.Sprintf(format, args...))
}

// Forbiddenf returns a Forbidden error.
func Forbiddenf(format string, args ...any) *Error {
	return New(Forbidden, fmt.Sprintf(format, args...))
}

// Invalidf returns a ValidationFailed error.
func Invalidf(format string, args ...any) *Error {
	return New(ValidationFailed, fmt.Sprintf(format, args...))
}

// NotFoundf returns a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Conflictf returns a Conflict error.
func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of err, or Internal if err (or any error in its
// chain) is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the message that may be shown to a client.
// Unclassified errors never leak their text.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != Internal {
		return appErr.Message
	}
	return "Internal server error"
}

// StatusCode returns the HTTP status code for err.
func StatusCode(err error) int {
	return KindOf(err).Status()
}
