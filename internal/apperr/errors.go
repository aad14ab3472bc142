package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindInvalidInput  Kind = "invalid_input"
	KindUnauthorized  Kind = "unauthorized"
	KindUpstream      Kind = "upstream"
	KindConflict      Kind = "conflict"
	KindConfiguration Kind = "configuration"
	KindUnexpected    Kind = "unexpected"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind   // Error classification
	Message string // Human-readable detail returned to clients
	Status  int    // Upstream HTTP status, only set for KindUpstream
	Err     error  // Wrapped cause, may be nil
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err with the given kind and message
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFound reports a missing identity or configuration.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// InvalidInput reports malformed client input.
func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, fmt.Sprintf(format, args...))
}

// Unauthorized reports a missing or unrefreshable token.
func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, fmt.Sprintf(format, args...))
}

// Conflict reports a slot that is already reserved.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

// Configuration reports a company configuration that can never be satisfied.
func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, fmt.Sprintf(format, args...))
}

// Upstream reports a non-2xx response from the calendar provider.
// The provider's status and body are kept verbatim.
func Upstream(status int, body string) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: body}
}

// KindOf returns the kind of err, or KindUnexpected when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the HTTP status code returned to clients.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the client-facing message for err. Unexpected errors
// carry their cause.
func Detail(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Kind == KindUnexpected || e.Message == "" {
		return e.Error()
	}
	return e.Message
}
