// Package apierr defines the closed error-kind alphabet used across the
// REST dispatcher and Git smart-HTTP adapter, and its mapping to HTTP
// status codes.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind is one of a closed set of error classifications. Every response
// with a non-nil error carries exactly one of these.
type Kind string

const (
	BadRequest         Kind = "BadRequest"
	Unauthenticated    Kind = "Unauthenticated"
	Forbidden          Kind = "Forbidden"
	NotFound           Kind = "NotFound"
	Conflict           Kind = "Conflict"
	UnprocessableEntity Kind = "UnprocessableEntity"
	PayloadTooLarge    Kind = "PayloadTooLarge"
	Internal           Kind = "Internal"
	AmbiguousRevision  Kind = "AmbiguousRevision"
)

var statusByKind = map[Kind]int{
	BadRequest:          http.StatusBadRequest,
	Unauthenticated:     http.StatusUnauthorized,
	Forbidden:           http.StatusForbidden,
	NotFound:            http.StatusNotFound,
	Conflict:            http.StatusConflict,
	UnprocessableEntity: http.StatusUnprocessableEntity,
	PayloadTooLarge:     http.StatusRequestEntityTooLarge,
	Internal:            http.StatusInternalServerError,
	AmbiguousRevision:   http.StatusUnprocessableEntity,
}

// Error is the concrete error type every handler returns instead of
// writing a status code directly.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code this error's kind maps to.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an internal cause to an Internal-kind error without
// exposing the cause's text to the client.
func Wrap(cause error, message string) *Error {
	return &Error{Kind: Internal, Message: message, cause: cause}
}

// WithDetails returns a copy of e carrying the given structured details.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}
