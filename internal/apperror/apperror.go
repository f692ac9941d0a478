// Package apperror defines the single tagged error type used at service and
// HTTP boundaries. The Kind discriminates the failure and fixes the HTTP
// status and the stable machine-readable code shown to clients.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	KindUpstreamUnavailable   Kind = "UPSTREAM_UNAVAILABLE"
	KindCapacityExceeded      Kind = "CAPACITY_EXCEEDED"
	KindBroadcastWriteFailure Kind = "BROADCAST_WRITE_FAILURE"
	KindLifecycle             Kind = "CONNECTION_LIFECYCLE_ERROR"

	KindBadRequest   Kind = "BAD_REQUEST"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindNotFound     Kind = "NOT_FOUND"
	KindRateLimited  Kind = "RATE_LIMITED"
	KindInternal     Kind = "INTERNAL_ERROR"
)

// Error is a failure with a kind, a client-safe message, optional
// kind-specific details and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int {
	return StatusOf(e.Kind)
}

// WithDetail returns e after setting a detail key.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Upstream wraps a failed call to the music provider.
func Upstream(message string, cause error) *Error {
	return Wrap(KindUpstreamUnavailable, message, cause)
}

// CapacityExceeded reports a full connection registry.
func CapacityExceeded(limit, current int) *Error {
	return New(KindCapacityExceeded, "Max SSE connections reached, try again later").
		WithDetail("reason", "MAX_SSE_CONNECTIONS").
		WithDetail("maxConnections", limit).
		WithDetail("currentConnections", current)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for any other non-nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf maps a kind to an HTTP status code.
func StatusOf(kind Kind) int {
	switch kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindCapacityExceeded:
		return http.StatusServiceUnavailable
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindLifecycle:
		// Client closed request; only ever logged, headers are already out.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// GenericMessage is the production replacement for a kind's message.
func GenericMessage(kind Kind) string {
	switch kind {
	case KindBadRequest:
		return "Bad request"
	case KindUnauthorized:
		return "Not authenticated"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "Not found"
	case KindRateLimited:
		return "Too many requests"
	case KindCapacityExceeded:
		return "Service at capacity, try again later"
	case KindUpstreamUnavailable:
		return "Service temporarily unavailable"
	default:
		return "Internal Server Error"
	}
}
