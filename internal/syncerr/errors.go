// Package syncerr defines the error taxonomy shared across components
// (spec §7): a small set of kinds that the HTTP and realtime surfaces map
// to status codes / client-visible messages, as opposed to ad hoc error
// strings scattered through the codebase.
package syncerr

import "errors"

// Kind classifies an error for HTTP status / client message mapping.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindValidation             Kind = "validation"
	KindUnauthorized           Kind = "unauthorized"
	KindCapabilityUnavailable  Kind = "capability_unavailable"
	KindUpstreamFailure        Kind = "upstream_failure"
	KindRateLimited            Kind = "rate_limited"
)

// Error is a typed error carrying a Kind and an optional machine-readable
// Code (used for UpstreamFailure sub-classification per spec §7).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithCode attaches a machine-readable code (e.g. VIDEO_PRIVATE) and
// returns the same error for chaining.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// NotFound, Validation, Unauthorized, CapabilityUnavailable, Upstream and
// RateLimited are constructors for the six error kinds in spec §7.
func NotFound(message string) *Error             { return New(KindNotFound, message) }
func Validation(message string) *Error           { return New(KindValidation, message) }
func Unauthorized(message string) *Error         { return New(KindUnauthorized, message) }
func CapabilityUnavailable(message string) *Error { return New(KindCapabilityUnavailable, message) }
func Upstream(code, message string) *Error {
	return New(KindUpstreamFailure, message).WithCode(code)
}
func RateLimited(message string) *Error { return New(KindRateLimited, message) }

// KindOf extracts the Kind of err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
