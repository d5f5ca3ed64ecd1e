// Package brokererr defines the single error-kind taxonomy used to map
// internal failures onto client-visible HTTP statuses.
package brokererr

import (
	"errors"
	"net/http"
)

// Kind classifies an [Error] for the purpose of HTTP-status mapping and
// caller branching (errors.Is against the exported Err* sentinels below).
type Kind int

const (
	// KindInternal covers encryption failure, DB error, or anything unexpected.
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindValidation
	KindDuplicateName
	KindLimitExceeded
	KindConnectionFailed
	KindTimeout
	KindResourceExhausted
)

// String returns a short, lowercase name for the kind, suitable for logging.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindDuplicateName:
		return "duplicate_name"
	case KindLimitExceeded:
		return "limit_exceeded"
	case KindConnectionFailed:
		return "connection_failed"
	case KindTimeout:
		return "timeout"
	case KindResourceExhausted:
		return "resource_exhausted"
	default:
		return "internal"
	}
}

// Error is the broker's single structured error type. It wraps an underlying
// cause while attaching a [Kind] for boundary-level HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same Kind, allowing
// errors.Is(err, brokererr.New(brokererr.KindNotFound, "", nil)) style checks
// as well as direct kind comparison via [Is].
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an [Error] with the given kind, message, and optional cause.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of returns the Kind of err if err is (or wraps) a *Error, otherwise
// KindInternal.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err onto the client-visible HTTP status per the broker's
// error-kind table. Non-Error values map to 500.
func HTTPStatus(err error) int {
	switch Of(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindDuplicateName, KindLimitExceeded:
		return http.StatusBadRequest
	case KindConnectionFailed, KindTimeout, KindResourceExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
