package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindValidationFailed Kind = "validation_failed"
	KindUnavailable      Kind = "unavailable"
)

// Error is a Kind-tagged error. Message is safe to show to callers for
// ValidationFailed and Conflict kinds; Unauthorized and Forbidden messages
// stay deliberately generic.
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

func (e *Error) Unwrap() error { return e.Err }

// E creates a new Error with the given kind and message.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Unauthorized returns a generic credential failure. The message never
// distinguishes between unknown user, wrong password, or inactive account.
func Unauthorized() *Error {
	return E(KindUnauthorized, "invalid credentials")
}

// Forbidden returns a permission failure for the given code.
func Forbidden(code string) *Error {
	return Errorf(KindForbidden, "missing permission: %s", code)
}

// Unavailable wraps a storage failure.
func Unavailable(err error) *Error {
	return Wrap(KindUnavailable, "backing store unreachable", err)
}

// KindOf returns the Kind of err, or an empty Kind if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsUnauthorized(err error) bool     { return IsKind(err, KindUnauthorized) }
func IsForbidden(err error) bool        { return IsKind(err, KindForbidden) }
func IsNotFound(err error) bool         { return IsKind(err, KindNotFound) }
func IsConflict(err error) bool         { return IsKind(err, KindConflict) }
func IsValidationFailed(err error) bool { return IsKind(err, KindValidationFailed) }
func IsUnavailable(err error) bool      { return IsKind(err, KindUnavailable) }
