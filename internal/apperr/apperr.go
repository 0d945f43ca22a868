// Package apperr defines the error kinds every public auth operation may
// fail with. Kinds inform the transport layer of the nature of the failure;
// anything not carrying a kind is treated as an internal error and its
// detail is never exposed to clients.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindBadRequest   Kind = "bad_request"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(code, format string, args ...interface{}) *Error {
	return newError(KindNotFound, code, format, args...)
}

func Unauthorizedf(code, format string, args ...interface{}) *Error {
	return newError(KindUnauthorized, code, format, args...)
}

func BadRequestf(code, format string, args ...interface{}) *Error {
	return newError(KindBadRequest, code, format, args...)
}

func Conflictf(code, format string, args ...interface{}) *Error {
	return newError(KindConflict, code, format, args...)
}

// Internal wraps a storage or collaborator failure. The wrapped error stays
// available for logs; clients only ever see the generic message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: "internal error", err: err}
}

// KindOf extracts the kind of err, defaulting to KindInternal for errors
// produced outside this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the client-consumable error code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

// MessageOf extracts the client-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
