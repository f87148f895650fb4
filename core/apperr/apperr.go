// Package apperr defines the error taxonomy shared by the services and the
// HTTP layer. Services return *Error values; everything else is treated as
// an internal failure.
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
	KindUnauthorized
	KindForbidden
	KindConflict
	KindNotFound
	KindInvalidOperation
	KindInvalidOrExpiredToken
)

// MsgInternal is shown to clients for every unexpected failure.
const MsgInternal = "서버 오류가 발생했습니다."

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindInvalidOrExpiredToken:
		return "invalid_or_expired_token"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind onto a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInvalidOperation, KindInvalidOrExpiredToken:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is an application error carrying a client-safe message.
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

// Is matches another *Error of the same kind, so sentinel comparisons like
// errors.Is(err, apperr.NotFound("")) work regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) *Error       { return newError(KindValidation, msg) }
func Unauthorized(msg string) *Error     { return newError(KindUnauthorized, msg) }
func Forbidden(msg string) *Error        { return newError(KindForbidden, msg) }
func Conflict(msg string) *Error         { return newError(KindConflict, msg) }
func NotFound(msg string) *Error         { return newError(KindNotFound, msg) }
func InvalidOperation(msg string) *Error { return newError(KindInvalidOperation, msg) }

func InvalidOrExpiredToken(msg string) *Error {
	return newError(KindInvalidOrExpiredToken, msg)
}

// Internal wraps an unexpected failure. The cause is kept for logging and
// never shown to clients.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return MsgInternal
}

// Status returns the HTTP status for err.
func Status(err error) int {
	return KindOf(err).HTTPStatus()
}
