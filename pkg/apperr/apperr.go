// Package apperr defines the error taxonomy shared by the handlers and
// services so that every failure maps to exactly one HTTP status
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	// CodeValidation covers everything rejected before the engine runs:
	// empty files, oversize bodies, unsupported media types
	CodeValidation Code = "VALIDATION"

	// CodeCodec means processing was attempted and the underlying
	// compressor/converter failed or timed out
	CodeCodec Code = "CODEC"

	// CodeStorage covers blob read/write/delete failures
	CodeStorage Code = "STORAGE"

	// CodeNotFound covers unknown and expired records alike
	CodeNotFound Code = "NOT_FOUND"

	// CodeAuth means a credential was missing or invalid
	CodeAuth Code = "AUTH"

	// CodeForbidden means the credential was valid but doesn't own the record
	CodeForbidden Code = "FORBIDDEN"

	// CodeConflict means an illegal lifecycle transition was requested
	CodeConflict Code = "CONFLICT"
)

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

func Validation(msg string) *Error { return New(CodeValidation, msg) }
func NotFound(msg string) *Error   { return New(CodeNotFound, msg) }
func Auth(msg string) *Error       { return New(CodeAuth, msg) }
func Forbidden(msg string) *Error  { return New(CodeForbidden, msg) }
func Conflict(msg string) *Error   { return New(CodeConflict, msg) }

func Codec(msg string, err error) *Error   { return Wrap(CodeCodec, msg, err) }
func Storage(msg string, err error) *Error { return Wrap(CodeStorage, msg, err) }

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Status maps an error to the HTTP status a handler should answer with.
// Unknown errors are treated as internal.
func Status(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeCodec:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing message for an error. Internal errors
// are collapsed into a generic message so details never leak to clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "Internal server error"
}
