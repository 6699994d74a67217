// Package errors defines coded domain errors for the CardLink API.
//
// Services return typed errors; handlers either match them with errors.Is
// against the sentinels or unwrap to *Error and use HTTPStatus for the
// response code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code is a machine-readable error category.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeValidation         Code = "VALIDATION"
	CodeConflict           Code = "CONFLICT"
	CodeInternal           Code = "INTERNAL"
	CodeAlreadyConfigured  Code = "ALREADY_CONFIGURED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeUnavailable        Code = "UNAVAILABLE"
)

// statusByCode maps codes to HTTP responses. Unknown codes fall back to 500.
var statusByCode = map[Code]int{
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeConflict:           http.StatusConflict,
	CodeAlreadyConfigured:  http.StatusConflict,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeInvalidCredentials: http.StatusUnauthorized,
	CodeTokenExpired:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeValidation:         http.StatusBadRequest,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status for the code.
func (c Code) HTTPStatus() int {
	if status, ok := statusByCode[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is a domain error carrying a code, a user-facing message, and
// optional structured details such as per-field validation failures.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same code, so sentinels work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status for this error's code.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause returns a copy of the error wrapping an underlying cause.
func (e *Error) WithCause(err error) *Error {
	clone := *e
	clone.cause = err
	return &clone
}

// New creates an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors for use with errors.Is.
var (
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrAlreadyExists      = New(CodeAlreadyExists, "already exists")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrValidation         = New(CodeValidation, "validation error")
	ErrConflict           = New(CodeConflict, "conflict")
	ErrInternal           = New(CodeInternal, "internal error")
	ErrAlreadyConfigured  = New(CodeAlreadyConfigured, "already configured")
	ErrInvalidCredentials = New(CodeInvalidCredentials, "invalid credentials")
	ErrTokenExpired       = New(CodeTokenExpired, "token expired")
	ErrUnavailable        = New(CodeUnavailable, "service unavailable")
)

// Shorthand constructors for the common codes.

func NotFound(msg string) *Error      { return New(CodeNotFound, msg) }
func AlreadyExists(msg string) *Error { return New(CodeAlreadyExists, msg) }
func Forbidden(msg string) *Error     { return New(CodeForbidden, msg) }
func Validation(msg string) *Error    { return New(CodeValidation, msg) }
func Conflict(msg string) *Error      { return New(CodeConflict, msg) }
func Internal(msg string) *Error      { return New(CodeInternal, msg) }

// ValidationWithDetails creates a validation error carrying per-field
// messages.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// AlreadyConfigured creates an already configured error.
func AlreadyConfigured(msg string) *Error {
	return New(CodeAlreadyConfigured, msg)
}

// InvalidCredentials creates an invalid credentials error.
func InvalidCredentials(msg string) *Error {
	return New(CodeInvalidCredentials, msg)
}

// TokenExpired creates a token expired error.
func TokenExpired(msg string) *Error {
	return New(CodeTokenExpired, msg)
}
