package store

import (
	"fmt"
	"net/http"
)

// Error is a storage error carrying the HTTP status it should map to.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPCode returns the HTTP status associated with this error.
func (e *Error) HTTPCode() int { return e.Code }

// WithMessage returns a copy with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	clone := *e
	clone.Message = msg
	return &clone
}

// WithCause returns a copy wrapping an underlying error.
func (e *Error) WithCause(err error) *Error {
	clone := *e
	clone.Err = err
	return &clone
}

// Sentinel errors. The named variants share the status of the generic
// ones with a more specific message.
var (
	ErrNotFound      = &Error{Code: http.StatusNotFound, Message: "resource not found"}
	ErrAlreadyExists = &Error{Code: http.StatusConflict, Message: "resource already exists"}
	ErrInvalidInput  = &Error{Code: http.StatusBadRequest, Message: "invalid input"}
	ErrUnauthorized  = &Error{Code: http.StatusUnauthorized, Message: "unauthorized"}

	ErrUserNotFound    = ErrNotFound.WithMessage("user not found")
	ErrEmailTaken      = ErrAlreadyExists.WithMessage("email already in use")
	ErrSessionNotFound = ErrNotFound.WithMessage("session not found")
	ErrSessionExpired  = ErrUnauthorized.WithMessage("session expired")
)
