package directory

import (
	"errors"
	"fmt"
)

// Sentinel errors for directory lookups.
var (
	ErrNotFound    = errors.New("directory: profile not found")
	ErrRateLimited = errors.New("directory: rate limited by server")
	ErrBadRequest  = errors.New("directory: bad request")
	ErrServer      = errors.New("directory: server error")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op     string // Operation: "fetchProfile"
	UserID string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("directory %s [%s]: %v", e.Op, e.UserID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapError creates an Error with context.
func wrapError(op, userID string, err error) error {
	return &Error{
		Op:     op,
		UserID: userID,
		Err:    err,
	}
}
