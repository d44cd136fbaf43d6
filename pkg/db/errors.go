package db

import "errors"

// Error is the single error type surfaced for any failed query. It carries
// only the driver's message, never the driver error itself, so callers can
// match one type regardless of the underlying driver. Absence of a row is
// never an Error; it is reported through empty results.
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return e.msg
}

// NewError creates an Error from a plain message.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// wrapError converts a driver error into an *Error. Errors that are already
// typed pass through unchanged.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr
	}
	return &Error{msg: err.Error()}
}

// IsError reports whether err is a database Error.
func IsError(err error) bool {
	var dbErr *Error
	return errors.As(err, &dbErr)
}
