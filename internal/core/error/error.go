// Package errx carries a status code and a safe message alongside store errors.
package errx

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidSession is returned when a session cannot be persisted as given.
var ErrInvalidSession = errors.New("invalid session")

const storageMessage = "session storage operation failed"

// AppError pairs an underlying error with an HTTP-style status and a message
// that is safe to show outside the process.
type AppError struct {
	Err     error
	Status  int
	Message string
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func New(err error, status int, message string) *AppError {
	return &AppError{Err: err, Status: status, Message: message}
}

// Invalid marks err as a caller error.
func Invalid(err error, message string) error {
	return New(err, http.StatusBadRequest, message)
}

// WrapStorage wraps a non-Redis store failure.
func WrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusInternalServerError, storageMessage)
}

// StatusOf reports the status of the first AppError in err's chain, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
