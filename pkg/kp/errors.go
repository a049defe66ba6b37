package kp

import (
	"errors"
	"net/http"
)

type Error struct {
	Message    string
	StatusCode int
	Err        error
}

func NewError(statusCode int, message string, err error) *Error {
	return &Error{Message: message, StatusCode: statusCode, Err: err}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Json() map[string]string {
	return map[string]string{"error": e.Message}
}

// Fail writes err as a JSON error response; non *Error values become a 500 server_error.
func (c *Ctx) Fail(err error) {
	var kpErr *Error
	if errors.As(err, &kpErr) {
		c.JSONError(kpErr.StatusCode, kpErr.Json(), err)
		return
	}
	c.JSONError(http.StatusInternalServerError, map[string]string{"error": "server_error"}, err)
}
