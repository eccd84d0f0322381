package httperr

import (
	"errors"
	"net/http"
)

// Error represents an error with an associated HTTP status code and a
// message that is safe to show to the visitor.
type Error struct {
	Status  int
	Message string
	// Err is the underlying cause, kept for logs only.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the given status and message.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Helpers, one per failure class surfaced to visitors.
func BadRequest(msg string) *Error  { return New(http.StatusBadRequest, msg) }
func Validation(msg string) *Error  { return New(http.StatusBadRequest, msg) }
func RateLimited(msg string) *Error { return New(http.StatusTooManyRequests, msg) }

func Misconfigured(msg string, cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: msg, Err: cause}
}

func Delivery(msg string, cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: msg, Err: cause}
}

// As extracts an *Error from err. Anything else is reported as a 500 with
// the fallback message.
func As(err error, fallback string) *Error {
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	return &Error{Status: http.StatusInternalServerError, Message: fallback, Err: err}
}
