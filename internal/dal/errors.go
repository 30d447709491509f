// Package dal is the permission-gated boundary between HTTP handlers and the
// datastore: session resolution, escalation helpers and the typed error
// taxonomy that the transport layer converts into status codes.
package dal

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType int

const (
	Unauthorized ErrorType = iota + 1
	Forbidden
	NotFound
	BadRequest
	Internal
)

// ErrorTypes lists every defined discriminator.
func ErrorTypes() []ErrorType {
	return []ErrorType{Unauthorized, Forbidden, NotFound, BadRequest, Internal}
}

func (t ErrorType) String() string {
	switch t {
	case Unauthorized:
		return "UNAUTHORIZED"
	case Forbidden:
		return "FORBIDDEN"
	case NotFound:
		return "NOT_FOUND"
	case BadRequest:
		return "BAD_REQUEST"
	case Internal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// StatusCode maps the discriminator to its HTTP status. Values outside the
// enum can only come from a conversion and are answered as 500.
func (t ErrorType) StatusCode() int {
	switch t {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case BadRequest:
		return http.StatusBadRequest
	case Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) StatusCode() int {
	return e.Type.StatusCode()
}

func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// As extracts a *Error from err's chain.
func As(err error) (*Error, bool) {
	var dalErr *Error
	if errors.As(err, &dalErr) {
		return dalErr, true
	}
	return nil, false
}
