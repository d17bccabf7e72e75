// Package apierr maps the content server's four-way error taxonomy
// (validation, not-found, blacklisted, internal) onto Go errors that
// pkg/api can translate into HTTP status codes without pkg/deploy,
// pkg/pointer, or pkg/history importing net/http themselves.
//
// There is no third-party error-classification library in use across the
// reference corpus (every example repo maps errors to HTTP status with its
// own small switch), so this package is plain standard-library errors.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is one of the four error classes from the error handling design.
type Code int

const (
	// Validation means one or more deploy-time predicates rejected the
	// request; Details carries every collected failure message.
	Validation Code = iota
	// NotFound means the requested resource (content, audit, entity)
	// does not exist.
	NotFound
	// Blacklisted means the resource exists but has been administratively
	// removed from normal resolution.
	Blacklisted
	// Internal means storage, hashing, or another dependency failed
	// unexpectedly.
	Internal
)

// HTTPStatus returns the status code the error handling design assigns to c.
func (c Code) HTTPStatus() int {
	switch c {
	case Validation:
		return http.StatusBadRequest
	case NotFound, Blacklisted:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified content server error.
type Error struct {
	Code    Code
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Details, "; "))
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidation builds a Validation error from the collected predicate
// failure messages (§4 of the validation design).
func NewValidation(details []string) *Error {
	return &Error{Code: Validation, Message: "entity failed validation", Details: details}
}

// NewNotFound builds a NotFound error for the named resource.
func NewNotFound(message string) *Error {
	return &Error{Code: NotFound, Message: message}
}

// NewBlacklisted builds a Blacklisted error for the named resource.
func NewBlacklisted(message string) *Error {
	return &Error{Code: Blacklisted, Message: message}
}

// Wrap classifies an unexpected lower-level error as Internal.
func Wrap(err error) *Error {
	return &Error{Code: Internal, Message: err.Error(), Err: err}
}

// As is a thin wrapper over errors.As for pulling an *Error out of a
// wrapped error chain at the HTTP boundary.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
