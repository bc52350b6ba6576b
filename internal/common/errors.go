// Package common defines the typed service errors shared across the
// server layers. Every error carries the HTTP status it maps to, so the
// transport layer never has to guess; callers match with errors.As or the
// kind predicates.
package common

import (
	"errors"
	"net/http"
)

// ErrorKind classifies a service failure.
type ErrorKind int

const (
	// KindRequest covers malformed input, bad path shape and unparseable
	// query clauses.
	KindRequest ErrorKind = iota
	// KindNotFound covers missing collections and records.
	KindNotFound
	// KindConflict covers duplicate identity on registration.
	KindConflict
	// KindAuthorization covers actions that require authentication when
	// none is resolved.
	KindAuthorization
	// KindCredential covers bad logins, logout without a session and
	// access-rule failures.
	KindCredential
)

var statuses = map[ErrorKind]int{
	KindRequest:       http.StatusBadRequest,
	KindNotFound:      http.StatusNotFound,
	KindConflict:      http.StatusConflict,
	KindAuthorization: http.StatusUnauthorized,
	KindCredential:    http.StatusForbidden,
}

var defaultMessages = map[ErrorKind]string{
	KindRequest:       "Request error",
	KindNotFound:      "Resource not found",
	KindConflict:      "Resource conflict",
	KindAuthorization: "Unauthorized",
	KindCredential:    "Forbidden",
}

// Error is a service error with a fixed HTTP mapping.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Status returns the HTTP status code the error maps to.
func (e *Error) Status() int { return statuses[e.Kind] }

func newError(kind ErrorKind, message string) *Error {
	if message == "" {
		message = defaultMessages[kind]
	}
	return &Error{Kind: kind, Message: message}
}

// NewRequestError returns a KindRequest error. An empty message selects
// the default one. The same applies to the other constructors.
func NewRequestError(message string) *Error { return newError(KindRequest, message) }

func NewNotFoundError(message string) *Error { return newError(KindNotFound, message) }

func NewConflictError(message string) *Error { return newError(KindConflict, message) }

func NewAuthorizationError(message string) *Error { return newError(KindAuthorization, message) }

func NewCredentialError(message string) *Error { return newError(KindCredential, message) }

// IsKind reports whether err is a service error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

// IsNotFound reports whether err is a missing-collection/record error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }
