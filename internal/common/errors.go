// Package common defines the error taxonomy and small helpers shared by the
// client and server. Callers should use errors.Is to match error kinds.
package common

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrorNotFound is returned by repositories when a row does not exist.
	ErrorNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a conditional update touched no rows.
	ErrVersionConflict = errors.New("version conflict")
)

// Error is a client-visible failure. Two errors match under errors.Is when
// their identifiers are equal, so wrapped or re-worded copies still match
// the package-level kinds below.
type Error struct {
	Identifier string `json:"identifier"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`

	parent *Error
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Identifier, e.Message, e.cause)
	}
	return e.Identifier + ": " + e.Message
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.parent != nil {
		errs = append(errs, e.parent)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Identifier == t.Identifier
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// Wrap returns a copy of e that also unwraps to cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

var (
	ErrInvalidPasswordOrKey = &Error{Identifier: "InvalidPasswordOrKey", StatusCode: http.StatusBadRequest,
		Message: "The supplied password or key is incorrect"}
	ErrAccessUnauthorized = &Error{Identifier: "AccessUnauthorized", StatusCode: http.StatusUnauthorized,
		Message: "A valid session is required"}
	ErrAccessForbidden = &Error{Identifier: "AccessForbidden", StatusCode: http.StatusForbidden,
		Message: "You do not have permission to perform this action"}
	ErrResourceNotFound = &Error{Identifier: "ResourceNotFound", StatusCode: http.StatusNotFound,
		Message: "The requested resource could not be found"}
	ErrResourceNotUnique = &Error{Identifier: "ResourceNotUnique", StatusCode: http.StatusBadRequest,
		Message: "The resource already exists"}
	ErrResourceRelationshipInvalid = &Error{Identifier: "ResourceRelationshipInvalid", StatusCode: http.StatusBadRequest,
		Message: "The resource references a related resource that does not exist"}
	ErrRequestInvalid = &Error{Identifier: "RequestInvalid", StatusCode: http.StatusBadRequest,
		Message: "The request is invalid"}
	ErrSystem = &Error{Identifier: "SystemError", StatusCode: http.StatusInternalServerError,
		Message: "An unexpected error occurred"}
)

// ErrNotVerified is a kind of AccessForbidden: it matches both itself and
// ErrAccessForbidden.
var ErrNotVerified = &Error{Identifier: "NotVerified", StatusCode: http.StatusForbidden,
	Message: "The account has not been verified", parent: ErrAccessForbidden}

// AsError converts any error into a client-visible *Error. Known kinds are
// returned as-is, everything else becomes ErrSystem with cause attached.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, ErrorNotFound) {
		return ErrResourceNotFound.Wrap(err)
	}
	return ErrSystem.Wrap(err)
}

var known = map[string]*Error{}

func init() {
	for _, e := range []*Error{ErrInvalidPasswordOrKey, ErrAccessUnauthorized, ErrAccessForbidden, ErrNotVerified,
		ErrResourceNotFound, ErrResourceNotUnique, ErrResourceRelationshipInvalid, ErrRequestInvalid, ErrSystem} {
		known[e.Identifier] = e
	}
}

// Lookup returns the package-level kind for identifier, so an error decoded
// from the wire keeps its place in the taxonomy (NotVerified still matches
// AccessForbidden).
func Lookup(identifier string) (*Error, bool) {
	e, ok := known[identifier]
	return e, ok
}
