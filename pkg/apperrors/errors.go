// Package apperrors defines the typed errors returned by taskflow services.
//
// Stores wrap driver errors with fmt.Errorf; services translate them into
// *Error values carrying a Kind, which the HTTP layer maps to a status code.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and transports.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindPreconditionFailed
	KindForbidden
	KindConflict
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code used when an error of this kind reaches a client.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindPreconditionFailed:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code, so sentinels work with errors.Is
// even after WithDetails has produced a copy.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code == "" || t.Code == "" {
		return e == t
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details string) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

var (
	// ErrDuplicateName is returned when a role or group name already exists in the organization
	ErrDuplicateName = &Error{Kind: KindConflict, Code: "duplicate_name", Message: "name already exists"}

	// ErrSystemRoleImmutable is returned on any attempt to edit or delete a system role
	ErrSystemRoleImmutable = &Error{Kind: KindForbidden, Code: "system_role_immutable", Message: "Cannot modify system roles"}

	// ErrRoleInUse is returned when deleting a role that is still assigned to users
	ErrRoleInUse = &Error{Kind: KindConflict, Code: "role_in_use", Message: "Cannot delete role that is assigned to users"}
)

func newf(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, "validation_error", format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, "not_found", format, args...)
}

func PreconditionFailed(format string, args ...interface{}) *Error {
	return newf(KindPreconditionFailed, "precondition_failed", format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, "forbidden", format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, "conflict", format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return newf(KindUnauthorized, "unauthorized", format, args...)
}

// Internal wraps an unexpected failure. The message is safe to show to clients;
// the cause is kept for logging.
func Internal(err error, format string, args ...interface{}) *Error {
	e := newf(KindInternal, "internal_error", format, args...)
	e.Err = err
	return e
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

func IsPreconditionFailed(err error) bool {
	return KindOf(err) == KindPreconditionFailed
}
