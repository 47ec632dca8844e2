// Package apperror defines the error taxonomy shared by every service and mapped
// to transport status codes at the HTTP boundary.
package apperror

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Internal Kind = iota
	Unauthenticated
	Forbidden
	NotFound
	InvalidTransition
	Validation
	Conflict
)

var kindCodes = map[Kind]string{
	Internal:          "INTERNAL",
	Unauthenticated:   "UNAUTHENTICATED",
	Forbidden:         "FORBIDDEN",
	NotFound:          "NOT_FOUND",
	InvalidTransition: "INVALID_TRANSITION",
	Validation:        "VALIDATION_ERROR",
	Conflict:          "CONFLICT",
}

func (k Kind) String() string {
	return kindCodes[k]
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors of the same kind and code so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func New(kind Kind, code string, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Newf(kind Kind, code string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrUnauthenticated   = New(Unauthenticated, "UNAUTHENTICATED", "authentication required")
	ErrForbidden         = New(Forbidden, "FORBIDDEN", "permission denied")
	ErrNotFound          = New(NotFound, "NOT_FOUND", "resource not found")
	ErrInvalidTransition = New(InvalidTransition, "INVALID_TRANSITION", "action not allowed in current status")
	ErrValidation        = New(Validation, "VALIDATION_ERROR", "invalid input")
	ErrConflict          = New(Conflict, "CONFLICT", "resource already exists")
	ErrInternal          = New(Internal, "INTERNAL", "internal server error")
)

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// As returns the first *Error in err's chain, or ErrInternal for anything else.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal
}
