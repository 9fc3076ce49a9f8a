package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrGateway           = errors.New("payment gateway error")
	ErrConflict          = errors.New("conflict")
	ErrUnauthenticated   = errors.New("unauthenticated")
)

// Error carries a client-safe Message next to the internal Cause.
// errors.Is matches both the Kind sentinel and the Cause chain.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func ValidationError(format string, args ...interface{}) error {
	return newError(ErrValidation, nil, format, args...)
}

func ForbiddenError(format string, args ...interface{}) error {
	return newError(ErrForbidden, nil, format, args...)
}

func NotFoundError(format string, args ...interface{}) error {
	return newError(ErrNotFound, nil, format, args...)
}

func ConflictError(format string, args ...interface{}) error {
	return newError(ErrConflict, nil, format, args...)
}

func InvalidTransitionError(from, to OrderStatus) error {
	return newError(ErrInvalidTransition, nil, "cannot move order from %s to %s", from, to)
}

func GatewayError(cause error, format string, args ...interface{}) error {
	return newError(ErrGateway, cause, format, args...)
}

func UnauthenticatedError(format string, args ...interface{}) error {
	return newError(ErrUnauthenticated, nil, format, args...)
}

// PublicMessage returns the client-safe message of err, or fallback when
// err carries none.
func PublicMessage(err error, fallback string) string {
	var derr *Error
	if errors.As(err, &derr) && derr.Message != "" {
		return derr.Message
	}
	return fallback
}
