package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a service error for mapping at the transport boundary.
type Kind int

const (
	// KindInternal covers persistence and collaborator failures.
	KindInternal Kind = iota
	// KindNotFound covers missing target entities.
	KindNotFound
	// KindUnauthorized covers missing tenant context or actor.
	KindUnauthorized
	// KindValidation covers business rule violations.
	KindValidation
	// KindConflict covers uniqueness violations.
	KindConflict
)

// String returns a stable name for logging.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is the kinded error returned by the identity services.
// Details carry provider error descriptions where available.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}

	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}

	return msg
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the kind of a service error, KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error

	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

func errNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func errUnauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func errValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func errValidationDetails(details []string, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...), Details: details}
}

func errConflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func errInternal(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), cause: cause}
}
