package domain

import "errors"

// Kind classifies a failure so the transport layer can pick a status code.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	ErrValidation       Kind = "VALIDATION"
	ErrUnauthorized     Kind = "UNAUTHORIZED"
	ErrForbidden        Kind = "FORBIDDEN"
	ErrNotFound         Kind = "NOT_FOUND"
	ErrConflict         Kind = "CONFLICT"
	ErrOutOfBound       Kind = "OUT_OF_BOUND"
	ErrSignatureInvalid Kind = "SIGNATURE_INVALID"
	ErrUpstream         Kind = "UPSTREAM"
)

// Error is a client-facing failure. Message is safe to return to callers;
// Fields holds per-field validation messages.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	cause   error
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NewFieldError(message string, fields map[string]string) *Error {
	return &Error{Kind: ErrValidation, Message: message, Fields: fields}
}

// WrapError keeps the underlying cause for logging while exposing only message.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind && e.Message == other.Message
	}
	return false
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}
