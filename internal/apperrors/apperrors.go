package apperrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindExternal
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Error carries a kind alongside the wrapped cause.
type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the classification of the error.
func (e *Error) Kind() Kind {
	return e.kind
}

// New creates a classified error from a message.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, err: errors.New(msg)}
}

// Newf creates a classified error from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap classifies an existing error, keeping its cause chain.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: errors.Wrap(err, msg)}
}

func InvalidInput(format string, args ...interface{}) error {
	return Newf(KindInvalidInput, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return Newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return Newf(KindConflict, format, args...)
}

func External(err error, msg string) error {
	return Wrap(KindExternal, err, msg)
}

func Internal(err error, msg string) error {
	return Wrap(KindInternal, err, msg)
}

// KindOf walks the cause chain and returns the outermost classification.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.kind
	}
	return KindInternal
}

// Is reports whether the error carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API surfaces.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var _ fmt.Stringer = Kind(0)
