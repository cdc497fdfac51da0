package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/comparison"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/ranking"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// ErrorKind classifies service errors for callers.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindInternal            ErrorKind = "internal"
)

// Error is a classified service error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string, err error) *Error {
	return NewError(KindNotFound, message, err)
}

func InvalidInput(message string, err error) *Error {
	return NewError(KindInvalidInput, message, err)
}

func UpstreamUnavailable(message string, err error) *Error {
	return NewError(KindUpstreamUnavailable, message, err)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsInvalidInput reports whether err is an InvalidInput error.
func IsInvalidInput(err error) bool {
	return KindOf(err) == KindInvalidInput
}

// classify wraps err in an Error based on the sentinel it carries. Anything
// unrecognised is treated as a storage outage.
func classify(message string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, comparison.ErrSessionNotFound):
		return NotFound(message, err)
	case errors.Is(err, storage.ErrInvalidID),
		errors.Is(err, comparison.ErrTooManyProducts),
		errors.Is(err, comparison.ErrSessionFull),
		errors.Is(err, ranking.ErrUnknownSortKey):
		return InvalidInput(message, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return UpstreamUnavailable(message, err)
	}
}
