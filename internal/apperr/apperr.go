// Package apperr defines the error kinds every gateway operation reports.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable, user-visible error tag.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindTooLarge           Kind = "too_large"
	KindDuplicateContent   Kind = "duplicate_content"
	KindNotFound           Kind = "not_found"
	KindPersistenceFailure Kind = "persistence_failure"
	KindPartialExtraction  Kind = "partial_extraction"
	KindInternal           Kind = "internal"
)

// Error carries a kind, a message safe to show callers, and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, apperr.NotFound("")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func InvalidInput(format string, args ...any) *Error {
	return newf(KindInvalidInput, nil, format, args...)
}

func InvalidInputWrap(err error, format string, args ...any) *Error {
	return newf(KindInvalidInput, err, format, args...)
}

func TooLarge(size, limit int64) *Error {
	return newf(KindTooLarge, nil, "document is %d bytes, limit is %d", size, limit)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

func Persistence(err error, format string, args ...any) *Error {
	return newf(KindPersistenceFailure, err, format, args...)
}

func Internal(err error, format string, args ...any) *Error {
	return newf(KindInternal, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message. Persistence and internal errors
// never expose their cause.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// IsRetryable reports whether the operation may succeed if repeated.
func IsRetryable(err error) bool {
	return KindOf(err) == KindPersistenceFailure
}
