package storeerr

import (
	"errors"
	"fmt"
)

// Kind partitions store failures into the classes callers branch on.
// Exactly one kind applies to any error produced by the store.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindAlreadyExists    Kind = "already_exists"
	KindValidation       Kind = "validation"
	KindConflict         Kind = "conflict"
	KindUnavailable      Kind = "unavailable"
	KindUnseal           Kind = "unseal"
	KindKeyNotConfigured Kind = "key_not_configured"
)

// Error carries a kind plus a stable uppercase code suitable for API
// responses and log grepping. Codes never change once shipped.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// KindOf reports the kind of err, or "" when err was not produced by the
// store taxonomy.
func KindOf(err error) Kind {
	if se, ok := errors.AsType[*Error](err); ok && se != nil {
		return se.Kind
	}
	return ""
}

// CodeOf reports the stable code of err, or "" for foreign errors.
func CodeOf(err error) string {
	if se, ok := errors.AsType[*Error](err); ok && se != nil {
		return se.Code
	}
	return ""
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// Retryable reports whether a caller may retry the failed operation.
// Only transient unavailability qualifies; unseal and validation
// failures are final no matter how often they are retried.
func Retryable(err error) bool { return KindOf(err) == KindUnavailable }
