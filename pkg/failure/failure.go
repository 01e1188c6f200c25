// Package failure defines the error kinds surfaced by the dealvault adapters.
// Callers branch on Kind with [IsKind] or [errors.As]; messages are for humans
// and carry the original cause's message.
//
// Authorization failures have no kind: they are modelled as
// results (see pkg/access), not errors.
package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindConfiguration means a required setting is missing or invalid. It is
	// always raised before any network call.
	KindConfiguration Kind = "configuration"
	// KindValidation means the caller's input was rejected (oversized payload,
	// malformed identifier). It is always raised before any network call.
	KindValidation Kind = "validation"
	// KindNetwork wraps any failure of an underlying network client.
	KindNetwork Kind = "network"
)

// Error is the structured error returned from adapter boundaries.
type Error struct {
	Kind Kind
	// Op is the adapter operation that failed, e.g. "storage.Upload".
	Op    string
	Cause error
	msg   string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.Op, e.msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Message returns the message without the operation prefix.
func (e *Error) Message() string {
	return e.msg
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, msg: fmt.Sprintf(format, args...)}
}

// Configuration returns a configuration error for op.
func Configuration(op, format string, args ...any) error {
	return newf(KindConfiguration, op, format, args...)
}

// Validation returns a validation error for op.
func Validation(op, format string, args ...any) error {
	return newf(KindValidation, op, format, args...)
}

// Network wraps cause as a network error for op, keeping the cause's message.
// An error that already carries a Kind is returned unchanged so that
// configuration and validation failures raised deeper in the stack are not
// relabelled.
func Network(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var existing *Error
	if errors.As(cause, &existing) {
		return cause
	}
	return &Error{Kind: KindNetwork, Op: op, Cause: cause, msg: cause.Error()}
}

// KindOf returns the kind of err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
