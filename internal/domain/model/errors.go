package model

import (
	"errors"
	"fmt"
)

// Failure kinds crossing collaborator boundaries.
var (
	// ErrTransientExternal is a network or rate-limit failure; retried next cycle.
	ErrTransientExternal = errors.New("transient external failure")
	// ErrPermanentExternal is an auth or configuration failure; surfaced, not retried.
	ErrPermanentExternal = errors.New("permanent external failure")
	// ErrMalformedSignal marks a sentiment that carries no actionable evidence.
	ErrMalformedSignal = errors.New("malformed signal")
	// ErrIntentRejected is an Execution Venue refusal.
	ErrIntentRejected = errors.New("intent rejected")
)

// Domain model errors.
var (
	ErrAlreadyChecked    = errors.New("observation already checked")
	ErrIndexOutOfRange   = errors.New("observation index out of range")
	ErrUnknownSourceType = errors.New("unknown source type")
)

// ExternalError tags a collaborator failure with its operation and kind.
type ExternalError struct {
	Op   string
	Kind error
	Err  error
}

func (e *ExternalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *ExternalError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Transient wraps err as a transient failure of op.
func Transient(op string, err error) error {
	return &ExternalError{Op: op, Kind: ErrTransientExternal, Err: err}
}

// Permanent wraps err as a permanent failure of op.
func Permanent(op string, err error) error {
	return &ExternalError{Op: op, Kind: ErrPermanentExternal, Err: err}
}

// IsPermanent reports whether err is a permanent external failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentExternal)
}

// IsTransient reports whether err should be retried. Any failure that is not
// explicitly permanent counts as transient.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
