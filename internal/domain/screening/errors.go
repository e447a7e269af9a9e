package screening

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lifecycle taxonomy. Callers match with errors.Is;
// the typed errors below carry the detail.
var (
	ErrPreconditionNotMet     = errors.New("precondition not met")
	ErrIllegalTransition      = errors.New("illegal transition")
	ErrConflictingTransition  = errors.New("conflicting transition")
	ErrNotificationDispatch   = errors.New("notification dispatch failed")
	ErrDataIntegrityViolation = errors.New("data integrity violation")
	ErrDuplicateSent          = errors.New("sent entry already exists for stage")
	ErrNotFound               = errors.New("not found")
)

// PreconditionError identifies the missing or invalid field that blocked a
// transition. The transition is aborted with no state change.
type PreconditionError struct {
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition not met: %s: %s", e.Field, e.Reason)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionNotMet
}

// IllegalTransitionError reports a transition not reachable from the current
// stage.
type IllegalTransitionError struct {
	From Stage
	To   Stage
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s -> %s", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// DispatchError wraps a notification channel failure. The lifecycle
// transition it followed has already committed; only the send failed.
type DispatchError struct {
	Stage Stage
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("notification dispatch failed at stage %s: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func (e *DispatchError) Is(target error) bool {
	return target == ErrNotificationDispatch
}

// IntegrityError reports a broken invariant found at read time, e.g. two
// sent ledger entries for one stage. Fatal, never coerced into valid state.
type IntegrityError struct {
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation: %s", e.Detail)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrDataIntegrityViolation
}
