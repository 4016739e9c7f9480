package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is. The struct errors below carry detail and
// report the matching sentinel through their Is method.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrConflict           = errors.New("version conflict")
	ErrAmountMismatch     = errors.New("amount mismatch")
	ErrInvalidState       = errors.New("invalid state")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrIdempotentReplay is not a failure. Stores return it when an
	// idempotency key was already applied so the caller can answer with the
	// settled state instead.
	ErrIdempotentReplay = errors.New("idempotent replay")
)

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error        { return e.Err }
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error        { return e.Err }
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error        { return e.Err }
func (e ConflictError) Is(target error) bool { return target == ErrConflict }

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

// TransitionError reports an edge that is not in the transition table.
type TransitionError struct {
	From BookingStatus
	To   BookingStatus
	Msg  string
}

func (e TransitionError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("transition %s -> %s not allowed: %s", e.From, e.To, e.Msg)
	}
	return fmt.Sprintf("transition %s -> %s not allowed", e.From, e.To)
}

func (e TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// StateError reports an operation attempted from the wrong payment or refund state.
type StateError struct {
	Op  string
	Msg string
}

func (e StateError) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e StateError) Is(target error) bool { return target == ErrInvalidState }

type AmountMismatchError struct {
	Expected Money
	Got      Money
}

func (e AmountMismatchError) Error() string {
	return fmt.Sprintf("amount %d does not match booking total %d", e.Got, e.Expected)
}

func (e AmountMismatchError) Is(target error) bool { return target == ErrAmountMismatch }

type GatewayError struct {
	Op  string
	Err error
}

func (e GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway %s failed", e.Op)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e GatewayError) Unwrap() error        { return e.Err }
func (e GatewayError) Is(target error) bool { return target == ErrGatewayUnavailable }

type ForbiddenError struct {
	Role ActorRole
	Op   string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s may not %s", e.Role, e.Op)
}

func (e ForbiddenError) Is(target error) bool { return target == ErrForbidden }

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsForbidden(err error) bool  { return errors.Is(err, ErrForbidden) }

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}
