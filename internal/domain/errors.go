package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUserRejected   = errors.New("user rejected")
	ErrActionInFlight = errors.New("action already in flight")
	ErrSourceDegraded = errors.New("position source degraded")
	ErrLockHeld       = errors.New("lock already held")
	ErrContextDone    = errors.New("context cancelled")
)

// ValidationError reports a precondition failure. It is returned before
// any network write happens, so the caller's state is untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a *ValidationError with a formatted reason.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RevertError carries the revert reason surfaced by simulation or a
// mined-but-failed transaction.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// IsRevert reports whether err is (or wraps) a RevertError.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}
