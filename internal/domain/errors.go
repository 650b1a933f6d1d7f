package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned synchronously from Submit; no task is created.
	ErrValidation = errors.New("validation failed")

	// ErrResourceConflict is a normal scheduling outcome, not a failure.
	ErrResourceConflict = errors.New("resource conflict")

	// ErrTransientDevice marks a device error worth retrying.
	ErrTransientDevice = errors.New("transient device error")

	// ErrFatalDevice aborts the pipeline immediately.
	ErrFatalDevice = errors.New("fatal device error")

	// ErrRetryExhausted wraps the last transient error once a stage's
	// retry budget is spent.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	ErrInvalidTransition = errors.New("invalid state transition")
	ErrTaskNotFound      = errors.New("task not found")
)

// E wraps a taxonomy sentinel with detail.
func E(kind error, detail string) error {
	return fmt.Errorf("%w: %s", kind, detail)
}

// IsTransient classifies an error as retry-eligible. Stage timeouts
// surface as context.DeadlineExceeded and count as transient; an
// explicitly fatal error never does, even if a timeout wrapped it.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrFatalDevice) {
		return false
	}
	return errors.Is(err, ErrTransientDevice) || errors.Is(err, context.DeadlineExceeded)
}
