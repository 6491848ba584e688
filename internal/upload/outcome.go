package upload

import (
	"errors"
	"fmt"
)

// Status is the state of an upload run. Running is the only non-terminal
// state.
type Status int

const (
	StatusRunning Status = iota
	StatusSucceeded
	StatusFailedFileMissing
	StatusFailedFatal
	StatusFailedBudgetExhausted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailedFileMissing:
		return "file_missing"
	case StatusFailedFatal:
		return "fatal"
	case StatusFailedBudgetExhausted:
		return "budget_exhausted"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// sentinel maps a failure status to its package error.
func (s Status) sentinel() error {
	switch s {
	case StatusFailedFileMissing:
		return ErrFileMissing
	case StatusFailedFatal:
		return ErrFatal
	case StatusFailedBudgetExhausted:
		return ErrBudgetExhausted
	case StatusCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// Outcome is the result of Driver.Run. On success RemoteID is set; on failure
// Reason is a human-readable summary and LastErr is the last transport (or
// context) error observed.
type Outcome struct {
	Status   Status
	RemoteID string
	Reason   string
	LastErr  error
	Retries  int // retriable failures counted against the budget
	Calls    int // transport exchanges issued
}

// Succeeded reports whether the upload completed.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// Err returns nil on success and an *OutcomeError otherwise.
func (o Outcome) Err() error {
	if o.Succeeded() {
		return nil
	}

	return &OutcomeError{Outcome: o}
}

// OutcomeError adapts a failed Outcome to the error interface for callers
// that propagate errors (the CLI). It matches the status sentinel via
// errors.Is and unwraps to the last transport error.
type OutcomeError struct {
	Outcome Outcome
}

func (e *OutcomeError) Error() string {
	o := e.Outcome

	msg := "upload failed: " + o.Reason
	// Fatal reasons already embed the transport error text.
	if o.LastErr != nil && o.Status != StatusFailedFatal {
		msg += ": " + o.LastErr.Error()
	}

	return fmt.Sprintf("%s (%d retries, %d requests)", msg, o.Retries, o.Calls)
}

func (e *OutcomeError) Is(target error) bool {
	s := e.Outcome.Status.sentinel()
	return s != nil && errors.Is(s, target)
}

func (e *OutcomeError) Unwrap() error {
	return e.Outcome.LastErr
}
