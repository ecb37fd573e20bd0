package service

import (
	"errors"
	"fmt"
)

// ConflictError signals a duplicate active attempt or scoring job.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// InvalidStateError signals an operation not valid in the current lifecycle
// state, e.g. submitting an attempt twice.
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string { return e.Msg }

// ValidationError signals input that fails a domain constraint. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError signals a missing record.
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found with ID %d", e.Resource, e.ID)
}

// TimeoutError signals that the external model exceeded its allotted time.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransientError signals a retryable failure (network error, 5xx).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s failed transiently: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TerminalFailure signals that retries are exhausted and the attempt is
// marked failed. Recovery requires an explicit rescore.
type TerminalFailure struct {
	Msg string
	Err error
}

func (e *TerminalFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *TerminalFailure) Unwrap() error { return e.Err }

// Retryable reports whether the queue should retry a job that failed with
// this error. Validation and state errors are never retried.
func Retryable(err error) bool {
	var transient *TransientError
	var timeout *TimeoutError
	return errors.As(err, &transient) || errors.As(err, &timeout)
}
