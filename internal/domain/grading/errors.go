package grading

import (
	"errors"
	"fmt"
)

var (
	ErrSubmission        = errors.New("submission failed")
	ErrEngineFailed      = errors.New("engine reported failure")
	ErrTimeout           = errors.New("processing timeout")
	ErrUnparseable       = errors.New("unparseable result")
	ErrStatusQuery       = errors.New("status query failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRunNotFound       = errors.New("run not found")
	ErrAlreadyTracked    = errors.New("run already tracked")
)

// FailureKind classifies why a run ended in failed
type FailureKind string

const (
	FailureSubmission  FailureKind = "submission"
	FailureEngine      FailureKind = "engine"
	FailureTimeout     FailureKind = "timeout"
	FailureUnparseable FailureKind = "unparseable"
	FailureStatusQuery FailureKind = "status_query"
)

const (
	TimeoutMessage       = "Processing timeout. Please try again later."
	EngineFailureMessage = "Processing failed"
)

// RunError is the single error value handed to callers for every failure kind.
type RunError struct {
	Kind    FailureKind
	RunID   RunID
	Message string
	Err     error
}

func (e *RunError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("run %s %s: %s", e.RunID, e.Kind, e.Message)
}

func (e *RunError) Unwrap() error { return e.Err }

// Is matches the sentinel for the failure kind.
func (e *RunError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureSubmission:
		return ErrSubmission
	case FailureEngine:
		return ErrEngineFailed
	case FailureTimeout:
		return ErrTimeout
	case FailureUnparseable:
		return ErrUnparseable
	case FailureStatusQuery:
		return ErrStatusQuery
	}
	return nil
}

// AsRunError unwraps err into a *RunError if it is one.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
