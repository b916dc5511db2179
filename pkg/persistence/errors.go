// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrProcessNotFound indicates a process was not found by the given identifier.
	ErrProcessNotFound = errors.New("process not found")

	// ErrProcessAlreadyExists indicates a process with the same identifier already exists.
	ErrProcessAlreadyExists = errors.New("process already exists")

	// ErrStepNotFound indicates a step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrInvalidStepOutput indicates a completed step carried an output
	// that is invalid for its kind.
	ErrInvalidStepOutput = errors.New("invalid step output")
)

// ProcessError wraps process-related errors with additional context.
type ProcessError struct {
	Op        string // Operation being performed (e.g., "ProcessByID", "UpdateProcess")
	ProcessID string // Process ID if applicable
	Err       error  // Underlying error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s operation failed for process %s: %v", e.Op, e.ProcessID, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

func (e *ProcessError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewProcessError creates a new process error with context.
func NewProcessError(op, processID string, err error) *ProcessError {
	return &ProcessError{
		Op:        op,
		ProcessID: processID,
		Err:       err,
	}
}

// StepError wraps step-related errors with additional context.
type StepError struct {
	Op        string // Operation being performed
	ProcessID string // Process ID
	StepID    string // Step ID
	Err       error  // Underlying error
}

func (e *StepError) Error() string {
	if e.ProcessID != "" {
		return fmt.Sprintf("%s operation failed for step %s in process %s: %v", e.Op, e.StepID, e.ProcessID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for step %s: %v", e.Op, e.StepID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStepError creates a new step error with context.
func NewStepError(op, stepID string, err error) *StepError {
	return &StepError{
		Op:     op,
		StepID: stepID,
		Err:    err,
	}
}

// IsProcessNotFound checks if an error indicates a process was not found.
func IsProcessNotFound(err error) bool {
	return errors.Is(err, ErrProcessNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}
