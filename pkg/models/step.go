package models

import (
	"errors"
	"fmt"
	"time"
)

// StepKind identifies the unit of work a step performed.
type StepKind string

const (
	StepKindGeneration  StepKind = "generation"
	StepKindCapture     StepKind = "capture"
	StepKindEvaluation  StepKind = "evaluation"
	StepKindImprovement StepKind = "improvement"
	StepKindFix         StepKind = "fix"
	StepKindCompletion  StepKind = "completion"
)

// CodeStepKinds are the kinds whose output carries shader source. The
// most recently started one of these holds the current code of a process.
var CodeStepKinds = []StepKind{StepKindGeneration, StepKindImprovement, StepKindFix}

// DrivingStepKinds are the kinds subject to the single-flight invariant:
// at most one of them may be running per process at any time.
var DrivingStepKinds = []StepKind{
	StepKindGeneration, StepKindCapture, StepKindEvaluation,
	StepKindImprovement, StepKindFix,
}

// StepStatus represents the lifecycle state of a step. Steps transition
// from running to exactly one of completed or failed, then never change.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// CompilationError is a failure signaled by the capture collaborator
// indicating the shader itself is invalid, distinct from an
// infrastructure failure.
type CompilationError struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// StepInput is a tagged union keyed by the owning step's kind. Only the
// fields relevant to that kind are populated.
type StepInput struct {
	Prompt      string            `json:"prompt,omitempty"`
	Code        string            `json:"code,omitempty"`
	Feedback    string            `json:"feedback,omitempty"`
	Screenshots []string          `json:"screenshots,omitempty"`
	Error       *CompilationError `json:"error,omitempty"`
}

// StepOutput is a tagged union keyed by the owning step's kind.
type StepOutput struct {
	Code             string            `json:"code,omitempty"`
	Screenshots      []string          `json:"screenshots,omitempty"`
	CompilationError *CompilationError `json:"compilation_error,omitempty"`
	Score            *float64          `json:"score,omitempty"`
	Feedback         string            `json:"feedback,omitempty"`
}

var (
	ErrMissingCode        = errors.New("output is missing code")
	ErrMissingScore       = errors.New("output is missing score")
	ErrMissingScreenshots = errors.New("output has neither screenshots nor a compilation error")
)

// Validate checks that the output carries the fields its kind requires.
// The persistence layer rejects completed steps with invalid output.
func (o *StepOutput) Validate(kind StepKind) error {
	switch kind {
	case StepKindGeneration, StepKindImprovement, StepKindFix:
		if o.Code == "" {
			return fmt.Errorf("%s: %w", kind, ErrMissingCode)
		}
	case StepKindCapture:
		if len(o.Screenshots) == 0 && o.CompilationError == nil {
			return fmt.Errorf("%s: %w", kind, ErrMissingScreenshots)
		}
	case StepKindEvaluation:
		if o.Score == nil {
			return fmt.Errorf("%s: %w", kind, ErrMissingScore)
		}
	case StepKindCompletion:
		// No required fields.
	}

	return nil
}

// AIInteraction records one exchange with the AI collaborator.
type AIInteraction struct {
	Prompt           string        `json:"prompt"`
	Response         string        `json:"response"`
	Model            string        `json:"model,omitempty"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Step is one executed unit of work belonging to a process. Output is
// set iff the step completed; Error is set iff it failed.
type Step struct {
	ID          string         `json:"id"`
	ProcessID   string         `json:"process_id"`
	Kind        StepKind       `json:"kind"`
	Status      StepStatus     `json:"status"`
	Input       StepInput      `json:"input"`
	Output      *StepOutput    `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Interaction *AIInteraction `json:"interaction,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Duration    *time.Duration `json:"duration,omitempty"`
}
