// Package models defines the core domain models for the shader generation pipeline.
package models

import "time"

// ProcessStatus represents the lifecycle state of a generation process.
type ProcessStatus string

const (
	ProcessStatusCreated    ProcessStatus = "created"
	ProcessStatusGenerating ProcessStatus = "generating"
	ProcessStatusCapturing  ProcessStatus = "capturing"
	ProcessStatusEvaluating ProcessStatus = "evaluating"
	ProcessStatusImproving  ProcessStatus = "improving"
	ProcessStatusFixing     ProcessStatus = "fixing"
	ProcessStatusCompleted  ProcessStatus = "completed"
	ProcessStatusFailed     ProcessStatus = "failed"
	ProcessStatusPaused     ProcessStatus = "paused"
)

// IsTerminal reports whether no further transitions are possible.
func (s ProcessStatus) IsTerminal() bool {
	return s == ProcessStatusCompleted || s == ProcessStatusFailed
}

// IsActive reports whether the process is currently being driven by the
// runner (a step is running or expected to run).
func (s ProcessStatus) IsActive() bool {
	switch s {
	case ProcessStatusGenerating, ProcessStatusCapturing, ProcessStatusEvaluating,
		ProcessStatusImproving, ProcessStatusFixing:
		return true
	default:
		return false
	}
}

// ProcessConfig is the immutable per-run configuration. Changing it
// mid-run is unsupported.
type ProcessConfig struct {
	MaxIterations int     `json:"max_iterations" validate:"min=1,max=20"`
	TargetScore   float64 `json:"target_score"   validate:"min=0,max=100"`
	AutoMode      bool    `json:"auto_mode"`
	ServerCapture bool    `json:"server_capture"`
}

// DefaultProcessConfig returns the configuration applied when the caller
// omits one.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		MaxIterations: 5,
		TargetScore:   80,
		AutoMode:      true,
		ServerCapture: true,
	}
}

// ProcessResult is the final outcome of a completed process.
type ProcessResult struct {
	Code       string        `json:"code"`
	FinalScore float64       `json:"final_score"`
	Iterations int           `json:"iterations"`
	Duration   time.Duration `json:"duration"`
}

// Process is one end-to-end run for a single prompt. The prompt is
// immutable; everything else is mutated by the runner on transitions.
type Process struct {
	ID          string         `json:"id"`
	Prompt      string         `json:"prompt" validate:"required"`
	Status      ProcessStatus  `json:"status"`
	CurrentStep *StepKind      `json:"current_step,omitempty"`
	Config      ProcessConfig  `json:"config"`
	Result      *ProcessResult `json:"result,omitempty"`
	Steps       []*Step        `json:"steps,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
