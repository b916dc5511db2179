// Package web provides the HTTP API over the process runner.
package web

import "github.com/a-kuz/shader-maker/pkg/models"

// ConfigRequest overrides parts of the default process configuration.
// All fields are optional; omitted ones keep their defaults.
type ConfigRequest struct {
	MaxIterations *int     `json:"max_iterations,omitempty" validate:"omitempty,min=1,max=20"`
	TargetScore   *float64 `json:"target_score,omitempty"   validate:"omitempty,min=0,max=100"`
	AutoMode      *bool    `json:"auto_mode,omitempty"`
	ServerCapture *bool    `json:"server_capture,omitempty"`
}

// Apply overlays the overrides onto a base configuration.
func (r *ConfigRequest) Apply(base models.ProcessConfig) models.ProcessConfig {
	if r == nil {
		return base
	}

	if r.MaxIterations != nil {
		base.MaxIterations = *r.MaxIterations
	}

	if r.TargetScore != nil {
		base.TargetScore = *r.TargetScore
	}

	if r.AutoMode != nil {
		base.AutoMode = *r.AutoMode
	}

	if r.ServerCapture != nil {
		base.ServerCapture = *r.ServerCapture
	}

	return base
}

// CreateProcessRequest represents the request body for starting a new
// generation process.
type CreateProcessRequest struct {
	Prompt string         `json:"prompt" validate:"required,min=3"`
	Config *ConfigRequest `json:"config,omitempty"`
}

// ControlRequest represents the request body for a control action.
type ControlRequest struct {
	Action string `json:"action" validate:"required,oneof=pause resume stop retry"`
}

// SubmitScreenshotsRequest represents a client-side capture result:
// either rendered screenshots or the compilation error that prevented
// rendering.
type SubmitScreenshotsRequest struct {
	Screenshots      []string                 `json:"screenshots,omitempty"`
	CompilationError *models.CompilationError `json:"compilation_error,omitempty"`
}

// CaptureResponse reports the outcome of a server-side capture trigger.
type CaptureResponse struct {
	StepID      string `json:"step_id"`
	Screenshots int    `json:"screenshots"`
}
