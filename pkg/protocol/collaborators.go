// Package protocol defines the contracts between the orchestrator and
// its external collaborators.
package protocol

import (
	"context"
	"errors"

	"github.com/a-kuz/shader-maker/pkg/models"
)

// ErrEmptyGeneration indicates the AI collaborator returned blank content.
var ErrEmptyGeneration = errors.New("generation returned empty output")

// GenerationResult is the output of any code-producing collaborator call.
type GenerationResult struct {
	Code        string
	Interaction *models.AIInteraction
}

// EvaluationResult is the output of an evaluation call. Score is
// clamped into [0,100] by the caller before persisting.
type EvaluationResult struct {
	Score       float64
	Feedback    string
	Interaction *models.AIInteraction
}

// Generator produces shader code from a text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*GenerationResult, error)
}

// Evaluator scores rendered screenshots against the original prompt.
type Evaluator interface {
	Evaluate(ctx context.Context, prompt, code string, images []string) (*EvaluationResult, error)
}

// Improver revises code given evaluator feedback and screenshots.
type Improver interface {
	Improve(ctx context.Context, prompt, code, feedback string, images []string) (*GenerationResult, error)
}

// Fixer repairs code that failed to compile.
type Fixer interface {
	Fix(ctx context.Context, prompt, code, errorMessage, errorDetail string) (*GenerationResult, error)
}

// CaptureResult is either a screenshot batch or a compilation error,
// never both.
type CaptureResult struct {
	Screenshots      []string
	CompilationError *models.CompilationError
}

// CaptureService renders code at a set of animation time samples.
type CaptureService interface {
	Capture(ctx context.Context, code string, timeValues []float64) (*CaptureResult, error)
}
