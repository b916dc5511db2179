package executors

import (
	"context"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/protocol"
)

// Evaluation scores the captured screenshots against the prompt. The
// evaluator's score is clamped into [0,100] before it is returned.
type Evaluation struct {
	evaluator protocol.Evaluator
}

func NewEvaluation(evaluator protocol.Evaluator) *Evaluation {
	return &Evaluation{evaluator: evaluator}
}

func (e *Evaluation) Kind() models.StepKind {
	return models.StepKindEvaluation
}

func (e *Evaluation) Execute(ctx context.Context, process *models.Process, input models.StepInput) (*models.StepOutput, *models.AIInteraction, error) {
	result, err := e.evaluator.Evaluate(ctx, input.Prompt, input.Code, input.Screenshots)
	if err != nil {
		return nil, nil, err
	}

	score := clampScore(result.Score)

	return &models.StepOutput{Score: &score, Feedback: result.Feedback}, result.Interaction, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}

	if score > 100 {
		return 100
	}

	return score
}
