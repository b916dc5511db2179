package executors

import (
	"context"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/protocol"
)

// Improvement revises the shader using evaluator feedback and the
// captured screenshots.
type Improvement struct {
	improver protocol.Improver
}

func NewImprovement(improver protocol.Improver) *Improvement {
	return &Improvement{improver: improver}
}

func (e *Improvement) Kind() models.StepKind {
	return models.StepKindImprovement
}

func (e *Improvement) Execute(ctx context.Context, process *models.Process, input models.StepInput) (*models.StepOutput, *models.AIInteraction, error) {
	result, err := e.improver.Improve(ctx, input.Prompt, input.Code, input.Feedback, input.Screenshots)
	if err != nil {
		return nil, nil, err
	}

	return &models.StepOutput{Code: result.Code}, result.Interaction, nil
}
