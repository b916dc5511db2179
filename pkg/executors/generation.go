package executors

import (
	"context"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/protocol"
)

// Generation produces the first shader from the process prompt.
type Generation struct {
	generator protocol.Generator
}

func NewGeneration(generator protocol.Generator) *Generation {
	return &Generation{generator: generator}
}

func (e *Generation) Kind() models.StepKind {
	return models.StepKindGeneration
}

func (e *Generation) Execute(ctx context.Context, process *models.Process, input models.StepInput) (*models.StepOutput, *models.AIInteraction, error) {
	result, err := e.generator.Generate(ctx, input.Prompt)
	if err != nil {
		return nil, nil, err
	}

	return &models.StepOutput{Code: result.Code}, result.Interaction, nil
}
