package executors

import (
	"context"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/protocol"
)

// Fix repairs a shader the capture collaborator refused to compile.
type Fix struct {
	fixer protocol.Fixer
}

func NewFix(fixer protocol.Fixer) *Fix {
	return &Fix{fixer: fixer}
}

func (e *Fix) Kind() models.StepKind {
	return models.StepKindFix
}

func (e *Fix) Execute(ctx context.Context, process *models.Process, input models.StepInput) (*models.StepOutput, *models.AIInteraction, error) {
	var message, detail string
	if input.Error != nil {
		message = input.Error.Message
		detail = input.Error.Detail
	}

	result, err := e.fixer.Fix(ctx, input.Prompt, input.Code, message, detail)
	if err != nil {
		return nil, nil, err
	}

	return &models.StepOutput{Code: result.Code}, result.Interaction, nil
}
