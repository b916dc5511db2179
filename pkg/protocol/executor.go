package protocol

import (
	"context"

	"github.com/a-kuz/shader-maker/pkg/models"
)

// StepExecutor runs one kind of AI-backed step. Implementations wrap a
// single collaborator call; the runner owns step records, updates and
// error persistence around the call.
//
// Capture is deliberately not a StepExecutor: its server/client duality
// is orchestration logic, not a collaborator wrapper.
type StepExecutor interface {
	Kind() models.StepKind
	Execute(ctx context.Context, process *models.Process, input models.StepInput) (*models.StepOutput, *models.AIInteraction, error)
}
