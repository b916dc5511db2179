// Package persistence provides the data storage abstraction for processes,
// steps and the update log.
package persistence

import (
	"context"
	"time"

	"github.com/a-kuz/shader-maker/pkg/models"
)

// ProcessUpdate is a partial update of a process row. Nil fields are
// left untouched; UpdatedAt is always bumped.
type ProcessUpdate struct {
	Status      *models.ProcessStatus
	CurrentStep *models.StepKind
	ClearStep   bool
	Result      *models.ProcessResult
	CompletedAt *time.Time
}

// StepUpdate is a partial update of a step row.
type StepUpdate struct {
	Status      *models.StepStatus
	Output      *models.StepOutput
	Error       *string
	Interaction *models.AIInteraction
	CompletedAt *time.Time
	Duration    *time.Duration
}

// ListProcessesOptions controls pagination for ListProcesses. When
// IncludeSteps is false the step collections are omitted for performance.
type ListProcessesOptions struct {
	Page         int
	Limit        int
	IncludeSteps bool
}

// ProcessListResult is a page of processes ordered newest-created-first.
type ProcessListResult struct {
	Processes []*models.Process
	Total     int64
}

// Persistence is the single source of truth for process state. All
// mutation goes through it, never through in-memory state alone.
//
// Operations referencing an unknown id return the package's sentinel
// errors; structural failures (serialization, storage unavailable) are
// wrapped and propagated.
type Persistence interface {
	CreateProcess(ctx context.Context, process *models.Process) error
	UpdateProcess(ctx context.Context, id string, update ProcessUpdate) error
	ProcessByID(ctx context.Context, id string) (*models.Process, error)
	ListProcesses(ctx context.Context, opts ListProcessesOptions) (*ProcessListResult, error)
	DeleteProcess(ctx context.Context, id string) error

	CreateStep(ctx context.Context, step *models.Step) error
	UpdateStep(ctx context.Context, id string, update StepUpdate) error
	StepByID(ctx context.Context, id string) (*models.Step, error)
	// RunningStep returns the running step of one of the given kinds for
	// the process, or ErrStepNotFound when there is none. It backs the
	// single-flight invariant.
	RunningStep(ctx context.Context, processID string, kinds ...models.StepKind) (*models.Step, error)

	AppendUpdate(ctx context.Context, update *models.Update) error
	// ListUpdates returns updates for the process in ascending creation
	// order. With a non-nil since, only updates strictly newer than it
	// are returned, so repeated polling with the last seen timestamp
	// never re-delivers and never skips.
	ListUpdates(ctx context.Context, processID string, since *time.Time) ([]*models.Update, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
