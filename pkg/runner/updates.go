package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/a-kuz/shader-maker/pkg/eventbus"
	"github.com/a-kuz/shader-maker/pkg/events"
	"github.com/a-kuz/shader-maker/pkg/models"
)

type updateOptions struct {
	message  string
	step     *models.StepKind
	stepID   string
	result   *models.ProcessResult
	errorMsg string
}

// progressFor maps a status to a coarse completion percentage for the
// update feed. Exact per-iteration math is not worth the precision: the
// feed drives progress bars, not decisions.
func progressFor(status models.ProcessStatus) int {
	switch status {
	case models.ProcessStatusCreated:
		return 0
	case models.ProcessStatusGenerating:
		return 15
	case models.ProcessStatusCapturing:
		return 40
	case models.ProcessStatusEvaluating:
		return 60
	case models.ProcessStatusImproving, models.ProcessStatusFixing:
		return 75
	case models.ProcessStatusCompleted, models.ProcessStatusFailed:
		return 100
	default:
		return 0
	}
}

// appendUpdate writes one entry to the process's append-only update log.
// Failures are logged and swallowed: the update feed is a convenience
// mirror, losing one entry must not abort a transition.
func (r *Runner) appendUpdate(ctx context.Context, process *models.Process, opts updateOptions) {
	update := &models.Update{
		ID:        uuid.New().String(),
		ProcessID: process.ID,
		Status:    process.Status,
		Step:      opts.step,
		Message:   opts.message,
		Progress:  progressFor(process.Status),
		StepID:    opts.stepID,
		Result:    opts.result,
		Error:     opts.errorMsg,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.persistence.AppendUpdate(ctx, update); err != nil {
		r.logger.ErrorContext(ctx, "Failed to append update", "process_id", process.ID, "error", err)
	}
}

func (r *Runner) newBaseEvent(eventType events.EventType, processID string) events.BaseEvent {
	id := uuid.New().String()
	if r.eventBus != nil {
		id = r.eventBus.GenerateID()
	}

	return events.BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ProcessID: processID,
	}
}

// publish sends a lifecycle event on the bus. Like updates, bus failures
// never abort a transition.
func (r *Runner) publish(ctx context.Context, processID string, event eventbus.Event) {
	if r.eventBus == nil {
		return
	}
	if err := r.eventBus.Publish(ctx, processID, event); err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish event",
			"process_id", processID, "event_type", event.GetType(), "error", err)
	}
}
