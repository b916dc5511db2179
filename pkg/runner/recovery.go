package runner

import (
	"context"
	"time"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
)

// RecoverOrphans scans for processes whose in-flight step was lost to a
// restart and settles them. A step that was running when the previous
// instance died will never complete: re-executing it could double-bill
// the collaborator and duplicate side effects, so the step and its
// process are marked failed instead, leaving retry available. Active
// processes with no running step crashed between a completion and its
// transition; those are simply continued.
func (r *Runner) RecoverOrphans(ctx context.Context) error {
	const pageSize = 100

	for page := 1; ; page++ {
		result, err := r.persistence.ListProcesses(ctx, persistence.ListProcessesOptions{
			Page:         page,
			Limit:        pageSize,
			IncludeSteps: true,
		})
		if err != nil {
			return err
		}

		for _, process := range result.Processes {
			r.recoverProcess(ctx, process)
		}

		if int64(page*pageSize) >= result.Total {
			return nil
		}
	}
}

func (r *Runner) recoverProcess(ctx context.Context, process *models.Process) {
	orphan := runningStepOf(process)

	// Paused processes keep their status, but a step orphaned under
	// them is settled now so a later resume does not wait forever.
	if process.Status == models.ProcessStatusPaused {
		if orphan != nil {
			r.failOrphanStep(ctx, process, orphan)
		}
		return
	}

	if !process.Status.IsActive() {
		return
	}

	if orphan != nil {
		r.logger.WarnContext(ctx, "Recovered orphaned step",
			"process_id", process.ID, "step_id", orphan.ID, "kind", orphan.Kind)
		r.failOrphanStep(ctx, process, orphan)
		r.failProcess(ctx, process, "interrupted by restart")
		return
	}

	r.logger.InfoContext(ctx, "Continuing process after restart", "process_id", process.ID)
	r.scheduleContinue(process.ID)
}

func (r *Runner) failOrphanStep(ctx context.Context, process *models.Process, step *models.Step) {
	failed := models.StepStatusFailed
	message := "interrupted by restart"
	now := time.Now().UTC()
	duration := now.Sub(step.StartedAt)
	if err := r.persistence.UpdateStep(ctx, step.ID, persistence.StepUpdate{
		Status:      &failed,
		Error:       &message,
		CompletedAt: &now,
		Duration:    &duration,
	}); err != nil {
		r.logger.ErrorContext(ctx, "Failed to settle orphaned step",
			"process_id", process.ID, "step_id", step.ID, "error", err)
	}
}

func runningStepOf(process *models.Process) *models.Step {
	for _, step := range process.Steps {
		if step.Status == models.StepStatusRunning {
			return step
		}
	}
	return nil
}
