package runner

import (
	"context"
	"time"

	"github.com/a-kuz/shader-maker/pkg/events"
	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
)

// ControlAction names the operations accepted by Control.
type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
	ActionStop   ControlAction = "stop"
	ActionRetry  ControlAction = "retry"
)

// Control dispatches a named control action.
func (r *Runner) Control(ctx context.Context, processID string, action ControlAction) error {
	switch action {
	case ActionPause:
		return r.Pause(ctx, processID)
	case ActionResume:
		return r.Resume(ctx, processID)
	case ActionStop:
		return r.Stop(ctx, processID)
	case ActionRetry:
		return r.Retry(ctx, processID)
	default:
		return ErrUnknownAction
	}
}

// Pause freezes a process. Scheduled continuations are cancelled;
// results of in-flight collaborator calls are still persisted on their
// steps but do not advance the process until Resume.
func (r *Runner) Pause(ctx context.Context, processID string) error {
	process, err := r.persistence.ProcessByID(ctx, processID)
	if err != nil {
		return err
	}
	if process.Status.IsTerminal() {
		return ErrProcessFinished
	}
	if process.Status == models.ProcessStatusPaused {
		return nil
	}

	r.cancelContinuation(processID)

	status := models.ProcessStatusPaused
	if err := r.persistence.UpdateProcess(ctx, processID, persistence.ProcessUpdate{
		Status: &status,
	}); err != nil {
		return err
	}
	process.Status = status

	r.logger.InfoContext(ctx, "Process paused", "process_id", processID)
	r.appendUpdate(ctx, process, updateOptions{message: "process paused"})
	r.publish(ctx, processID, events.ProcessPaused{
		BaseEvent: r.newBaseEvent(events.ProcessPausedEvent, processID),
	})

	return nil
}

// Resume re-derives what comes next from the persisted step history and
// continues from there. Nothing about the pre-pause status is stored;
// the step rows already say where the process stands.
func (r *Runner) Resume(ctx context.Context, processID string) error {
	process, err := r.persistence.ProcessByID(ctx, processID)
	if err != nil {
		return err
	}
	if process.Status != models.ProcessStatusPaused {
		return ErrProcessNotPaused
	}

	r.logger.InfoContext(ctx, "Process resumed", "process_id", processID)
	if err := r.drive(ctx, process); err != nil {
		return err
	}

	r.appendUpdate(ctx, process, updateOptions{message: "process resumed"})
	r.publish(ctx, processID, events.ProcessResumed{
		BaseEvent: r.newBaseEvent(events.ProcessResumedEvent, processID),
		Status:    process.Status,
	})

	return nil
}

// Stop finishes a process immediately. It ends completed, with no
// result: the work so far stays readable but nothing runs again. Results
// of in-flight calls arriving afterwards are persisted on their steps
// and go no further.
func (r *Runner) Stop(ctx context.Context, processID string) error {
	process, err := r.persistence.ProcessByID(ctx, processID)
	if err != nil {
		return err
	}
	if process.Status.IsTerminal() {
		return nil
	}

	r.cancelContinuation(processID)

	now := time.Now().UTC()
	status := models.ProcessStatusCompleted
	if err := r.persistence.UpdateProcess(ctx, processID, persistence.ProcessUpdate{
		Status:      &status,
		ClearStep:   true,
		CompletedAt: &now,
	}); err != nil {
		return err
	}
	process.Status = status
	process.CurrentStep = nil
	process.CompletedAt = &now

	r.logger.InfoContext(ctx, "Process stopped", "process_id", processID)
	r.appendUpdate(ctx, process, updateOptions{message: "process stopped"})
	r.publish(ctx, processID, events.ProcessStopped{
		BaseEvent: r.newBaseEvent(events.ProcessStoppedEvent, processID),
	})

	return nil
}

// Retry re-drives a failed (or paused) process from its persisted state.
// Failed steps stay in the history; the step they interrupted runs again
// as a fresh step.
func (r *Runner) Retry(ctx context.Context, processID string) error {
	process, err := r.persistence.ProcessByID(ctx, processID)
	if err != nil {
		return err
	}
	if process.Status != models.ProcessStatusFailed && process.Status != models.ProcessStatusPaused {
		return ErrProcessNotRetryable
	}

	r.logger.InfoContext(ctx, "Process retried", "process_id", processID)
	r.appendUpdate(ctx, process, updateOptions{message: "process retried"})

	return r.drive(ctx, process)
}
