package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/a-kuz/shader-maker/pkg/events"
	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
)

// statusForKind maps a running step kind to the process status that
// announces it.
func statusForKind(kind models.StepKind) models.ProcessStatus {
	switch kind {
	case models.StepKindGeneration:
		return models.ProcessStatusGenerating
	case models.StepKindCapture:
		return models.ProcessStatusCapturing
	case models.StepKindEvaluation:
		return models.ProcessStatusEvaluating
	case models.StepKindImprovement:
		return models.ProcessStatusImproving
	case models.StepKindFix:
		return models.ProcessStatusFixing
	default:
		return models.ProcessStatusCompleted
	}
}

// beginStep creates a running step, moves the process into the matching
// status and records update and event. The step record exists before any
// collaborator is called, so a crash mid-call leaves an orphan the
// recovery pass can find.
func (r *Runner) beginStep(ctx context.Context, process *models.Process, kind models.StepKind, input models.StepInput) (*models.Step, error) {
	if running, err := r.persistence.RunningStep(ctx, process.ID, kind); err == nil {
		return running, nil
	} else if !persistence.IsStepNotFound(err) {
		return nil, err
	}

	step := &models.Step{
		ID:        uuid.New().String(),
		ProcessID: process.ID,
		Kind:      kind,
		Status:    models.StepStatusRunning,
		Input:     input,
		StartedAt: time.Now().UTC(),
	}
	if err := r.persistence.CreateStep(ctx, step); err != nil {
		return nil, err
	}

	status := statusForKind(kind)
	if err := r.persistence.UpdateProcess(ctx, process.ID, persistence.ProcessUpdate{
		Status:      &status,
		CurrentStep: &step.Kind,
	}); err != nil {
		return nil, err
	}
	process.Status = status
	process.CurrentStep = &step.Kind

	r.logger.InfoContext(ctx, "Step started",
		"process_id", process.ID, "step_id", step.ID, "kind", kind)
	r.appendUpdate(ctx, process, updateOptions{
		message: string(kind) + " started",
		step:    &step.Kind,
		stepID:  step.ID,
	})
	r.publish(ctx, process.ID, events.StepStarted{
		BaseEvent: r.newBaseEvent(events.StepStartedEvent, process.ID),
		StepID:    step.ID,
		Kind:      kind,
	})

	return step, nil
}

// runExecutorStep begins a step of the given kind and executes its
// registered executor asynchronously. The collaborator call runs outside
// any request context: once started, a step belongs to the process, not
// to the HTTP request that triggered it.
func (r *Runner) runExecutorStep(ctx context.Context, process *models.Process, kind models.StepKind, input models.StepInput) error {
	step, err := r.beginStep(ctx, process, kind, input)
	if err != nil {
		return err
	}

	go r.executeStep(process.ID, step)

	return nil
}

func (r *Runner) executeStep(processID string, step *models.Step) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.StepTimeout)
	defer cancel()

	process, err := r.persistence.ProcessByID(ctx, processID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to load process for step",
			"process_id", processID, "step_id", step.ID, "error", err)
		return
	}

	executor, err := r.registry.Executor(step.Kind)
	if err != nil {
		r.failStep(ctx, process, step, err)
		return
	}

	output, interaction, err := executor.Execute(ctx, process, step.Input)
	if err != nil {
		r.failStep(ctx, process, step, err)
		return
	}

	r.completeStep(ctx, process, step, output, interaction)
}

// stepSettled reports whether the step already reached a final status.
// The server render and a client submission can race on the same
// capture step; whichever finalizer runs second must leave the winner's
// result and the process alone.
func (r *Runner) stepSettled(ctx context.Context, processID, stepID string) bool {
	current, err := r.persistence.StepByID(ctx, stepID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to reload step",
			"process_id", processID, "step_id", stepID, "error", err)
		return false
	}
	if current.Status != models.StepStatusRunning {
		r.logger.InfoContext(ctx, "Step already settled, discarding late result",
			"process_id", processID, "step_id", stepID, "status", current.Status)
		return true
	}

	return false
}

// completeStep persists a step result and schedules the next transition.
// The process status is re-read first: results arriving after a pause or
// stop are persisted on the step but never advance the process.
func (r *Runner) completeStep(ctx context.Context, process *models.Process, step *models.Step, output *models.StepOutput, interaction *models.AIInteraction) {
	if r.stepSettled(ctx, process.ID, step.ID) {
		return
	}

	now := time.Now().UTC()
	duration := now.Sub(step.StartedAt)
	completed := models.StepStatusCompleted
	if err := r.persistence.UpdateStep(ctx, step.ID, persistence.StepUpdate{
		Status:      &completed,
		Output:      output,
		Interaction: interaction,
		CompletedAt: &now,
		Duration:    &duration,
	}); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist step result",
			"process_id", process.ID, "step_id", step.ID, "error", err)
		r.failStep(ctx, process, step, err)
		return
	}

	r.logger.InfoContext(ctx, "Step completed",
		"process_id", process.ID, "step_id", step.ID, "kind", step.Kind,
		"duration", duration)

	current, err := r.persistence.ProcessByID(ctx, process.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to reload process",
			"process_id", process.ID, "error", err)
		return
	}
	if !current.Status.IsActive() {
		r.logger.InfoContext(ctx, "Step result persisted on inactive process",
			"process_id", process.ID, "step_id", step.ID, "status", current.Status)
		return
	}

	r.appendUpdate(ctx, current, updateOptions{
		message: string(step.Kind) + " completed",
		step:    &step.Kind,
		stepID:  step.ID,
	})
	r.publish(ctx, process.ID, events.StepCompleted{
		BaseEvent: r.newBaseEvent(events.StepCompletedEvent, process.ID),
		StepID:    step.ID,
		Kind:      step.Kind,
		Duration:  duration,
	})

	r.scheduleContinue(process.ID)
}

// failStep records a step failure and, unless the process was paused or
// stopped in the meantime, fails the process with it.
func (r *Runner) failStep(ctx context.Context, process *models.Process, step *models.Step, stepErr error) {
	if r.stepSettled(ctx, process.ID, step.ID) {
		return
	}

	now := time.Now().UTC()
	duration := now.Sub(step.StartedAt)
	failed := models.StepStatusFailed
	message := stepErr.Error()
	if err := r.persistence.UpdateStep(ctx, step.ID, persistence.StepUpdate{
		Status:      &failed,
		Error:       &message,
		CompletedAt: &now,
		Duration:    &duration,
	}); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist step failure",
			"process_id", process.ID, "step_id", step.ID, "error", err)
	}

	r.logger.ErrorContext(ctx, "Step failed",
		"process_id", process.ID, "step_id", step.ID, "kind", step.Kind,
		"error", stepErr)
	r.publish(ctx, process.ID, events.StepFailed{
		BaseEvent: r.newBaseEvent(events.StepFailedEvent, process.ID),
		StepID:    step.ID,
		Kind:      step.Kind,
		Error:     message,
	})

	current, err := r.persistence.ProcessByID(ctx, process.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to reload process",
			"process_id", process.ID, "error", err)
		return
	}
	if !current.Status.IsActive() {
		return
	}

	r.failProcess(ctx, current, message)
}

func (r *Runner) failProcess(ctx context.Context, process *models.Process, message string) {
	now := time.Now().UTC()
	status := models.ProcessStatusFailed
	if err := r.persistence.UpdateProcess(ctx, process.ID, persistence.ProcessUpdate{
		Status:      &status,
		ClearStep:   true,
		CompletedAt: &now,
	}); err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark process failed",
			"process_id", process.ID, "error", err)
		return
	}
	process.Status = status
	process.CurrentStep = nil

	r.appendUpdate(ctx, process, updateOptions{
		message:  "process failed",
		errorMsg: message,
	})
	r.publish(ctx, process.ID, events.ProcessFailed{
		BaseEvent: r.newBaseEvent(events.ProcessFailedEvent, process.ID),
		Error:     message,
	})
}
