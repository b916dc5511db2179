package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/a-kuz/shader-maker/pkg/events"
	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
)

// drive derives the next transition from the persisted step history and
// performs it. It is the single continuation path: step completions,
// resume, retry and recovery all end up here, so every caller gets the
// same answer for the same state.
//
// Failed steps are deliberately ignored during derivation. The step that
// comes next is a function of what has completed; a retry after a failed
// step therefore re-runs it as a fresh step.
func (r *Runner) drive(ctx context.Context, process *models.Process) error {
	// Completed is final. Failed is not checked here: Retry re-enters
	// drive from exactly that state.
	if process.Status == models.ProcessStatusCompleted {
		return nil
	}

	// A running step already owns the process; its completion will
	// re-enter drive. Only realign the status, which matters on resume.
	if running, err := r.persistence.RunningStep(ctx, process.ID); err == nil {
		return r.alignStatus(ctx, process, statusForKind(running.Kind), &running.Kind)
	} else if !persistence.IsStepNotFound(err) {
		return err
	}

	anchor := newestCompletedDriving(process)
	if anchor == nil {
		return r.runExecutorStep(ctx, process, models.StepKindGeneration, models.StepInput{
			Prompt: process.Prompt,
		})
	}

	switch anchor.Kind {
	case models.StepKindGeneration, models.StepKindImprovement, models.StepKindFix:
		return r.enterCapturing(ctx, process)

	case models.StepKindCapture:
		if anchor.Output.CompilationError != nil {
			code, ok := latestCode(process)
			if !ok {
				return ErrNoCodeFound
			}
			return r.runExecutorStep(ctx, process, models.StepKindFix, models.StepInput{
				Prompt: process.Prompt,
				Code:   code,
				Error:  anchor.Output.CompilationError,
			})
		}

		code, ok := latestCode(process)
		if !ok {
			return ErrNoCodeFound
		}
		return r.runExecutorStep(ctx, process, models.StepKindEvaluation, models.StepInput{
			Prompt:      process.Prompt,
			Code:        code,
			Screenshots: anchor.Output.Screenshots,
		})

	case models.StepKindEvaluation:
		return r.afterEvaluation(ctx, process, anchor)
	}

	return nil
}

// afterEvaluation applies the completion policy: finish when the score
// reached the target or the iteration cap is exhausted, otherwise start
// another improvement round.
func (r *Runner) afterEvaluation(ctx context.Context, process *models.Process, evaluation *models.Step) error {
	score := *evaluation.Output.Score
	iterations := iterationCount(process)

	if score >= process.Config.TargetScore || iterations >= process.Config.MaxIterations {
		return r.complete(ctx, process, score, iterations)
	}

	code, ok := latestCode(process)
	if !ok {
		return ErrNoCodeFound
	}

	var screenshots []string
	if capture := latestCapture(process); capture != nil {
		screenshots = capture.Output.Screenshots
	}

	return r.runExecutorStep(ctx, process, models.StepKindImprovement, models.StepInput{
		Prompt:      process.Prompt,
		Code:        code,
		Feedback:    evaluation.Output.Feedback,
		Screenshots: screenshots,
	})
}

// enterCapturing creates (or re-uses) the running capture step and, when
// the process drives itself with server-side capture, kicks off the
// render. In every other mode the process now waits for an external
// capture trigger or screenshot submission.
func (r *Runner) enterCapturing(ctx context.Context, process *models.Process) error {
	input := models.StepInput{Prompt: process.Prompt}
	if code, ok := latestCode(process); ok {
		input.Code = code
	}

	step, err := r.beginStep(ctx, process, models.StepKindCapture, input)
	if err != nil {
		return err
	}

	if process.Config.AutoMode && process.Config.ServerCapture && r.capture != nil {
		go r.serverCapture(process.ID, step.ID)
	}

	return nil
}

// complete finishes a process successfully: it records a completion step
// and writes the final result.
func (r *Runner) complete(ctx context.Context, process *models.Process, finalScore float64, iterations int) error {
	now := time.Now().UTC()
	zero := time.Duration(0)
	completionStep := &models.Step{
		ID:          uuid.New().String(),
		ProcessID:   process.ID,
		Kind:        models.StepKindCompletion,
		Status:      models.StepStatusCompleted,
		Input:       models.StepInput{Prompt: process.Prompt},
		Output:      &models.StepOutput{Code: bestCode(process), Score: &finalScore},
		StartedAt:   now,
		CompletedAt: &now,
		Duration:    &zero,
	}
	if err := r.persistence.CreateStep(ctx, completionStep); err != nil {
		return err
	}

	result := &models.ProcessResult{
		Code:       bestCode(process),
		FinalScore: finalScore,
		Iterations: iterations,
		Duration:   now.Sub(process.CreatedAt),
	}

	status := models.ProcessStatusCompleted
	if err := r.persistence.UpdateProcess(ctx, process.ID, persistence.ProcessUpdate{
		Status:      &status,
		ClearStep:   true,
		Result:      result,
		CompletedAt: &now,
	}); err != nil {
		return err
	}
	process.Status = status
	process.CurrentStep = nil
	process.Result = result

	r.logger.InfoContext(ctx, "Process completed",
		"process_id", process.ID, "final_score", finalScore, "iterations", iterations)
	r.appendUpdate(ctx, process, updateOptions{
		message: "process completed",
		result:  result,
	})
	r.publish(ctx, process.ID, events.ProcessCompleted{
		BaseEvent: r.newBaseEvent(events.ProcessCompletedEvent, process.ID),
		Result:    result,
	})

	return nil
}

// alignStatus moves the process into the given status when it is not
// already there. Used when resuming next to an in-flight step.
func (r *Runner) alignStatus(ctx context.Context, process *models.Process, status models.ProcessStatus, step *models.StepKind) error {
	if process.Status == status {
		return nil
	}

	if err := r.persistence.UpdateProcess(ctx, process.ID, persistence.ProcessUpdate{
		Status:      &status,
		CurrentStep: step,
	}); err != nil {
		return err
	}
	process.Status = status
	process.CurrentStep = step

	r.appendUpdate(ctx, process, updateOptions{
		message: string(status),
		step:    step,
	})

	return nil
}
