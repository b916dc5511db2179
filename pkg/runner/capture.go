package runner

import (
	"context"
	"time"

	"github.com/a-kuz/shader-maker/pkg/capture"
	"github.com/a-kuz/shader-maker/pkg/models"
)

// EnsureCaptureStep returns the running capture step for the process,
// creating one if none exists. Calling it repeatedly is safe: the
// single-flight check inside beginStep returns the existing step. It is
// how client-side renderers obtain the step id they later submit
// screenshots for, possibly before the code they will render even exists.
func (r *Runner) EnsureCaptureStep(ctx context.Context, processID string) (*models.Step, error) {
	process, err := r.persistence.ProcessByID(ctx, processID)
	if err != nil {
		return nil, err
	}
	if process.Status.IsTerminal() {
		return nil, ErrProcessFinished
	}
	// While an evaluation is pending the next transition is an
	// improvement or completion, never a capture.
	if process.Status == models.ProcessStatusEvaluating {
		return nil, ErrCaptureNotPending
	}

	input := models.StepInput{Prompt: process.Prompt}
	if code, ok := latestCode(process); ok {
		input.Code = code
	}

	return r.beginStep(ctx, process, models.StepKindCapture, input)
}

// TriggerServerCapture renders the current code on the server-side
// capture service and completes the capture step with the outcome. It
// returns the capture step and the number of screenshots taken, zero
// when the shader failed to compile.
func (r *Runner) TriggerServerCapture(ctx context.Context, processID string) (*models.Step, int, error) {
	if r.capture == nil {
		return nil, 0, ErrNoCaptureService
	}

	step, err := r.EnsureCaptureStep(ctx, processID)
	if err != nil {
		return nil, 0, err
	}

	code, err := r.waitForCode(ctx, processID)
	if err != nil {
		return nil, 0, err
	}

	result, err := r.capture.Capture(ctx, code, capture.DefaultTimeValues)
	if err != nil {
		process, loadErr := r.persistence.ProcessByID(ctx, processID)
		if loadErr == nil {
			r.failStep(ctx, process, step, err)
		}
		return nil, 0, err
	}

	if err := r.finishCapture(ctx, processID, step, result.Screenshots, result.CompilationError); err != nil {
		return nil, 0, err
	}

	return step, len(result.Screenshots), nil
}

// serverCapture is the auto-mode render path, detached from any request.
func (r *Runner) serverCapture(processID, stepID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.StepTimeout)
	defer cancel()

	step, err := r.persistence.StepByID(ctx, stepID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to load capture step",
			"process_id", processID, "step_id", stepID, "error", err)
		return
	}
	if step.Status != models.StepStatusRunning {
		return
	}

	code, err := r.waitForCode(ctx, processID)
	if err != nil {
		r.logger.ErrorContext(ctx, "No code available for capture",
			"process_id", processID, "step_id", stepID, "error", err)
		process, loadErr := r.persistence.ProcessByID(ctx, processID)
		if loadErr == nil {
			r.failStep(ctx, process, step, err)
		}
		return
	}

	result, err := r.capture.Capture(ctx, code, capture.DefaultTimeValues)
	if err != nil {
		process, loadErr := r.persistence.ProcessByID(ctx, processID)
		if loadErr == nil {
			r.failStep(ctx, process, step, err)
		}
		return
	}

	if err := r.finishCapture(ctx, processID, step, result.Screenshots, result.CompilationError); err != nil {
		r.logger.ErrorContext(ctx, "Failed to finish capture",
			"process_id", processID, "step_id", stepID, "error", err)
	}
}

// SubmitScreenshots accepts externally rendered screenshots (or a
// compilation error) for a capture step. The prerequisite code step may
// still be running when the submission arrives; the call waits a bounded
// time for it before giving up with ErrNoCodeFound, leaving the process
// untouched so the client can retry.
func (r *Runner) SubmitScreenshots(ctx context.Context, processID, stepID string, screenshots []string, compilationError *models.CompilationError) error {
	if len(screenshots) == 0 && compilationError == nil {
		return ErrMissingScreenshots
	}

	step, err := r.persistence.StepByID(ctx, stepID)
	if err != nil {
		return err
	}
	if step.ProcessID != processID {
		return ErrNotCaptureStep
	}
	if step.Kind != models.StepKindCapture {
		return ErrNotCaptureStep
	}
	switch step.Status {
	case models.StepStatusCompleted:
		// A duplicate submission after a race is not an error.
		return nil
	case models.StepStatusFailed:
		return ErrStepFinished
	}

	if _, err := r.waitForCode(ctx, processID); err != nil {
		return err
	}

	return r.finishCapture(ctx, processID, step, screenshots, compilationError)
}

// waitForCode polls for a completed code-producing step, bounded by the
// configured attempts. It exists for one race: a client submitting
// screenshots (rendered from code it received out of band) before the
// code step's completion has been persisted.
func (r *Runner) waitForCode(ctx context.Context, processID string) (string, error) {
	for attempt := 0; attempt < r.opts.CodeWaitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(r.opts.CodeWaitDelay):
			}
		}

		process, err := r.persistence.ProcessByID(ctx, processID)
		if err != nil {
			return "", err
		}
		if code, ok := latestCode(process); ok {
			return code, nil
		}
	}

	return "", ErrNoCodeFound
}

// finishCapture completes a capture step with either screenshots or a
// compilation error, then schedules the next transition. Late results on
// a paused or stopped process are persisted but do not advance it.
func (r *Runner) finishCapture(ctx context.Context, processID string, step *models.Step, screenshots []string, compilationError *models.CompilationError) error {
	process, err := r.persistence.ProcessByID(ctx, processID)
	if err != nil {
		return err
	}

	output := &models.StepOutput{
		Screenshots:      screenshots,
		CompilationError: compilationError,
	}
	r.completeStep(ctx, process, step, output, nil)

	return nil
}
