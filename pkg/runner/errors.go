// Package runner implements the process state machine that drives a
// prompt through generation, capture, evaluation and improvement until
// the quality target or iteration cap is reached.
package runner

import "errors"

var (
	// ErrPromptRequired indicates a start request without a prompt.
	ErrPromptRequired = errors.New("prompt is required")

	// ErrNoCodeFound indicates no completed code-producing step could be
	// found for a capture, even after the bounded wait.
	ErrNoCodeFound = errors.New("no code found for capture")

	// ErrMissingScreenshots indicates a screenshot submission with
	// neither screenshots nor a compilation error.
	ErrMissingScreenshots = errors.New("submission has neither screenshots nor a compilation error")

	// ErrNotCaptureStep indicates a screenshot submission targeting a
	// step that is not a capture step.
	ErrNotCaptureStep = errors.New("step is not a capture step")

	// ErrStepFinished indicates a screenshot submission targeting a
	// capture step that already failed.
	ErrStepFinished = errors.New("step already finished")

	// ErrProcessNotPaused indicates a resume request for a process that
	// is not paused.
	ErrProcessNotPaused = errors.New("process is not paused")

	// ErrProcessNotRetryable indicates a retry request for a process
	// that is neither failed nor paused.
	ErrProcessNotRetryable = errors.New("process is not failed or paused")

	// ErrProcessFinished indicates a control request for a process that
	// already reached a terminal state.
	ErrProcessFinished = errors.New("process already finished")

	// ErrUnknownAction indicates an unsupported control action name.
	ErrUnknownAction = errors.New("unknown control action")

	// ErrNoCaptureService indicates a server-side capture request on a
	// deployment configured without a capture service.
	ErrNoCaptureService = errors.New("no server-side capture service configured")

	// ErrCaptureNotPending indicates a capture step request while the
	// process is evaluating; the next transition cannot be a capture, so
	// opening one would only trigger a redundant render round.
	ErrCaptureNotPending = errors.New("process is not awaiting capture")
)

// IsInvalidTransition reports whether the error is a control request
// rejected because of the process's current state.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrProcessNotPaused) ||
		errors.Is(err, ErrProcessNotRetryable) ||
		errors.Is(err, ErrProcessFinished) ||
		errors.Is(err, ErrCaptureNotPending)
}
