package runner

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-kuz/shader-maker/pkg/executors"
	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
	"github.com/a-kuz/shader-maker/pkg/persistence/sqlite"
	"github.com/a-kuz/shader-maker/pkg/protocol"
)

// stubAI implements all four collaborator contracts with scripted
// responses.
type stubAI struct {
	mu sync.Mutex

	generateCode  string
	generateDelay time.Duration
	generateErrs  []error // consumed before generateCode is returned

	improveCode string
	fixCode     string

	scores   []float64 // consumed per evaluation, last one repeats
	feedback string

	generateCalls int
	evaluateCalls int
	improveCalls  int
	fixCalls      int
}

func (s *stubAI) Generate(ctx context.Context, prompt string) (*protocol.GenerationResult, error) {
	s.mu.Lock()
	s.generateCalls++
	var err error
	if len(s.generateErrs) > 0 {
		err = s.generateErrs[0]
		s.generateErrs = s.generateErrs[1:]
	}
	delay := s.generateDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err != nil {
		return nil, err
	}

	return &protocol.GenerationResult{Code: s.generateCode}, nil
}

func (s *stubAI) Evaluate(ctx context.Context, prompt, code string, images []string) (*protocol.EvaluationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evaluateCalls++

	score := 0.0
	if len(s.scores) > 0 {
		score = s.scores[0]
		if len(s.scores) > 1 {
			s.scores = s.scores[1:]
		}
	}

	return &protocol.EvaluationResult{Score: score, Feedback: s.feedback}, nil
}

func (s *stubAI) Improve(ctx context.Context, prompt, code, feedback string, images []string) (*protocol.GenerationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.improveCalls++

	return &protocol.GenerationResult{Code: s.improveCode}, nil
}

func (s *stubAI) Fix(ctx context.Context, prompt, code, errorMessage, errorDetail string) (*protocol.GenerationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fixCalls++

	return &protocol.GenerationResult{Code: s.fixCode}, nil
}

// stubCapture returns scripted capture results in order, repeating the
// last one. When gate is set, every call blocks until it is closed.
type stubCapture struct {
	mu      sync.Mutex
	results []*protocol.CaptureResult
	errs    []error // consumed before results
	gate    chan struct{}
	calls   int
}

func (s *stubCapture) Capture(ctx context.Context, code string, timeValues []float64) (*protocol.CaptureResult, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-gate:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]

		return nil, err
	}

	if len(s.results) == 0 {
		return &protocol.CaptureResult{Screenshots: []string{"data:image/png;base64,AAAA"}}, nil
	}

	result := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}

	return result, nil
}

func screenshotsResult() *protocol.CaptureResult {
	return &protocol.CaptureResult{Screenshots: []string{"data:image/png;base64,AAAA"}}
}

func compileErrorResult(message string) *protocol.CaptureResult {
	return &protocol.CaptureResult{CompilationError: &models.CompilationError{Message: message}}
}

func newTestRunner(t *testing.T, ai *stubAI, capture protocol.CaptureService) (*Runner, persistence.Persistence) {
	t.Helper()

	p, err := sqlite.NewPersistence(context.Background(), slog.Default(), filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = p.Close(context.Background())
	})

	registry := executors.NewDefaultRegistry(ai, ai, ai, ai)

	r := NewRunner(p, registry, capture, nil, slog.Default(), Options{
		ContinueDelay:    5 * time.Millisecond,
		CodeWaitAttempts: 40,
		CodeWaitDelay:    10 * time.Millisecond,
		StepTimeout:      5 * time.Second,
	})
	t.Cleanup(r.Close)

	return r, p
}

func waitForStatus(t *testing.T, p persistence.Persistence, processID string, status models.ProcessStatus) *models.Process {
	t.Helper()

	var process *models.Process

	require.Eventually(t, func() bool {
		loaded, err := p.ProcessByID(context.Background(), processID)
		if err != nil {
			return false
		}
		process = loaded

		return loaded.Status == status
	}, 5*time.Second, 5*time.Millisecond, "process never reached status %s", status)

	return process
}

func stepsOfKind(process *models.Process, kind models.StepKind) []*models.Step {
	var steps []*models.Step
	for _, step := range process.Steps {
		if step.Kind == kind {
			steps = append(steps, step)
		}
	}

	return steps
}

func TestRunner_FirstShotCompletion(t *testing.T) {
	ai := &stubAI{generateCode: "void mainImage() { v1 }", scores: []float64{90}, feedback: "great"}
	capture := &stubCapture{results: []*protocol.CaptureResult{screenshotsResult()}}
	r, p := newTestRunner(t, ai, capture)

	process, err := r.Start(context.Background(), "a rotating cube", nil)
	require.NoError(t, err)
	assert.False(t, process.Status.IsTerminal())

	final := waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)

	require.NotNil(t, final.Result)
	assert.Equal(t, "void mainImage() { v1 }", final.Result.Code)
	assert.InDelta(t, 90.0, final.Result.FinalScore, 0.001)
	assert.Equal(t, 0, final.Result.Iterations)
	assert.Positive(t, final.Result.Duration)
	require.NotNil(t, final.CompletedAt)
	assert.Nil(t, final.CurrentStep)

	assert.Len(t, stepsOfKind(final, models.StepKindGeneration), 1)
	assert.Len(t, stepsOfKind(final, models.StepKindCapture), 1)
	assert.Len(t, stepsOfKind(final, models.StepKindEvaluation), 1)
	assert.Len(t, stepsOfKind(final, models.StepKindCompletion), 1)
	assert.Empty(t, stepsOfKind(final, models.StepKindImprovement))
}

func TestRunner_ImprovementLoop(t *testing.T) {
	ai := &stubAI{
		generateCode: "void mainImage() { v1 }",
		improveCode:  "void mainImage() { v2 }",
		scores:       []float64{70, 85},
		feedback:     "more contrast",
	}
	capture := &stubCapture{}
	r, p := newTestRunner(t, ai, capture)

	process, err := r.Start(context.Background(), "a rotating cube", nil)
	require.NoError(t, err)

	final := waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)

	require.NotNil(t, final.Result)
	assert.Equal(t, "void mainImage() { v2 }", final.Result.Code)
	assert.InDelta(t, 85.0, final.Result.FinalScore, 0.001)
	assert.Equal(t, 1, final.Result.Iterations)

	improvements := stepsOfKind(final, models.StepKindImprovement)
	require.Len(t, improvements, 1)
	assert.Equal(t, "void mainImage() { v1 }", improvements[0].Input.Code)
	assert.Equal(t, "more contrast", improvements[0].Input.Feedback)

	// One capture per code revision.
	assert.Len(t, stepsOfKind(final, models.StepKindCapture), 2)
	assert.Len(t, stepsOfKind(final, models.StepKindEvaluation), 2)
}

func TestRunner_CompilationErrorTriggersFix(t *testing.T) {
	ai := &stubAI{
		generateCode: "broken code",
		fixCode:      "void mainImage() { fixed }",
		scores:       []float64{82},
	}
	capture := &stubCapture{results: []*protocol.CaptureResult{
		compileErrorResult("undeclared identifier"),
		screenshotsResult(),
	}}
	r, p := newTestRunner(t, ai, capture)

	process, err := r.Start(context.Background(), "a rotating cube", nil)
	require.NoError(t, err)

	final := waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)

	fixes := stepsOfKind(final, models.StepKindFix)
	require.Len(t, fixes, 1)
	require.NotNil(t, fixes[0].Input.Error)
	assert.Equal(t, "undeclared identifier", fixes[0].Input.Error.Message)
	assert.Equal(t, "broken code", fixes[0].Input.Code)

	// The fix output supersedes the generation as the current code.
	evaluations := stepsOfKind(final, models.StepKindEvaluation)
	require.Len(t, evaluations, 1)
	assert.Equal(t, "void mainImage() { fixed }", evaluations[0].Input.Code)

	require.NotNil(t, final.Result)
	assert.Equal(t, "void mainImage() { fixed }", final.Result.Code)
	// A fix round is not an improvement iteration.
	assert.Equal(t, 0, final.Result.Iterations)
}

func TestRunner_IterationCapCompletes(t *testing.T) {
	ai := &stubAI{
		generateCode: "void mainImage() { v1 }",
		improveCode:  "void mainImage() { v2 }",
		scores:       []float64{50},
	}
	capture := &stubCapture{}
	r, p := newTestRunner(t, ai, capture)

	config := models.DefaultProcessConfig()
	config.MaxIterations = 1

	process, err := r.Start(context.Background(), "a rotating cube", &config)
	require.NoError(t, err)

	final := waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)

	require.NotNil(t, final.Result)
	assert.InDelta(t, 50.0, final.Result.FinalScore, 0.001)
	assert.Equal(t, 1, final.Result.Iterations)
	assert.Len(t, stepsOfKind(final, models.StepKindImprovement), 1)
}

func TestRunner_SubmitScreenshotsWaitsForCode(t *testing.T) {
	ai := &stubAI{
		generateCode:  "void mainImage() { v1 }",
		generateDelay: 100 * time.Millisecond,
		scores:        []float64{90},
	}
	config := models.DefaultProcessConfig()
	config.ServerCapture = false

	r, p := newTestRunner(t, ai, nil)

	process, err := r.Start(context.Background(), "a rotating cube", &config)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessStatusGenerating, process.Status)

	// The client creates its capture step before generation finished.
	step, err := r.EnsureCaptureStep(context.Background(), process.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepKindCapture, step.Kind)

	// Requesting it again returns the same step.
	again, err := r.EnsureCaptureStep(context.Background(), process.ID)
	require.NoError(t, err)
	assert.Equal(t, step.ID, again.ID)

	// The submission races the generation and must wait for it.
	err = r.SubmitScreenshots(context.Background(), process.ID, step.ID,
		[]string{"data:image/png;base64,AAAA"}, nil)
	require.NoError(t, err)

	final := waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)
	require.NotNil(t, final.Result)
	assert.InDelta(t, 90.0, final.Result.FinalScore, 0.001)
}

func TestRunner_SubmitScreenshots_NoCodeFound(t *testing.T) {
	ai := &stubAI{generateCode: "void mainImage() { v1 }", generateDelay: time.Hour}
	config := models.DefaultProcessConfig()
	config.ServerCapture = false

	p, err := sqlite.NewPersistence(context.Background(), slog.Default(), filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	registry := executors.NewDefaultRegistry(ai, ai, ai, ai)
	r := NewRunner(p, registry, nil, nil, slog.Default(), Options{
		ContinueDelay:    5 * time.Millisecond,
		CodeWaitAttempts: 3,
		CodeWaitDelay:    5 * time.Millisecond,
		StepTimeout:      200 * time.Millisecond,
	})
	t.Cleanup(r.Close)

	process, err := r.Start(context.Background(), "a rotating cube", &config)
	require.NoError(t, err)

	step, err := r.EnsureCaptureStep(context.Background(), process.ID)
	require.NoError(t, err)

	err = r.SubmitScreenshots(context.Background(), process.ID, step.ID,
		[]string{"data:image/png;base64,AAAA"}, nil)
	assert.ErrorIs(t, err, ErrNoCodeFound)

	// The failed submission left the capture step running for a retry.
	loaded, err := p.StepByID(context.Background(), step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusRunning, loaded.Status)
}

func TestRunner_SubmitScreenshots_Validation(t *testing.T) {
	ai := &stubAI{generateCode: "void mainImage() { v1 }", scores: []float64{90}}
	config := models.DefaultProcessConfig()
	config.ServerCapture = false

	r, p := newTestRunner(t, ai, nil)

	process, err := r.Start(context.Background(), "a rotating cube", &config)
	require.NoError(t, err)

	waitForStatus(t, p, process.ID, models.ProcessStatusCapturing)

	step, err := r.EnsureCaptureStep(context.Background(), process.ID)
	require.NoError(t, err)

	err = r.SubmitScreenshots(context.Background(), process.ID, step.ID, nil, nil)
	assert.ErrorIs(t, err, ErrMissingScreenshots)

	err = r.SubmitScreenshots(context.Background(), process.ID, "missing",
		[]string{"data:image/png;base64,AAAA"}, nil)
	assert.True(t, persistence.IsStepNotFound(err))

	// Submitting against a non-capture step is rejected.
	generation := stepsOfKind(mustProcess(t, p, process.ID), models.StepKindGeneration)[0]
	err = r.SubmitScreenshots(context.Background(), process.ID, generation.ID,
		[]string{"data:image/png;base64,AAAA"}, nil)
	assert.ErrorIs(t, err, ErrNotCaptureStep)
}

func TestRunner_EnsureCaptureStep_RejectsWhileEvaluating(t *testing.T) {
	ai := &stubAI{}
	r, p := newTestRunner(t, ai, nil)

	// With an evaluation pending the next transition is an improvement or
	// completion; an extra capture step would only waste a render round.
	process := seedProcess(t, p, models.ProcessStatusEvaluating)
	seedStep(t, p, process.ID, models.StepKindGeneration, models.StepStatusCompleted,
		&models.StepOutput{Code: "void mainImage() { v1 }"})

	_, err := r.EnsureCaptureStep(context.Background(), process.ID)
	assert.ErrorIs(t, err, ErrCaptureNotPending)
	assert.True(t, IsInvalidTransition(err))
}

func TestRunner_SubmittedCompilationErrorTriggersFix(t *testing.T) {
	ai := &stubAI{
		generateCode: "broken code",
		fixCode:      "void mainImage() { fixed }",
		scores:       []float64{85},
	}
	config := models.DefaultProcessConfig()
	config.ServerCapture = false

	r, p := newTestRunner(t, ai, nil)

	process, err := r.Start(context.Background(), "a rotating cube", &config)
	require.NoError(t, err)

	waitForStatus(t, p, process.ID, models.ProcessStatusCapturing)

	step, err := r.EnsureCaptureStep(context.Background(), process.ID)
	require.NoError(t, err)

	err = r.SubmitScreenshots(context.Background(), process.ID, step.ID, nil,
		&models.CompilationError{Message: "syntax error", Detail: "line 3"})
	require.NoError(t, err)

	// Wait for the fix to run and a fresh capture step to open.
	var next *models.Step
	require.Eventually(t, func() bool {
		current := mustProcess(t, p, process.ID)
		if len(stepsOfKind(current, models.StepKindFix)) == 0 {
			return false
		}
		for _, candidate := range stepsOfKind(current, models.StepKindCapture) {
			if candidate.ID != step.ID && candidate.Status == models.StepStatusRunning {
				next = candidate
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	err = r.SubmitScreenshots(context.Background(), process.ID, next.ID,
		[]string{"data:image/png;base64,AAAA"}, nil)
	require.NoError(t, err)

	final := waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)
	assert.Equal(t, "void mainImage() { fixed }", final.Result.Code)
}

func TestRunner_PauseAndResume(t *testing.T) {
	ai := &stubAI{generateCode: "void mainImage() { v1 }", scores: []float64{90}}
	config := models.DefaultProcessConfig()
	config.ServerCapture = false

	r, p := newTestRunner(t, ai, nil)

	process, err := r.Start(context.Background(), "a rotating cube", &config)
	require.NoError(t, err)

	waitForStatus(t, p, process.ID, models.ProcessStatusCapturing)

	require.NoError(t, r.Pause(context.Background(), process.ID))
	waitForStatus(t, p, process.ID, models.ProcessStatusPaused)

	// Pausing twice is a no-op, resuming a paused process works.
	require.NoError(t, r.Pause(context.Background(), process.ID))
	require.NoError(t, r.Resume(context.Background(), process.ID))

	// Resume re-derived the capturing state from the step history.
	resumed := waitForStatus(t, p, process.ID, models.ProcessStatusCapturing)
	require.NotNil(t, resumed.CurrentStep)

	step, err := r.EnsureCaptureStep(context.Background(), process.ID)
	require.NoError(t, err)

	err = r.SubmitScreenshots(context.Background(), process.ID, step.ID,
		[]string{"data:image/png;base64,AAAA"}, nil)
	require.NoError(t, err)

	waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)
}

func TestRunner_Resume_NotPaused(t *testing.T) {
	ai := &stubAI{generateCode: "void mainImage() { v1 }", scores: []float64{90}}
	r, p := newTestRunner(t, ai, &stubCapture{})

	process, err := r.Start(context.Background(), "a rotating cube", nil)
	require.NoError(t, err)

	waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)

	assert.ErrorIs(t, r.Resume(context.Background(), process.ID), ErrProcessNotPaused)
	assert.ErrorIs(t, r.Pause(context.Background(), process.ID), ErrProcessFinished)
}

func TestRunner_StopDoesNotResurrect(t *testing.T) {
	ai := &stubAI{generateCode: "void mainImage() { v1 }", scores: []float64{90}}
	config := models.DefaultProcessConfig()
	config.ServerCapture = false

	r, p := newTestRunner(t, ai, nil)

	process, err := r.Start(context.Background(), "a rotating cube", &config)
	require.NoError(t, err)

	waitForStatus(t, p, process.ID, models.ProcessStatusCapturing)

	step, err := r.EnsureCaptureStep(context.Background(), process.ID)
	require.NoError(t, err)

	require.NoError(t, r.Stop(context.Background(), process.ID))

	stopped := waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)
	assert.Nil(t, stopped.Result)
	require.NotNil(t, stopped.CompletedAt)

	// A late capture result is persisted on its step but must not
	// restart the pipeline.
	err = r.SubmitScreenshots(context.Background(), process.ID, step.ID,
		[]string{"data:image/png;base64,AAAA"}, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	final := mustProcess(t, p, process.ID)
	assert.Equal(t, models.ProcessStatusCompleted, final.Status)
	assert.Nil(t, final.Result)
	assert.Empty(t, stepsOfKind(final, models.StepKindEvaluation))

	captureStep, err := p.StepByID(context.Background(), step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusCompleted, captureStep.Status)
}

func TestRunner_LateServerCaptureFailureKeepsSubmittedResult(t *testing.T) {
	ai := &stubAI{generateCode: "void mainImage() { v1 }", scores: []float64{90}}
	gate := make(chan struct{})
	capture := &stubCapture{gate: gate, errs: []error{errors.New("render service unavailable")}}
	r, p := newTestRunner(t, ai, capture)

	process, err := r.Start(context.Background(), "a rotating cube", nil)
	require.NoError(t, err)

	// The server render is in flight, parked on the gate.
	var step *models.Step
	require.Eventually(t, func() bool {
		current := mustProcess(t, p, process.ID)
		for _, candidate := range stepsOfKind(current, models.StepKindCapture) {
			if candidate.Status == models.StepStatusRunning {
				step = candidate
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	// A client submission wins the race and the pipeline moves on.
	require.NoError(t, r.SubmitScreenshots(context.Background(), process.ID, step.ID,
		[]string{"data:image/png;base64,AAAA"}, nil))

	final := waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)
	require.NotNil(t, final.Result)

	// Release the server render. Its failure lands on a settled step and
	// must not rewrite the step or fail the finished process.
	close(gate)
	time.Sleep(50 * time.Millisecond)

	settled, err := p.StepByID(context.Background(), step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusCompleted, settled.Status)
	assert.Empty(t, settled.Error)
	require.NotNil(t, settled.Output)
	assert.NotEmpty(t, settled.Output.Screenshots)

	after := mustProcess(t, p, process.ID)
	assert.Equal(t, models.ProcessStatusCompleted, after.Status)
	require.NotNil(t, after.Result)
	assert.InDelta(t, 90.0, after.Result.FinalScore, 0.001)
}

func TestRunner_RetryAfterFailure(t *testing.T) {
	ai := &stubAI{
		generateCode: "void mainImage() { v1 }",
		generateErrs: []error{errors.New("model overloaded")},
		scores:       []float64{90},
	}
	r, p := newTestRunner(t, ai, &stubCapture{})

	process, err := r.Start(context.Background(), "a rotating cube", nil)
	require.NoError(t, err)

	failed := waitForStatus(t, p, process.ID, models.ProcessStatusFailed)
	failedSteps := stepsOfKind(failed, models.StepKindGeneration)
	require.Len(t, failedSteps, 1)
	assert.Equal(t, models.StepStatusFailed, failedSteps[0].Status)

	require.NoError(t, r.Retry(context.Background(), process.ID))

	final := waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)

	// The failed step stays in the history next to the successful rerun.
	generations := stepsOfKind(final, models.StepKindGeneration)
	require.Len(t, generations, 2)
	require.NotNil(t, final.Result)
	assert.InDelta(t, 90.0, final.Result.FinalScore, 0.001)
}

func TestRunner_Retry_InvalidState(t *testing.T) {
	ai := &stubAI{generateCode: "void mainImage() { v1 }", scores: []float64{90}}
	r, p := newTestRunner(t, ai, &stubCapture{})

	process, err := r.Start(context.Background(), "a rotating cube", nil)
	require.NoError(t, err)

	waitForStatus(t, p, process.ID, models.ProcessStatusCompleted)

	assert.ErrorIs(t, r.Retry(context.Background(), process.ID), ErrProcessNotRetryable)
}

func TestRunner_Start_RequiresPrompt(t *testing.T) {
	ai := &stubAI{}
	r, _ := newTestRunner(t, ai, nil)

	_, err := r.Start(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrPromptRequired)
}

func TestRunner_RecoverOrphans(t *testing.T) {
	ai := &stubAI{generateCode: "void mainImage() { v1 }", scores: []float64{90}}
	r, p := newTestRunner(t, ai, &stubCapture{})
	ctx := context.Background()

	// A process whose generation step was in flight when the previous
	// instance died.
	orphaned := seedProcess(t, p, models.ProcessStatusGenerating)
	orphanStep := seedStep(t, p, orphaned.ID, models.StepKindGeneration, models.StepStatusRunning, nil)

	// A process that crashed between a step completion and the next
	// transition.
	stranded := seedProcess(t, p, models.ProcessStatusGenerating)
	seedStep(t, p, stranded.ID, models.StepKindGeneration, models.StepStatusCompleted,
		&models.StepOutput{Code: "void mainImage() { v1 }"})

	require.NoError(t, r.RecoverOrphans(ctx))

	failed := waitForStatus(t, p, orphaned.ID, models.ProcessStatusFailed)
	require.NotNil(t, failed.CompletedAt)

	settled, err := p.StepByID(ctx, orphanStep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusFailed, settled.Status)
	assert.Contains(t, settled.Error, "interrupted by restart")

	// The step is settled at recovery time, not back-dated to its start.
	require.NotNil(t, settled.CompletedAt)
	assert.False(t, settled.CompletedAt.Before(settled.StartedAt))
	require.NotNil(t, settled.Duration)
	assert.Equal(t, settled.CompletedAt.Sub(settled.StartedAt), *settled.Duration)

	// The stranded process resumes from its persisted state and runs to
	// completion.
	final := waitForStatus(t, p, stranded.ID, models.ProcessStatusCompleted)
	require.NotNil(t, final.Result)
	assert.InDelta(t, 90.0, final.Result.FinalScore, 0.001)
}

func mustProcess(t *testing.T, p persistence.Persistence, processID string) *models.Process {
	t.Helper()

	process, err := p.ProcessByID(context.Background(), processID)
	require.NoError(t, err)

	return process
}

func seedProcess(t *testing.T, p persistence.Persistence, status models.ProcessStatus) *models.Process {
	t.Helper()

	now := time.Now().UTC()
	process := &models.Process{
		ID:        uuid.New().String(),
		Prompt:    "a rotating cube",
		Status:    status,
		Config:    models.DefaultProcessConfig(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, p.CreateProcess(context.Background(), process))

	return process
}

func seedStep(t *testing.T, p persistence.Persistence, processID string, kind models.StepKind, status models.StepStatus, output *models.StepOutput) *models.Step {
	t.Helper()

	now := time.Now().UTC()
	step := &models.Step{
		ID:        uuid.New().String(),
		ProcessID: processID,
		Kind:      kind,
		Status:    status,
		Input:     models.StepInput{Prompt: "a rotating cube"},
		Output:    output,
		StartedAt: now,
	}
	if status != models.StepStatusRunning {
		step.CompletedAt = &now
	}
	require.NoError(t, p.CreateStep(context.Background(), step))

	return step
}
