package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a-kuz/shader-maker/pkg/eventbus"
	"github.com/a-kuz/shader-maker/pkg/events"
	"github.com/a-kuz/shader-maker/pkg/executors"
	"github.com/a-kuz/shader-maker/pkg/log"
	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
	"github.com/a-kuz/shader-maker/pkg/protocol"
)

// Options tunes the runner's timing behaviour. The defaults match
// production; tests shrink them to keep runs fast.
type Options struct {
	// ContinueDelay is the pause between a step finishing and the next
	// transition being derived. It gives control requests a window to
	// cancel a scheduled continuation.
	ContinueDelay time.Duration

	// CodeWaitAttempts and CodeWaitDelay bound how long a capture waits
	// for the prerequisite code step to finish before giving up with
	// ErrNoCodeFound.
	CodeWaitAttempts int
	CodeWaitDelay    time.Duration

	// StepTimeout bounds a single executor or capture call.
	StepTimeout time.Duration
}

// DefaultOptions returns the production timing configuration.
func DefaultOptions() Options {
	return Options{
		ContinueDelay:    100 * time.Millisecond,
		CodeWaitAttempts: 10,
		CodeWaitDelay:    500 * time.Millisecond,
		StepTimeout:      120 * time.Second,
	}
}

// Runner owns every process transition. All state lives in the
// persistence layer; the runner itself only holds timers for scheduled
// continuations, so a restart can always re-derive where each process
// stands.
type Runner struct {
	persistence persistence.Persistence
	registry    *executors.Registry
	capture     protocol.CaptureService
	eventBus    eventbus.EventBus
	logger      *slog.Logger
	opts        Options

	mu            sync.Mutex
	continuations map[string]*time.Timer
}

// NewRunner creates a runner over the given collaborators. The capture
// service may be nil when only client-side capture is used.
func NewRunner(
	p persistence.Persistence,
	registry *executors.Registry,
	capture protocol.CaptureService,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	opts Options,
) *Runner {
	if logger == nil {
		logger = log.WithModule("runner")
	}
	if opts.ContinueDelay <= 0 {
		opts.ContinueDelay = DefaultOptions().ContinueDelay
	}
	if opts.CodeWaitAttempts <= 0 {
		opts.CodeWaitAttempts = DefaultOptions().CodeWaitAttempts
	}
	if opts.CodeWaitDelay <= 0 {
		opts.CodeWaitDelay = DefaultOptions().CodeWaitDelay
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultOptions().StepTimeout
	}

	return &Runner{
		persistence:   p,
		registry:      registry,
		capture:       capture,
		eventBus:      eventBus,
		logger:        logger.With("module", "runner"),
		opts:          opts,
		continuations: make(map[string]*time.Timer),
	}
}

// Start creates a process and immediately begins its generation step.
func (r *Runner) Start(ctx context.Context, prompt string, config *models.ProcessConfig) (*models.Process, error) {
	if prompt == "" {
		return nil, ErrPromptRequired
	}

	cfg := models.DefaultProcessConfig()
	if config != nil {
		cfg = *config
	}

	now := time.Now().UTC()
	process := &models.Process{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Status:    models.ProcessStatusCreated,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.persistence.CreateProcess(ctx, process); err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "Process created", "process_id", process.ID)
	r.appendUpdate(ctx, process, updateOptions{message: "process created"})
	r.publish(ctx, process.ID, events.ProcessStarted{
		BaseEvent: r.newBaseEvent(events.ProcessStartedEvent, process.ID),
		Prompt:    prompt,
		Config:    cfg,
	})

	if err := r.drive(ctx, process); err != nil {
		return nil, err
	}

	return r.persistence.ProcessByID(ctx, process.ID)
}

// Process returns a process with its steps.
func (r *Runner) Process(ctx context.Context, processID string) (*models.Process, error) {
	return r.persistence.ProcessByID(ctx, processID)
}

// Updates returns the append-only update feed for a process, optionally
// restricted to entries created strictly after since.
func (r *Runner) Updates(ctx context.Context, processID string, since *time.Time) ([]*models.Update, error) {
	if _, err := r.persistence.ProcessByID(ctx, processID); err != nil {
		return nil, err
	}
	return r.persistence.ListUpdates(ctx, processID, since)
}

// Delete removes a process and everything attached to it.
func (r *Runner) Delete(ctx context.Context, processID string) error {
	r.cancelContinuation(processID)
	return r.persistence.DeleteProcess(ctx, processID)
}

// Close cancels all scheduled continuations. In-flight steps finish
// persisting their results but no new transitions are started.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, timer := range r.continuations {
		timer.Stop()
		delete(r.continuations, id)
	}
}

// scheduleContinue arms a timer that re-derives the next transition for
// the process. An existing timer for the same process is replaced.
func (r *Runner) scheduleContinue(processID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.continuations[processID]; ok {
		timer.Stop()
	}
	r.continuations[processID] = time.AfterFunc(r.opts.ContinueDelay, func() {
		r.mu.Lock()
		delete(r.continuations, processID)
		r.mu.Unlock()

		ctx := context.Background()
		process, err := r.persistence.ProcessByID(ctx, processID)
		if err != nil {
			r.logger.ErrorContext(ctx, "Continuation failed to load process", "process_id", processID, "error", err)
			return
		}
		if !process.Status.IsActive() {
			return
		}
		if err := r.drive(ctx, process); err != nil {
			r.logger.ErrorContext(ctx, "Continuation failed", "process_id", processID, "error", err)
		}
	})
}

func (r *Runner) cancelContinuation(processID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if timer, ok := r.continuations[processID]; ok {
		timer.Stop()
		delete(r.continuations, processID)
	}
}
