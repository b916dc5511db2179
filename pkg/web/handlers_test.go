package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-kuz/shader-maker/pkg/executors"
	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
	"github.com/a-kuz/shader-maker/pkg/persistence/sqlite"
	"github.com/a-kuz/shader-maker/pkg/protocol"
	"github.com/a-kuz/shader-maker/pkg/runner"
	"github.com/a-kuz/shader-maker/pkg/web"
)

// scriptedAI answers every collaborator call with fixed content.
type scriptedAI struct {
	code  string
	score float64
}

func (s *scriptedAI) Generate(ctx context.Context, prompt string) (*protocol.GenerationResult, error) {
	return &protocol.GenerationResult{Code: s.code}, nil
}

func (s *scriptedAI) Evaluate(ctx context.Context, prompt, code string, images []string) (*protocol.EvaluationResult, error) {
	return &protocol.EvaluationResult{Score: s.score, Feedback: "fine"}, nil
}

func (s *scriptedAI) Improve(ctx context.Context, prompt, code, feedback string, images []string) (*protocol.GenerationResult, error) {
	return &protocol.GenerationResult{Code: s.code}, nil
}

func (s *scriptedAI) Fix(ctx context.Context, prompt, code, errorMessage, errorDetail string) (*protocol.GenerationResult, error) {
	return &protocol.GenerationResult{Code: s.code}, nil
}

type scriptedCapture struct{}

func (s *scriptedCapture) Capture(ctx context.Context, code string, timeValues []float64) (*protocol.CaptureResult, error) {
	return &protocol.CaptureResult{Screenshots: []string{"data:image/png;base64,AAAA"}}, nil
}

func setupTestApp(t *testing.T) (*fiber.App, persistence.Persistence) {
	t.Helper()

	p, err := sqlite.NewPersistence(context.Background(), slog.Default(), filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	ai := &scriptedAI{code: "void mainImage() {}", score: 90}
	registry := executors.NewDefaultRegistry(ai, ai, ai, ai)

	r := runner.NewRunner(p, registry, &scriptedCapture{}, nil, slog.Default(), runner.Options{
		ContinueDelay:    5 * time.Millisecond,
		CodeWaitAttempts: 20,
		CodeWaitDelay:    10 * time.Millisecond,
		StepTimeout:      5 * time.Second,
	})
	t.Cleanup(r.Close)

	handlers := web.NewAPIHandlers(r, p, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	g := app.Group("/processes")
	g.Post("/", handlers.CreateProcess)
	g.Get("/", handlers.GetProcesses)
	g.Get("/:id", handlers.GetProcess)
	g.Delete("/:id", handlers.DeleteProcess)
	g.Post("/:id/control", handlers.ControlProcess)
	g.Post("/:id/capture-step", handlers.EnsureCaptureStep)
	g.Post("/:id/steps/:stepId/screenshots", handlers.SubmitScreenshots)

	app.Get("/health", handlers.HealthCheck)

	return app, p
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	return resp, raw
}

func createProcess(t *testing.T, app *fiber.App, req web.CreateProcessRequest) *models.Process {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/processes/", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var process models.Process
	require.NoError(t, json.Unmarshal(body, &process))
	require.NotEmpty(t, process.ID)

	return &process
}

func TestCreateProcess_Success(t *testing.T) {
	app, _ := setupTestApp(t)

	maxIterations := 3
	process := createProcess(t, app, web.CreateProcessRequest{
		Prompt: "a rotating cube over water",
		Config: &web.ConfigRequest{MaxIterations: &maxIterations},
	})

	assert.Equal(t, "a rotating cube over water", process.Prompt)
	assert.Equal(t, 3, process.Config.MaxIterations)
	// Omitted config fields keep their defaults.
	assert.InDelta(t, 80.0, process.Config.TargetScore, 0.001)
	assert.True(t, process.Config.AutoMode)
}

func TestCreateProcess_Validation(t *testing.T) {
	app, _ := setupTestApp(t)

	testCases := []struct {
		name        string
		requestBody any
	}{
		{
			name:        "missing prompt",
			requestBody: web.CreateProcessRequest{},
		},
		{
			name: "iteration cap out of range",
			requestBody: map[string]any{
				"prompt": "a rotating cube",
				"config": map[string]any{"max_iterations": 100},
			},
		},
		{
			name: "target score out of range",
			requestBody: map[string]any{
				"prompt": "a rotating cube",
				"config": map[string]any{"target_score": 150},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := doJSON(t, app, http.MethodPost, "/processes/", tc.requestBody)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetProcess_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/processes/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetProcess_WithUpdates(t *testing.T) {
	app, _ := setupTestApp(t)

	process := createProcess(t, app, web.CreateProcessRequest{Prompt: "a rotating cube"})

	resp, body := doJSON(t, app, http.MethodGet, "/processes/"+process.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Process *models.Process  `json:"process"`
		Updates []*models.Update `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))

	require.NotNil(t, payload.Process)
	assert.Equal(t, process.ID, payload.Process.ID)
	require.NotEmpty(t, payload.Updates)
	assert.Equal(t, "process created", payload.Updates[0].Message)

	// Polling with the last seen timestamp excludes everything already
	// delivered.
	last := payload.Updates[len(payload.Updates)-1].CreatedAt.Format(time.RFC3339Nano)
	resp, body = doJSON(t, app, http.MethodGet, "/processes/"+process.ID+"?since="+last, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var next struct {
		Updates []*models.Update `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(body, &next))

	for _, update := range next.Updates {
		assert.True(t, update.CreatedAt.After(payload.Updates[len(payload.Updates)-1].CreatedAt))
	}
}

func TestGetProcess_InvalidSince(t *testing.T) {
	app, _ := setupTestApp(t)

	process := createProcess(t, app, web.CreateProcessRequest{Prompt: "a rotating cube"})

	resp, _ := doJSON(t, app, http.MethodGet, "/processes/"+process.ID+"?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetProcesses_List(t *testing.T) {
	app, _ := setupTestApp(t)

	createProcess(t, app, web.CreateProcessRequest{Prompt: "a rotating cube"})
	createProcess(t, app, web.CreateProcessRequest{Prompt: "a glass sphere"})

	resp, body := doJSON(t, app, http.MethodGet, "/processes/?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Processes  []*models.Process `json:"processes"`
		TotalCount int64             `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, int64(2), payload.TotalCount)
	assert.Len(t, payload.Processes, 1)
}

func TestControlProcess(t *testing.T) {
	app, p := setupTestApp(t)

	// Without server capture the process parks at capturing, so the
	// control calls below never race its completion.
	serverCapture := false
	process := createProcess(t, app, web.CreateProcessRequest{
		Prompt: "a rotating cube",
		Config: &web.ConfigRequest{ServerCapture: &serverCapture},
	})

	resp, body := doJSON(t, app, http.MethodPost, "/processes/"+process.ID+"/control",
		web.ControlRequest{Action: "pause"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	loaded, err := p.ProcessByID(context.Background(), process.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessStatusPaused, loaded.Status)

	// Resuming a process that is not paused is a conflict.
	resp, _ = doJSON(t, app, http.MethodPost, "/processes/"+process.ID+"/control",
		web.ControlRequest{Action: "resume"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/processes/"+process.ID+"/control",
		web.ControlRequest{Action: "resume"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unknown actions are rejected by validation.
	resp, _ = doJSON(t, app, http.MethodPost, "/processes/"+process.ID+"/control",
		web.ControlRequest{Action: "explode"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitScreenshots_Flow(t *testing.T) {
	app, p := setupTestApp(t)

	serverCapture := false
	process := createProcess(t, app, web.CreateProcessRequest{
		Prompt: "a rotating cube",
		Config: &web.ConfigRequest{ServerCapture: &serverCapture},
	})

	// Obtain the capture step id the way a client-side renderer does.
	resp, body := doJSON(t, app, http.MethodPost, "/processes/"+process.ID+"/capture-step", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var step models.Step
	require.NoError(t, json.Unmarshal(body, &step))
	require.Equal(t, models.StepKindCapture, step.Kind)

	// A submission with neither screenshots nor an error is invalid.
	resp, _ = doJSON(t, app, http.MethodPost,
		"/processes/"+process.ID+"/steps/"+step.ID+"/screenshots",
		web.SubmitScreenshotsRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodPost,
		"/processes/"+process.ID+"/steps/"+step.ID+"/screenshots",
		web.SubmitScreenshotsRequest{Screenshots: []string{"data:image/png;base64,AAAA"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	require.Eventually(t, func() bool {
		loaded, err := p.ProcessByID(context.Background(), process.ID)
		return err == nil && loaded.Status == models.ProcessStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDeleteProcess(t *testing.T) {
	app, _ := setupTestApp(t)

	process := createProcess(t, app, web.CreateProcessRequest{Prompt: "a rotating cube"})

	resp, _ := doJSON(t, app, http.MethodDelete, "/processes/"+process.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/processes/"+process.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "healthy", payload["status"])
}
