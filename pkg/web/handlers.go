package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
	"github.com/a-kuz/shader-maker/pkg/runner"
)

type APIHandlers struct {
	runner      *runner.Runner
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	r *runner.Runner,
	p persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		runner:      r,
		persistence: p,
		validator:   validator,
	}
}

func (h *APIHandlers) CreateProcess(c fiber.Ctx) error {
	var req CreateProcessRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	config := req.Config.Apply(models.DefaultProcessConfig())

	process, err := h.runner.Start(c.Context(), req.Prompt, &config)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(process)
}

func (h *APIHandlers) GetProcesses(c fiber.Ctx) error {
	opts, err := h.parseListOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.persistence.ListProcesses(c.Context(), *opts)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"processes":   result.Processes,
		"total_count": result.Total,
		"pagination": fiber.Map{
			"page":  opts.Page,
			"limit": opts.Limit,
		},
	})
}

func (h *APIHandlers) parseListOptions(c fiber.Ctx) (*persistence.ListProcessesOptions, error) {
	opts := &persistence.ListProcessesOptions{}

	if pageStr := c.Query("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, err
		}

		opts.Page = page
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	if includeStepsStr := c.Query("include_steps"); includeStepsStr != "" {
		includeSteps, err := strconv.ParseBool(includeStepsStr)
		if err != nil {
			return nil, err
		}

		opts.IncludeSteps = includeSteps
	}

	return opts, nil
}

// GetProcess returns a process with its steps, plus its update feed. An
// optional since parameter (RFC 3339) restricts the feed to updates
// created strictly after that instant, so clients can poll with the
// timestamp of the last update they have seen.
func (h *APIHandlers) GetProcess(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	var since *time.Time

	if sinceStr := c.Query("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339Nano, sinceStr)
		if err != nil {
			return badRequest(c, "Invalid since parameter: "+err.Error())
		}

		since = &parsed
	}

	process, err := h.runner.Process(c.Context(), id)
	if err != nil {
		return handleRunnerError(c, err)
	}

	updates, err := h.runner.Updates(c.Context(), id, since)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.JSON(fiber.Map{
		"process": process,
		"updates": updates,
	})
}

func (h *APIHandlers) ControlProcess(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	var req ControlRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.runner.Control(c.Context(), id, runner.ControlAction(req.Action)); err != nil {
		return handleRunnerError(c, err)
	}

	process, err := h.runner.Process(c.Context(), id)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.JSON(process)
}

// TriggerCapture renders the current code through the server-side
// capture service.
func (h *APIHandlers) TriggerCapture(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	step, count, err := h.runner.TriggerServerCapture(c.Context(), id)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.JSON(CaptureResponse{StepID: step.ID, Screenshots: count})
}

// EnsureCaptureStep returns the running capture step for the process,
// creating one when necessary. Client-side renderers call it to obtain
// the step id they later submit screenshots for.
func (h *APIHandlers) EnsureCaptureStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	step, err := h.runner.EnsureCaptureStep(c.Context(), id)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) SubmitScreenshots(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Process ID and step ID are required")
	}

	var req SubmitScreenshotsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err := h.runner.SubmitScreenshots(c.Context(), id, stepID, req.Screenshots, req.CompilationError)
	if err != nil {
		return handleRunnerError(c, err)
	}

	return c.JSON(fiber.Map{"status": "accepted"})
}

func (h *APIHandlers) DeleteProcess(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Process ID is required")
	}

	if err := h.runner.Delete(c.Context(), id); err != nil {
		return handleRunnerError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Shader Maker API is healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Shader Maker API is unhealthy: " + err.Error()
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
