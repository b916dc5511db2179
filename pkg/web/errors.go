package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/a-kuz/shader-maker/pkg/persistence"
	"github.com/a-kuz/shader-maker/pkg/runner"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleRunnerError maps runner and persistence errors onto HTTP
// problem responses.
func handleRunnerError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsProcessNotFound(err):
		return notFound(c, "process not found")

	case persistence.IsStepNotFound(err):
		return notFound(c, "step not found")

	case runner.IsInvalidTransition(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("invalid_transition").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, runner.ErrStepFinished):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("step_finished").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, runner.ErrNoCodeFound):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("no_code_found").
			WithDetail("no code is available for this capture yet; retry after the code step finishes")

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case errors.Is(err, runner.ErrPromptRequired),
		errors.Is(err, runner.ErrMissingScreenshots),
		errors.Is(err, runner.ErrNotCaptureStep),
		errors.Is(err, runner.ErrNoCaptureService),
		errors.Is(err, runner.ErrUnknownAction):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
