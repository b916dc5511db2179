// Package main provides the shaderd server, the HTTP front of the
// shader generation pipeline.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/a-kuz/shader-maker/pkg/persistence"
	"github.com/a-kuz/shader-maker/pkg/runner"
	"github.com/a-kuz/shader-maker/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	runner      *runner.Runner
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	r *runner.Runner,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		runner:      r,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.runner, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Shader Maker API")
	})

	p := app.Group("/processes")
	p.Post("/", handlers.CreateProcess)
	p.Get("/", handlers.GetProcesses)
	p.Get("/:id", handlers.GetProcess)
	p.Delete("/:id", handlers.DeleteProcess)
	p.Post("/:id/control", handlers.ControlProcess)
	p.Post("/:id/capture", handlers.TriggerCapture)
	p.Post("/:id/capture-step", handlers.EnsureCaptureStep)
	p.Post("/:id/steps/:stepId/screenshots", handlers.SubmitScreenshots)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
