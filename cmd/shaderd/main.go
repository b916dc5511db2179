package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/a-kuz/shader-maker/pkg/ai"
	"github.com/a-kuz/shader-maker/pkg/capture"
	pkgcmd "github.com/a-kuz/shader-maker/pkg/cmd"
	"github.com/a-kuz/shader-maker/pkg/executors"
	"github.com/a-kuz/shader-maker/pkg/log"
	"github.com/a-kuz/shader-maker/pkg/protocol"
	"github.com/a-kuz/shader-maker/pkg/runner"
)

const defaultPort = 8090

func main() {
	logger := log.WithModule("shaderd")

	cmd := &cli.Command{
		Name:                  "shaderd",
		Usage:                 "Generate and iteratively refine shaders from text prompts",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL (postgres://... or a SQLite file path)",
				Value:   "shader-maker.db",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "ai-url",
				Usage:    "Base URL of the AI completion service",
				Required: true,
				Sources:  cli.EnvVars("AI_URL"),
			},
			&cli.StringFlag{
				Name:    "capture-url",
				Usage:   "Base URL of the server-side capture service",
				Sources: cli.EnvVars("CAPTURE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing shaderd")

			persistence, err := pkgcmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := pkgcmd.NewEventBus(logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			aiClient := ai.NewClient(command.String("ai-url"))
			registry := executors.NewDefaultRegistry(aiClient, aiClient, aiClient, aiClient)

			var captureService protocol.CaptureService
			if captureURL := command.String("capture-url"); captureURL != "" {
				captureService = capture.NewClient(captureURL)
			}

			r := runner.NewRunner(persistence, registry, captureService, eventBus, logger, runner.DefaultOptions())
			defer r.Close()

			if err := r.RecoverOrphans(ctx); err != nil {
				logger.ErrorContext(ctx, "Orphan recovery failed", "error", err)
			}

			api := NewAPI(logger, persistence, r)

			return api.Start(command.Int("port"))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
