// Package postgresql provides PostgreSQL persistence for deployments
// that outgrow the embedded SQLite store.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/a-kuz/shader-maker/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL. The row
// layout matches the SQLite backend: timestamps as unix microseconds,
// payload unions as JSONB.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence connects to the database and runs migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Persistence{db: db, logger: logger}

	manager := sqlbase.NewMigrationManager(logger, db, migrations())
	if err := manager.RunMigrations(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return p, nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
		CREATE TABLE IF NOT EXISTS processes (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step TEXT,
			config JSONB NOT NULL,
			result JSONB,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			completed_at BIGINT
		);

		CREATE TABLE IF NOT EXISTS steps (
			id TEXT PRIMARY KEY,
			process_id TEXT NOT NULL REFERENCES processes(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			input JSONB NOT NULL,
			output JSONB,
			error TEXT NOT NULL DEFAULT '',
			interaction JSONB,
			started_at BIGINT NOT NULL,
			completed_at BIGINT,
			duration_us BIGINT
		);

		CREATE TABLE IF NOT EXISTS updates (
			id TEXT PRIMARY KEY,
			process_id TEXT NOT NULL REFERENCES processes(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			step TEXT,
			message TEXT NOT NULL,
			progress INTEGER NOT NULL,
			step_id TEXT NOT NULL DEFAULT '',
			result JSONB,
			error TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_processes_created ON processes(created_at);
		CREATE INDEX IF NOT EXISTS idx_steps_process ON steps(process_id, started_at);
		CREATE INDEX IF NOT EXISTS idx_steps_flight ON steps(process_id, kind, status);
		CREATE INDEX IF NOT EXISTS idx_updates_process ON updates(process_id, created_at);
		`,
	}
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
