// Package sqlite provides the default SQLite persistence implementation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/a-kuz/shader-maker/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on a local SQLite
// database. All timestamps are stored as unix microseconds so that
// ordering and half-open polling comparisons are exact.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence opens (creating if needed) the database at path and
// runs migrations. Use ":memory:" for an ephemeral store.
func NewPersistence(ctx context.Context, logger *slog.Logger, path string) (*Persistence, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// The sqlite driver serializes writes; a single connection avoids
	// table-lock errors under concurrent runners.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
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
			config TEXT NOT NULL,
			result TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS steps (
			id TEXT PRIMARY KEY,
			process_id TEXT NOT NULL REFERENCES processes(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			input TEXT NOT NULL,
			output TEXT,
			error TEXT NOT NULL DEFAULT '',
			interaction TEXT,
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			duration_us INTEGER
		);

		CREATE TABLE IF NOT EXISTS updates (
			id TEXT PRIMARY KEY,
			process_id TEXT NOT NULL REFERENCES processes(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			step TEXT,
			message TEXT NOT NULL,
			progress INTEGER NOT NULL,
			step_id TEXT NOT NULL DEFAULT '',
			result TEXT,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
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
