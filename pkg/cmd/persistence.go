// Package cmd provides shared construction helpers for the binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/a-kuz/shader-maker/pkg/persistence"
	"github.com/a-kuz/shader-maker/pkg/persistence/postgresql"
	"github.com/a-kuz/shader-maker/pkg/persistence/sqlite"
)

// NewPersistence selects a storage backend from the database URL:
// postgres:// and postgresql:// URLs get PostgreSQL, anything else is
// treated as a SQLite file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return sqlite.NewPersistence(ctx, logger, strings.TrimPrefix(databaseURL, "sqlite://"))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "sqlite"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "sqlite"
	}
}
