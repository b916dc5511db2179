package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/a-kuz/shader-maker/pkg/models"
)

// AppendUpdate inserts into the append-only update log.
func (p *Persistence) AppendUpdate(ctx context.Context, update *models.Update) error {
	if update.CreatedAt.IsZero() {
		update.CreatedAt = time.Now().UTC()
	}

	var step any
	if update.Step != nil {
		step = string(*update.Step)
	}

	result, err := marshalJSONPtr(update.Result)
	if err != nil {
		return fmt.Errorf("failed to append update for process %s: %w", update.ProcessID, err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO updates (id, process_id, status, step, message, progress, step_id, result, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		update.ID, update.ProcessID, string(update.Status), step, update.Message, update.Progress,
		update.StepID, result, update.Error, toMicro(update.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append update for process %s: %w", update.ProcessID, err)
	}

	return nil
}

// ListUpdates returns updates ascending by creation time, strictly newer
// than since when it is given.
func (p *Persistence) ListUpdates(ctx context.Context, processID string, since *time.Time) ([]*models.Update, error) {
	query := "SELECT id, process_id, status, step, message, progress, step_id, result, error, created_at FROM updates WHERE process_id = ?"
	args := []any{processID}

	if since != nil {
		query += " AND created_at > ?"

		args = append(args, toMicro(*since))
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list updates for process %s: %w", processID, err)
	}
	defer rows.Close()

	updates := make([]*models.Update, 0)

	for rows.Next() {
		var (
			update    models.Update
			status    string
			step      sql.NullString
			result    sql.NullString
			createdAt int64
		)

		err := rows.Scan(&update.ID, &update.ProcessID, &status, &step, &update.Message,
			&update.Progress, &update.StepID, &result, &update.Error, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan update: %w", err)
		}

		update.Status = models.ProcessStatus(status)

		if step.Valid {
			kind := models.StepKind(step.String)
			update.Step = &kind
		}

		update.Result, err = unmarshalJSONPtr[models.ProcessResult](result)
		if err != nil {
			return nil, err
		}

		update.CreatedAt = fromMicro(createdAt)

		updates = append(updates, &update)
	}

	return updates, rows.Err()
}
