package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
)

const stepColumns = "id, process_id, kind, status, input, output, error, interaction, started_at, completed_at, duration_us"

// CreateStep inserts a new step with its start time defaulted to now.
func (p *Persistence) CreateStep(ctx context.Context, step *models.Step) error {
	if step.StartedAt.IsZero() {
		step.StartedAt = time.Now().UTC()
	}

	input, err := marshalJSON(step.Input)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ID, err)
	}

	output, err := marshalJSONPtr(step.Output)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ID, err)
	}

	interaction, err := marshalJSONPtr(step.Interaction)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ID, err)
	}

	var durationUs any
	if step.Duration != nil {
		durationUs = step.Duration.Microseconds()
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO steps (id, process_id, kind, status, input, output, error, interaction, started_at, completed_at, duration_us)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.ProcessID, string(step.Kind), string(step.Status), input, output, step.Error,
		interaction, toMicro(step.StartedAt), toMicroPtr(step.CompletedAt), durationUs,
	)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ID, err)
	}

	return nil
}

// UpdateStep applies a partial update. A completed output is validated
// against the step's kind before it is written; invalid payloads never
// reach storage.
func (p *Persistence) UpdateStep(ctx context.Context, id string, update persistence.StepUpdate) error {
	if update.Output != nil {
		step, err := p.StepByID(ctx, id)
		if err != nil {
			return err
		}

		if err := update.Output.Validate(step.Kind); err != nil {
			return persistence.NewStepError("UpdateStep", id,
				fmt.Errorf("%w: %w", persistence.ErrInvalidStepOutput, err))
		}
	}

	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}

	if update.Output != nil {
		output, err := marshalJSON(update.Output)
		if err != nil {
			return persistence.NewStepError("UpdateStep", id, err)
		}

		sets = append(sets, "output = ?")
		args = append(args, output)
	}

	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}

	if update.Interaction != nil {
		interaction, err := marshalJSON(update.Interaction)
		if err != nil {
			return persistence.NewStepError("UpdateStep", id, err)
		}

		sets = append(sets, "interaction = ?")
		args = append(args, interaction)
	}

	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, toMicro(*update.CompletedAt))
	}

	if update.Duration != nil {
		sets = append(sets, "duration_us = ?")
		args = append(args, update.Duration.Microseconds())
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)

	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE steps SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return persistence.NewStepError("UpdateStep", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return persistence.NewStepError("UpdateStep", id, err)
	}

	if affected == 0 {
		return persistence.NewStepError("UpdateStep", id, persistence.ErrStepNotFound)
	}

	return nil
}

// StepByID returns a single step.
func (p *Persistence) StepByID(ctx context.Context, id string) (*models.Step, error) {
	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM steps WHERE id = ?", stepColumns), id)

	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStepError("StepByID", id, persistence.ErrStepNotFound)
		}

		return nil, persistence.NewStepError("StepByID", id, err)
	}

	return step, nil
}

// RunningStep returns the running step of one of the given kinds, or
// ErrStepNotFound when none is in flight.
func (p *Persistence) RunningStep(ctx context.Context, processID string, kinds ...models.StepKind) (*models.Step, error) {
	if len(kinds) == 0 {
		kinds = models.DrivingStepKinds
	}

	placeholders := make([]string, len(kinds))
	args := []any{processID}

	for i, kind := range kinds {
		placeholders[i] = "?"

		args = append(args, string(kind))
	}

	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM steps WHERE process_id = ? AND kind IN (%s) AND status = 'running' ORDER BY started_at DESC LIMIT 1",
			stepColumns, strings.Join(placeholders, ", ")), args...)

	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.StepError{Op: "RunningStep", ProcessID: processID, Err: persistence.ErrStepNotFound}
		}

		return nil, &persistence.StepError{Op: "RunningStep", ProcessID: processID, Err: err}
	}

	return step, nil
}

func (p *Persistence) stepsByProcess(ctx context.Context, processID string) ([]*models.Step, error) {
	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM steps WHERE process_id = ? ORDER BY started_at ASC, id ASC", stepColumns),
		processID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.Step

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	return steps, rows.Err()
}

func scanStep(row rowScanner) (*models.Step, error) {
	var (
		step        models.Step
		kind        string
		status      string
		input       string
		output      sql.NullString
		interaction sql.NullString
		startedAt   int64
		completedAt sql.NullInt64
		durationUs  sql.NullInt64
	)

	err := row.Scan(&step.ID, &step.ProcessID, &kind, &status, &input, &output,
		&step.Error, &interaction, &startedAt, &completedAt, &durationUs)
	if err != nil {
		return nil, err
	}

	step.Kind = models.StepKind(kind)
	step.Status = models.StepStatus(status)

	if err := unmarshalJSON(input, &step.Input); err != nil {
		return nil, err
	}

	step.Output, err = unmarshalJSONPtr[models.StepOutput](output)
	if err != nil {
		return nil, err
	}

	step.Interaction, err = unmarshalJSONPtr[models.AIInteraction](interaction)
	if err != nil {
		return nil, err
	}

	step.StartedAt = fromMicro(startedAt)
	step.CompletedAt = fromMicroPtr(completedAt)

	if durationUs.Valid {
		d := time.Duration(durationUs.Int64) * time.Microsecond
		step.Duration = &d
	}

	return &step, nil
}
