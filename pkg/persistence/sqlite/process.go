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

const processColumns = "id, prompt, status, current_step, config, result, created_at, updated_at, completed_at"

// CreateProcess inserts a new process. Timestamps default to now when
// the caller left them zero.
func (p *Persistence) CreateProcess(ctx context.Context, process *models.Process) error {
	now := time.Now().UTC()
	if process.CreatedAt.IsZero() {
		process.CreatedAt = now
	}

	if process.UpdatedAt.IsZero() {
		process.UpdatedAt = now
	}

	config, err := marshalJSON(process.Config)
	if err != nil {
		return persistence.NewProcessError("CreateProcess", process.ID, err)
	}

	result, err := marshalJSONPtr(process.Result)
	if err != nil {
		return persistence.NewProcessError("CreateProcess", process.ID, err)
	}

	var currentStep any
	if process.CurrentStep != nil {
		currentStep = string(*process.CurrentStep)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO processes (id, prompt, status, current_step, config, result, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		process.ID, process.Prompt, string(process.Status), currentStep, config, result,
		toMicro(process.CreatedAt), toMicro(process.UpdatedAt), toMicroPtr(process.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return persistence.NewProcessError("CreateProcess", process.ID, persistence.ErrProcessAlreadyExists)
		}

		return persistence.NewProcessError("CreateProcess", process.ID, err)
	}

	return nil
}

// UpdateProcess applies a partial update and bumps updated_at.
func (p *Persistence) UpdateProcess(ctx context.Context, id string, update persistence.ProcessUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{toMicro(time.Now().UTC())}

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}

	if update.CurrentStep != nil {
		sets = append(sets, "current_step = ?")
		args = append(args, string(*update.CurrentStep))
	} else if update.ClearStep {
		sets = append(sets, "current_step = NULL")
	}

	if update.Result != nil {
		result, err := marshalJSON(update.Result)
		if err != nil {
			return persistence.NewProcessError("UpdateProcess", id, err)
		}

		sets = append(sets, "result = ?")
		args = append(args, result)
	}

	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, toMicro(*update.CompletedAt))
	}

	args = append(args, id)

	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE processes SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return persistence.NewProcessError("UpdateProcess", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return persistence.NewProcessError("UpdateProcess", id, err)
	}

	if affected == 0 {
		return persistence.NewProcessError("UpdateProcess", id, persistence.ErrProcessNotFound)
	}

	return nil
}

// ProcessByID returns the process with its steps loaded in start order.
func (p *Persistence) ProcessByID(ctx context.Context, id string) (*models.Process, error) {
	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM processes WHERE id = ?", processColumns), id)

	process, err := scanProcess(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewProcessError("ProcessByID", id, persistence.ErrProcessNotFound)
		}

		return nil, persistence.NewProcessError("ProcessByID", id, err)
	}

	steps, err := p.stepsByProcess(ctx, id)
	if err != nil {
		return nil, persistence.NewProcessError("ProcessByID", id, err)
	}

	process.Steps = steps

	return process, nil
}

// ListProcesses returns a page of processes ordered newest-created-first.
func (p *Persistence) ListProcesses(ctx context.Context, opts persistence.ListProcessesOptions) (*persistence.ProcessListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.Page < 1 {
		opts.Page = 1
	}

	var total int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processes").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count processes: %w", err)
	}

	offset := (opts.Page - 1) * opts.Limit

	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM processes ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", processColumns),
		opts.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	defer rows.Close()

	processes := make([]*models.Process, 0, opts.Limit)

	for rows.Next() {
		process, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}

		processes = append(processes, process)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate processes: %w", err)
	}

	if opts.IncludeSteps {
		for _, process := range processes {
			steps, err := p.stepsByProcess(ctx, process.ID)
			if err != nil {
				return nil, persistence.NewProcessError("ListProcesses", process.ID, err)
			}

			process.Steps = steps
		}
	}

	return &persistence.ProcessListResult{Processes: processes, Total: total}, nil
}

// DeleteProcess removes the process; steps and updates cascade.
func (p *Persistence) DeleteProcess(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, "DELETE FROM processes WHERE id = ?", id)
	if err != nil {
		return persistence.NewProcessError("DeleteProcess", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return persistence.NewProcessError("DeleteProcess", id, err)
	}

	if affected == 0 {
		return persistence.NewProcessError("DeleteProcess", id, persistence.ErrProcessNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcess(row rowScanner) (*models.Process, error) {
	var (
		process     models.Process
		status      string
		currentStep sql.NullString
		config      string
		result      sql.NullString
		createdAt   int64
		updatedAt   int64
		completedAt sql.NullInt64
	)

	err := row.Scan(&process.ID, &process.Prompt, &status, &currentStep, &config, &result,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	process.Status = models.ProcessStatus(status)

	if currentStep.Valid {
		kind := models.StepKind(currentStep.String)
		process.CurrentStep = &kind
	}

	if err := unmarshalJSON(config, &process.Config); err != nil {
		return nil, err
	}

	process.Result, err = unmarshalJSONPtr[models.ProcessResult](result)
	if err != nil {
		return nil, err
	}

	process.CreatedAt = fromMicro(createdAt)
	process.UpdatedAt = fromMicro(updatedAt)
	process.CompletedAt = fromMicroPtr(completedAt)

	return &process, nil
}
