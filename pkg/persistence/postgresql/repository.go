package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/persistence"
)

const (
	processColumns = "id, prompt, status, current_step, config, result, created_at, updated_at, completed_at"
	stepColumns    = "id, process_id, kind, status, input, output, error, interaction, started_at, completed_at, duration_us"

	uniqueViolation = "23505"
)

// CreateProcess inserts a new process.
func (p *Persistence) CreateProcess(ctx context.Context, process *models.Process) error {
	now := time.Now().UTC()
	if process.CreatedAt.IsZero() {
		process.CreatedAt = now
	}

	if process.UpdatedAt.IsZero() {
		process.UpdatedAt = now
	}

	config, err := json.Marshal(process.Config)
	if err != nil {
		return persistence.NewProcessError("CreateProcess", process.ID, err)
	}

	result, err := marshalPtr(process.Result)
	if err != nil {
		return persistence.NewProcessError("CreateProcess", process.ID, err)
	}

	var currentStep any
	if process.CurrentStep != nil {
		currentStep = string(*process.CurrentStep)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO processes (id, prompt, status, current_step, config, result, created_at, updated_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		process.ID, process.Prompt, string(process.Status), currentStep, config, result,
		process.CreatedAt.UnixMicro(), process.UpdatedAt.UnixMicro(), microPtr(process.CompletedAt),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return persistence.NewProcessError("CreateProcess", process.ID, persistence.ErrProcessAlreadyExists)
		}

		return persistence.NewProcessError("CreateProcess", process.ID, err)
	}

	return nil
}

// UpdateProcess applies a partial update and bumps updated_at.
func (p *Persistence) UpdateProcess(ctx context.Context, id string, update persistence.ProcessUpdate) error {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC().UnixMicro()}

	next := func() string { return fmt.Sprintf("$%d", len(args)+1) }

	if update.Status != nil {
		sets = append(sets, "status = "+next())
		args = append(args, string(*update.Status))
	}

	if update.CurrentStep != nil {
		sets = append(sets, "current_step = "+next())
		args = append(args, string(*update.CurrentStep))
	} else if update.ClearStep {
		sets = append(sets, "current_step = NULL")
	}

	if update.Result != nil {
		result, err := json.Marshal(update.Result)
		if err != nil {
			return persistence.NewProcessError("UpdateProcess", id, err)
		}

		sets = append(sets, "result = "+next())
		args = append(args, result)
	}

	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = "+next())
		args = append(args, update.CompletedAt.UnixMicro())
	}

	idPlaceholder := next()
	args = append(args, id)

	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE processes SET %s WHERE id = %s", strings.Join(sets, ", "), idPlaceholder), args...)
	if err != nil {
		return persistence.NewProcessError("UpdateProcess", id, err)
	}

	if affected, err := res.RowsAffected(); err != nil {
		return persistence.NewProcessError("UpdateProcess", id, err)
	} else if affected == 0 {
		return persistence.NewProcessError("UpdateProcess", id, persistence.ErrProcessNotFound)
	}

	return nil
}

// ProcessByID returns the process with its steps loaded in start order.
func (p *Persistence) ProcessByID(ctx context.Context, id string) (*models.Process, error) {
	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM processes WHERE id = $1", processColumns), id)

	process, err := scanProcess(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewProcessError("ProcessByID", id, persistence.ErrProcessNotFound)
		}

		return nil, persistence.NewProcessError("ProcessByID", id, err)
	}

	process.Steps, err = p.stepsByProcess(ctx, id)
	if err != nil {
		return nil, persistence.NewProcessError("ProcessByID", id, err)
	}

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

	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM processes ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2", processColumns),
		opts.Limit, (opts.Page-1)*opts.Limit)
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
			process.Steps, err = p.stepsByProcess(ctx, process.ID)
			if err != nil {
				return nil, persistence.NewProcessError("ListProcesses", process.ID, err)
			}
		}
	}

	return &persistence.ProcessListResult{Processes: processes, Total: total}, nil
}

// DeleteProcess removes the process; steps and updates cascade.
func (p *Persistence) DeleteProcess(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, "DELETE FROM processes WHERE id = $1", id)
	if err != nil {
		return persistence.NewProcessError("DeleteProcess", id, err)
	}

	if affected, err := res.RowsAffected(); err != nil {
		return persistence.NewProcessError("DeleteProcess", id, err)
	} else if affected == 0 {
		return persistence.NewProcessError("DeleteProcess", id, persistence.ErrProcessNotFound)
	}

	return nil
}

// CreateStep inserts a new step with its start time defaulted to now.
func (p *Persistence) CreateStep(ctx context.Context, step *models.Step) error {
	if step.StartedAt.IsZero() {
		step.StartedAt = time.Now().UTC()
	}

	input, err := json.Marshal(step.Input)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ID, err)
	}

	output, err := marshalPtr(step.Output)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ID, err)
	}

	interaction, err := marshalPtr(step.Interaction)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ID, err)
	}

	var durationUs any
	if step.Duration != nil {
		durationUs = step.Duration.Microseconds()
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO steps (id, process_id, kind, status, input, output, error, interaction, started_at, completed_at, duration_us)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		step.ID, step.ProcessID, string(step.Kind), string(step.Status), input, output, step.Error,
		interaction, step.StartedAt.UnixMicro(), microPtr(step.CompletedAt), durationUs,
	)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ID, err)
	}

	return nil
}

// UpdateStep applies a partial update, validating completed output
// against the step's kind first.
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

	next := func() string { return fmt.Sprintf("$%d", len(args)+1) }

	if update.Status != nil {
		sets = append(sets, "status = "+next())
		args = append(args, string(*update.Status))
	}

	if update.Output != nil {
		output, err := json.Marshal(update.Output)
		if err != nil {
			return persistence.NewStepError("UpdateStep", id, err)
		}

		sets = append(sets, "output = "+next())
		args = append(args, output)
	}

	if update.Error != nil {
		sets = append(sets, "error = "+next())
		args = append(args, *update.Error)
	}

	if update.Interaction != nil {
		interaction, err := json.Marshal(update.Interaction)
		if err != nil {
			return persistence.NewStepError("UpdateStep", id, err)
		}

		sets = append(sets, "interaction = "+next())
		args = append(args, interaction)
	}

	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = "+next())
		args = append(args, update.CompletedAt.UnixMicro())
	}

	if update.Duration != nil {
		sets = append(sets, "duration_us = "+next())
		args = append(args, update.Duration.Microseconds())
	}

	if len(sets) == 0 {
		return nil
	}

	idPlaceholder := next()
	args = append(args, id)

	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE steps SET %s WHERE id = %s", strings.Join(sets, ", "), idPlaceholder), args...)
	if err != nil {
		return persistence.NewStepError("UpdateStep", id, err)
	}

	if affected, err := res.RowsAffected(); err != nil {
		return persistence.NewStepError("UpdateStep", id, err)
	} else if affected == 0 {
		return persistence.NewStepError("UpdateStep", id, persistence.ErrStepNotFound)
	}

	return nil
}

// StepByID returns a single step.
func (p *Persistence) StepByID(ctx context.Context, id string) (*models.Step, error) {
	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM steps WHERE id = $1", stepColumns), id)

	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStepError("StepByID", id, persistence.ErrStepNotFound)
		}

		return nil, persistence.NewStepError("StepByID", id, err)
	}

	return step, nil
}

// RunningStep returns the running step of one of the given kinds.
func (p *Persistence) RunningStep(ctx context.Context, processID string, kinds ...models.StepKind) (*models.Step, error) {
	if len(kinds) == 0 {
		kinds = models.DrivingStepKinds
	}

	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = string(kind)
	}

	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM steps WHERE process_id = $1 AND kind = ANY($2) AND status = 'running' ORDER BY started_at DESC LIMIT 1",
			stepColumns), processID, pq.Array(names))

	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.StepError{Op: "RunningStep", ProcessID: processID, Err: persistence.ErrStepNotFound}
		}

		return nil, &persistence.StepError{Op: "RunningStep", ProcessID: processID, Err: err}
	}

	return step, nil
}

// AppendUpdate inserts into the append-only update log.
func (p *Persistence) AppendUpdate(ctx context.Context, update *models.Update) error {
	if update.CreatedAt.IsZero() {
		update.CreatedAt = time.Now().UTC()
	}

	var step any
	if update.Step != nil {
		step = string(*update.Step)
	}

	result, err := marshalPtr(update.Result)
	if err != nil {
		return fmt.Errorf("failed to append update for process %s: %w", update.ProcessID, err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO updates (id, process_id, status, step, message, progress, step_id, result, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		update.ID, update.ProcessID, string(update.Status), step, update.Message, update.Progress,
		update.StepID, result, update.Error, update.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to append update for process %s: %w", update.ProcessID, err)
	}

	return nil
}

// ListUpdates returns updates ascending by creation time, strictly newer
// than since when it is given.
func (p *Persistence) ListUpdates(ctx context.Context, processID string, since *time.Time) ([]*models.Update, error) {
	query := "SELECT id, process_id, status, step, message, progress, step_id, result, error, created_at FROM updates WHERE process_id = $1"
	args := []any{processID}

	if since != nil {
		query += " AND created_at > $2"

		args = append(args, since.UnixMicro())
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
			result    []byte
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

		if result != nil {
			update.Result = &models.ProcessResult{}
			if err := json.Unmarshal(result, update.Result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal update result: %w", err)
			}
		}

		update.CreatedAt = time.UnixMicro(createdAt).UTC()

		updates = append(updates, &update)
	}

	return updates, rows.Err()
}

func (p *Persistence) stepsByProcess(ctx context.Context, processID string) ([]*models.Step, error) {
	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM steps WHERE process_id = $1 ORDER BY started_at ASC, id ASC", stepColumns),
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcess(row rowScanner) (*models.Process, error) {
	var (
		process     models.Process
		status      string
		currentStep sql.NullString
		config      []byte
		result      []byte
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

	if err := json.Unmarshal(config, &process.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if result != nil {
		process.Result = &models.ProcessResult{}
		if err := json.Unmarshal(result, process.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	process.CreatedAt = time.UnixMicro(createdAt).UTC()
	process.UpdatedAt = time.UnixMicro(updatedAt).UTC()

	if completedAt.Valid {
		t := time.UnixMicro(completedAt.Int64).UTC()
		process.CompletedAt = &t
	}

	return &process, nil
}

func scanStep(row rowScanner) (*models.Step, error) {
	var (
		step        models.Step
		kind        string
		status      string
		input       []byte
		output      []byte
		interaction []byte
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

	if err := json.Unmarshal(input, &step.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}

	if output != nil {
		step.Output = &models.StepOutput{}
		if err := json.Unmarshal(output, step.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	if interaction != nil {
		step.Interaction = &models.AIInteraction{}
		if err := json.Unmarshal(interaction, step.Interaction); err != nil {
			return nil, fmt.Errorf("failed to unmarshal interaction: %w", err)
		}
	}

	step.StartedAt = time.UnixMicro(startedAt).UTC()

	if completedAt.Valid {
		t := time.UnixMicro(completedAt.Int64).UTC()
		step.CompletedAt = &t
	}

	if durationUs.Valid {
		d := time.Duration(durationUs.Int64) * time.Microsecond
		step.Duration = &d
	}

	return &step, nil
}

func marshalPtr[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	return data, nil
}

func microPtr(t *time.Time) any {
	if t == nil {
		return nil
	}

	return t.UnixMicro()
}
