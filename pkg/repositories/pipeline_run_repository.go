package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-pivot/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-pivot/pkg/models"
)

// PipelineRunRepository provides data access for the run ledger
// (pivot_runs and pivot_run_steps).
type PipelineRunRepository interface {
	// Run operations
	Create(ctx context.Context, run *models.PipelineRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error)
	ListRecent(ctx context.Context, limit int) ([]*models.PipelineRun, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RunStatus, errorMsg *string) error

	// Step operations
	UpdateStepStatus(ctx context.Context, stepID uuid.UUID, status models.RunStatus, errorMsg *string) error
	UpdateStepProgress(ctx context.Context, stepID uuid.UUID, progress *models.StepProgress) error
}

type pipelineRunRepository struct {
	exec store.Executor
}

// NewPipelineRunRepository creates a new PipelineRunRepository.
func NewPipelineRunRepository(exec store.Executor) PipelineRunRepository {
	return &pipelineRunRepository{exec: exec}
}

var _ PipelineRunRepository = (*pipelineRunRepository)(nil)

func (r *pipelineRunRepository) q(query string) string {
	return store.Rebind(r.exec.Dialect(), query)
}

// ============================================================================
// Run Operations
// ============================================================================

// Create inserts the run and one pending row per step. IDs are assigned when unset.
func (r *pipelineRunRepository) Create(ctx context.Context, run *models.PipelineRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := r.exec.Exec(ctx, r.q(`
		INSERT INTO pivot_runs (id, status, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)`),
		run.ID.String(), string(run.Status), run.ErrorMessage, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline run: %w", err)
	}

	for i := range run.Steps {
		step := &run.Steps[i]
		if step.ID == uuid.Nil {
			step.ID = uuid.New()
		}
		step.RunID = run.ID
		_, err := r.exec.Exec(ctx, r.q(`
			INSERT INTO pivot_run_steps (id, run_id, step_name, stage, status, rows_affected)
			VALUES ($1, $2, $3, $4, $5, $6)`),
			step.ID.String(), run.ID.String(), string(step.Name), step.Stage, string(step.Status), step.RowsAffected,
		)
		if err != nil {
			return fmt.Errorf("failed to create pipeline step %s: %w", step.Name, err)
		}
	}
	return nil
}

func (r *pipelineRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	row := r.exec.QueryRow(ctx, r.q(`
		SELECT id, status, error_message, started_at, completed_at
		FROM pivot_runs
		WHERE id = $1`), id.String())

	run, err := scanRunRow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("pipeline run %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}

	steps, err := r.getSteps(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Steps = steps
	return run, nil
}

// ListRecent returns the most recent runs, newest first, with their steps.
func (r *pipelineRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.PipelineRun, error) {
	rows, err := r.exec.Query(ctx, `
		SELECT id, status, error_message, started_at, completed_at
		FROM pivot_runs
		ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}

	if limit <= 0 {
		limit = 10
	}
	runs := make([]*models.PipelineRun, 0, limit)
	for rows.Next() && len(runs) < limit {
		run, err := scanRunRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, run)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating pipeline runs: %w", err)
	}

	// Steps are loaded after the run cursor is closed; SQLite runs on one connection.
	for _, run := range runs {
		steps, err := r.getSteps(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		run.Steps = steps
	}
	return runs, nil
}

func (r *pipelineRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RunStatus, errorMsg *string) error {
	var completedAt *time.Time
	if status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	n, err := r.exec.Exec(ctx, r.q(`
		UPDATE pivot_runs
		SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1`),
		id.String(), string(status), errorMsg, completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update pipeline run status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pipeline run %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// ============================================================================
// Step Operations
// ============================================================================

func (r *pipelineRunRepository) UpdateStepStatus(ctx context.Context, stepID uuid.UUID, status models.RunStatus, errorMsg *string) error {
	query := `
		UPDATE pivot_run_steps
		SET status = $2, error_message = $3
		WHERE id = $1`
	args := []any{stepID.String(), string(status), errorMsg}

	switch {
	case status == models.RunStatusRunning:
		query = `
			UPDATE pivot_run_steps
			SET status = $2, error_message = $3, started_at = $4
			WHERE id = $1`
		args = append(args, time.Now().UTC())
	case status.IsTerminal():
		query = `
			UPDATE pivot_run_steps
			SET status = $2, error_message = $3, completed_at = $4
			WHERE id = $1`
		args = append(args, time.Now().UTC())
	}

	_, err := r.exec.Exec(ctx, r.q(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update step status: %w", err)
	}
	return nil
}

func (r *pipelineRunRepository) UpdateStepProgress(ctx context.Context, stepID uuid.UUID, progress *models.StepProgress) error {
	_, err := r.exec.Exec(ctx, r.q(`
		UPDATE pivot_run_steps
		SET rows_affected = $2, message = $3
		WHERE id = $1`),
		stepID.String(), progress.RowsAffected, progress.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to update step progress: %w", err)
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func (r *pipelineRunRepository) getSteps(ctx context.Context, runID uuid.UUID) ([]models.PipelineStep, error) {
	rows, err := r.exec.Query(ctx, r.q(`
		SELECT id, step_name, stage, status, rows_affected, message, error_message, started_at, completed_at
		FROM pivot_run_steps
		WHERE run_id = $1
		ORDER BY stage, step_name`), runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline steps: %w", err)
	}
	defer rows.Close()

	var steps []models.PipelineStep
	for rows.Next() {
		var (
			step    models.PipelineStep
			id      string
			name    string
			status  string
			message *string
		)
		if err := rows.Scan(&id, &name, &step.Stage, &status, &step.RowsAffected,
			&message, &step.ErrorMessage, &step.StartedAt, &step.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline step: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid step id %q: %w", id, err)
		}
		step.ID = parsed
		step.RunID = runID
		step.Name = models.StepName(name)
		step.Status = models.RunStatus(status)
		if message != nil {
			step.Message = *message
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline steps: %w", err)
	}
	return steps, nil
}

func scanRunRow(row store.Row) (*models.PipelineRun, error) {
	var (
		run    models.PipelineRun
		id     string
		status string
	)
	if err := row.Scan(&id, &status, &run.ErrorMessage, &run.StartedAt, &run.CompletedAt); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = models.RunStatus(status)
	return &run, nil
}
