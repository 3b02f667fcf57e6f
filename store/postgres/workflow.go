package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_runs (`+runColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)`, runArgs(run)...)
	if err != nil {
		if isOpenRunConflict(err) {
			return &replay.AlreadyStartedError{ExecutionID: run.ExecutionID}
		}
		if isDuplicateKey(err) {
			return replay.ErrDuplicateRun
		}
		return fmt.Errorf("replay/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM replay_runs WHERE id = $1`, runID.String())

	run, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrRunNotFound
		}
		return nil, fmt.Errorf("replay/postgres: get run: %w", err)
	}
	return run, nil
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	args := runArgs(run)
	tag, err := s.pool.Exec(ctx, `
		UPDATE replay_runs SET
			execution_id = $2, name = $3, version = $4, state = $5,
			task_queue = $6, input = $7, output = $8, error = $9,
			error_type = $10, parent_run_id = $11, continued_from_run_id = $12,
			deadline = $13, scope_app_id = $14, scope_org_id = $15,
			started_at = $16, completed_at = $17, updated_at = NOW()
		WHERE id = $1`, args[:17]...)
	if err != nil {
		return fmt.Errorf("replay/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrRunNotFound
	}
	return nil
}

// LatestRun returns the most recent run of an execution lineage.
func (s *Store) LatestRun(ctx context.Context, executionID id.ExecutionID) (*workflow.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM replay_runs
		WHERE execution_id = $1
		ORDER BY started_at DESC
		LIMIT 1`, executionID.String())

	run, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("replay/postgres: latest run: %w", err)
	}
	return run, nil
}

// RunsForExecution returns the full lineage of an execution, oldest first.
func (s *Store) RunsForExecution(ctx context.Context, executionID id.ExecutionID) ([]*workflow.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM replay_runs
		WHERE execution_id = $1
		ORDER BY started_at ASC`, executionID.String())
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: runs for execution: %w", err)
	}
	defer rows.Close()

	runs, err := collect(rows, scanRun)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, replay.ErrExecutionNotFound
	}
	return runs, nil
}

// ListRuns returns runs matching the given options.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	query := `SELECT ` + runColumns + ` FROM replay_runs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}
	if opts.Name != "" {
		query += fmt.Sprintf(" AND name = $%d", argIdx)
		args = append(args, opts.Name)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: list runs: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanRun)
}

// ListOpenRuns returns all runs whose state is running or paused.
func (s *Store) ListOpenRuns(ctx context.Context) ([]*workflow.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM replay_runs
		WHERE state IN ('running', 'paused')
		ORDER BY started_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: list open runs: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanRun)
}

// ListChildRuns returns all child runs started by a parent run.
func (s *Store) ListChildRuns(ctx context.Context, parentRunID id.RunID) ([]*workflow.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM replay_runs
		WHERE parent_run_id = $1
		ORDER BY started_at ASC`, parentRunID.String())
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: list child runs: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanRun)
}

// DeleteRun removes a run record.
func (s *Store) DeleteRun(ctx context.Context, runID id.RunID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM replay_runs WHERE id = $1`, runID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrRunNotFound
	}
	return nil
}
