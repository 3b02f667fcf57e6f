package sqlite

import (
	"context"
	"fmt"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_runs (`+runColumns+`) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)`, runArgs(run)...)
	if err != nil {
		if isOpenRunConflict(err) {
			return &replay.AlreadyStartedError{ExecutionID: run.ExecutionID}
		}
		if isDuplicateKey(err) {
			return replay.ErrDuplicateRun
		}
		return fmt.Errorf("replay/sqlite: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM replay_runs WHERE id = ?`, runID.String())

	run, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrRunNotFound
		}
		return nil, fmt.Errorf("replay/sqlite: get run: %w", err)
	}
	return run, nil
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	args := runArgs(run)
	// Reorder so the primary key lands on the WHERE placeholder.
	update := append(args[1:17:17], nowNano(), args[0])
	res, err := s.db.ExecContext(ctx, `
		UPDATE replay_runs SET
			execution_id = ?, name = ?, version = ?, state = ?,
			task_queue = ?, input = ?, output = ?, error = ?,
			error_type = ?, parent_run_id = ?, continued_from_run_id = ?,
			deadline = ?, scope_app_id = ?, scope_org_id = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`, update...)
	if err != nil {
		return fmt.Errorf("replay/sqlite: update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrRunNotFound
	}
	return nil
}

// LatestRun returns the most recent run of an execution lineage.
func (s *Store) LatestRun(ctx context.Context, executionID id.ExecutionID) (*workflow.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM replay_runs
		WHERE execution_id = ?
		ORDER BY started_at DESC
		LIMIT 1`, executionID.String())

	run, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("replay/sqlite: latest run: %w", err)
	}
	return run, nil
}

// RunsForExecution returns the full lineage of an execution, oldest first.
func (s *Store) RunsForExecution(ctx context.Context, executionID id.ExecutionID) ([]*workflow.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM replay_runs
		WHERE execution_id = ?
		ORDER BY started_at ASC`, executionID.String())
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: runs for execution: %w", err)
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

	if opts.State != "" {
		query += " AND state = ?"
		args = append(args, string(opts.State))
	}
	if opts.Name != "" {
		query += " AND name = ?"
		args = append(args, opts.Name)
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: list runs: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanRun)
}

// ListOpenRuns returns all runs whose state is running or paused.
func (s *Store) ListOpenRuns(ctx context.Context) ([]*workflow.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM replay_runs
		WHERE state IN ('running', 'paused')
		ORDER BY started_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: list open runs: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanRun)
}

// ListChildRuns returns all child runs started by a parent run.
func (s *Store) ListChildRuns(ctx context.Context, parentRunID id.RunID) ([]*workflow.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM replay_runs
		WHERE parent_run_id = ?
		ORDER BY started_at ASC`, parentRunID.String())
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: list child runs: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanRun)
}

// DeleteRun removes a run record.
func (s *Store) DeleteRun(ctx context.Context, runID id.RunID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_runs WHERE id = ?`, runID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrRunNotFound
	}
	return nil
}
