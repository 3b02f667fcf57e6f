package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	m := toRunModel(run)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isOpenRunConflict(err) {
			return &replay.AlreadyStartedError{ExecutionID: run.ExecutionID}
		}
		if isDuplicateKey(err) {
			return replay.ErrDuplicateRun
		}
		return fmt.Errorf("replay/bun: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	m := new(runModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", runID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrRunNotFound
		}
		return nil, fmt.Errorf("replay/bun: get run: %w", err)
	}
	return fromRunModel(m)
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	m := toRunModel(run)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: update run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrRunNotFound
	}
	return nil
}

// LatestRun returns the most recently started run for an execution.
func (s *Store) LatestRun(ctx context.Context, executionID id.ExecutionID) (*workflow.Run, error) {
	m := new(runModel)
	err := s.db.NewSelect().Model(m).
		Where("execution_id = ?", executionID.String()).
		Order("started_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("replay/bun: latest run: %w", err)
	}
	return fromRunModel(m)
}

// RunsForExecution returns the full run chain for an execution, oldest
// first.
func (s *Store) RunsForExecution(ctx context.Context, executionID id.ExecutionID) ([]*workflow.Run, error) {
	var models []runModel
	err := s.db.NewSelect().Model(&models).
		Where("execution_id = ?", executionID.String()).
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: runs for execution: %w", err)
	}
	if len(models) == 0 {
		return nil, replay.ErrExecutionNotFound
	}
	return collectRuns(models)
}

// ListRuns returns runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	var models []runModel
	q := s.db.NewSelect().Model(&models)

	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Name != "" {
		q = q.Where("name = ?", opts.Name)
	}

	q = q.Order("started_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("replay/bun: list runs: %w", err)
	}
	return collectRuns(models)
}

// ListOpenRuns returns all runs whose state is running or paused.
func (s *Store) ListOpenRuns(ctx context.Context) ([]*workflow.Run, error) {
	var models []runModel
	err := s.db.NewSelect().Model(&models).
		Where("state IN (?, ?)",
			string(workflow.RunStateRunning), string(workflow.RunStatePaused)).
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: list open runs: %w", err)
	}
	return collectRuns(models)
}

// ListChildRuns returns all child runs started by a parent run.
func (s *Store) ListChildRuns(ctx context.Context, parentRunID id.RunID) ([]*workflow.Run, error) {
	var models []runModel
	err := s.db.NewSelect().Model(&models).
		Where("parent_run_id = ?", parentRunID.String()).
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: list child runs: %w", err)
	}
	return collectRuns(models)
}

// DeleteRun removes a run by ID.
func (s *Store) DeleteRun(ctx context.Context, runID id.RunID) error {
	res, err := s.db.NewDelete().
		TableExpr("replay_runs").
		Where("id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: delete run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrRunNotFound
	}
	return nil
}

func collectRuns(models []runModel) ([]*workflow.Run, error) {
	runs := make([]*workflow.Run, 0, len(models))
	for i := range models {
		r, err := fromRunModel(&models[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}
