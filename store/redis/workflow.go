package redis

import (
	"context"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// CreateRun persists a new run and indexes it under its execution.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	rID := run.ID.String()
	key := runKey(rID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("replay/redis: create run exists: %w", err)
	}
	if exists {
		return replay.ErrDuplicateRun
	}

	// At most one open run per execution lineage.
	if run.State.Open() {
		latest, latestErr := s.LatestRun(ctx, run.ExecutionID)
		if latestErr == nil && latest.State.Open() {
			return &replay.AlreadyStartedError{
				ExecutionID: run.ExecutionID,
				RunID:       latest.ID,
			}
		}
	}

	if err := s.setEntity(ctx, key, run); err != nil {
		return fmt.Errorf("replay/redis: create run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, runIDsKey, rID)
	pipe.ZAdd(ctx, executionRunsKey(run.ExecutionID.String()), goredis.Z{
		Score:  float64(run.StartedAt.UnixNano()),
		Member: rID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: create run indexes: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	var run workflow.Run
	if err := s.getEntity(ctx, runKey(runID.String()), &run); err != nil {
		if isRedisNil(err) {
			return nil, replay.ErrRunNotFound
		}
		return nil, fmt.Errorf("replay/redis: get run: %w", err)
	}
	return &run, nil
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	key := runKey(run.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("replay/redis: update run exists: %w", err)
	}
	if !exists {
		return replay.ErrRunNotFound
	}
	if err := s.setEntity(ctx, key, run); err != nil {
		return fmt.Errorf("replay/redis: update run: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run for an execution.
func (s *Store) LatestRun(ctx context.Context, executionID id.ExecutionID) (*workflow.Run, error) {
	ids, err := s.client.ZRevRange(ctx, executionRunsKey(executionID.String()), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: latest run: %w", err)
	}
	if len(ids) == 0 {
		return nil, replay.ErrExecutionNotFound
	}
	return s.GetRun(ctx, mustRunID(ids[0]))
}

// RunsForExecution returns the full run chain for an execution, oldest
// first.
func (s *Store) RunsForExecution(ctx context.Context, executionID id.ExecutionID) ([]*workflow.Run, error) {
	ids, err := s.client.ZRange(ctx, executionRunsKey(executionID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: runs for execution: %w", err)
	}
	if len(ids) == 0 {
		return nil, replay.ErrExecutionNotFound
	}

	runs := make([]*workflow.Run, 0, len(ids))
	for _, rID := range ids {
		run, getErr := s.GetRun(ctx, mustRunID(rID))
		if getErr != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ListRuns returns runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	runs, err := s.scanRuns(ctx, func(r *workflow.Run) bool {
		if opts.State != "" && r.State != opts.State {
			return false
		}
		if opts.Name != "" && r.Name != opts.Name {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(runs) {
		runs = runs[:opts.Limit]
	}
	return runs, nil
}

// ListOpenRuns returns all runs whose state is running or paused.
func (s *Store) ListOpenRuns(ctx context.Context) ([]*workflow.Run, error) {
	return s.scanRuns(ctx, func(r *workflow.Run) bool {
		return r.State.Open()
	})
}

// ListChildRuns returns all child runs started by a parent run.
func (s *Store) ListChildRuns(ctx context.Context, parentRunID id.RunID) ([]*workflow.Run, error) {
	return s.scanRuns(ctx, func(r *workflow.Run) bool {
		return r.ParentRunID == parentRunID
	})
}

// DeleteRun removes a run and its execution index entry.
func (s *Store) DeleteRun(ctx context.Context, runID id.RunID) error {
	rID := runID.String()

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, runKey(rID))
	pipe.SRem(ctx, runIDsKey, rID)
	pipe.ZRem(ctx, executionRunsKey(run.ExecutionID.String()), rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: delete run: %w", err)
	}
	return nil
}

// ── helpers ──

// scanRuns loads every run and keeps those matching the filter, ordered by
// start time.
func (s *Store) scanRuns(ctx context.Context, keep func(*workflow.Run) bool) ([]*workflow.Run, error) {
	ids, err := s.client.SMembers(ctx, runIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: scan runs: %w", err)
	}

	var runs []*workflow.Run
	for _, rID := range ids {
		var run workflow.Run
		if getErr := s.getEntity(ctx, runKey(rID), &run); getErr != nil {
			continue
		}
		if !keep(&run) {
			continue
		}
		runs = append(runs, &run)
	}

	sort.Slice(runs, func(i, k int) bool {
		return runs[i].StartedAt.Before(runs[k].StartedAt)
	})
	return runs, nil
}

// mustRunID parses an index member known to be a run ID; malformed members
// yield the zero ID, which downstream lookups report as not found.
func mustRunID(s string) id.RunID {
	rID, err := id.ParseRunID(s)
	if err != nil {
		return id.Nil
	}
	return rID
}
