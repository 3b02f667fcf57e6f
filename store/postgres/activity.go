package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/id"
)

// ScheduleTask persists a new task in scheduled state.
func (s *Store) ScheduleTask(ctx context.Context, t *activity.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return fmt.Errorf("replay/postgres: schedule task: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO replay_tasks (`+taskColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)`, args...)
	if err != nil {
		if isDuplicateKey(err) {
			return replay.ErrDuplicateTask
		}
		return fmt.Errorf("replay/postgres: schedule task: %w", err)
	}
	return nil
}

// DequeueTasks atomically leases up to limit due tasks from the given
// queues, sets them to running, and returns them. Uses SELECT FOR UPDATE
// SKIP LOCKED for concurrent-safe leasing across pool workers.
func (s *Store) DequeueTasks(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*activity.Task, error) {
	rows, err := s.pool.Query(ctx, `
		WITH leased AS (
			UPDATE replay_tasks
			SET state = 'running', attempt = attempt + 1, worker_id = $1,
				started_at = NOW(), heartbeat_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM replay_tasks
				WHERE state IN ('scheduled', 'retrying')
				  AND run_at <= NOW()
				  AND (cardinality($2::text[]) = 0 OR task_queue = ANY($2))
				ORDER BY run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $3
			)
			RETURNING `+taskColumns+`
		)
		SELECT * FROM leased ORDER BY run_at ASC`,
		workerID.String(), queues, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: dequeue tasks: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanTask)
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.ActivityID) (*activity.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM replay_tasks WHERE id = $1`, taskID.String())

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrTaskNotFound
		}
		return nil, fmt.Errorf("replay/postgres: get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *activity.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return fmt.Errorf("replay/postgres: update task: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE replay_tasks SET
			run_id = $2, execution_id = $3, name = $4, task_queue = $5,
			input = $6, state = $7, scheduled_seq = $8, attempt = $9,
			retry_policy = $10, start_to_close_timeout = $11,
			heartbeat_timeout = $12, last_error = $13, result = $14,
			scope_app_id = $15, scope_org_id = $16, worker_id = $17,
			run_at = $18, started_at = $19, completed_at = $20,
			heartbeat_at = $21, updated_at = NOW()
		WHERE id = $1`, args[:21]...)
	if err != nil {
		return fmt.Errorf("replay/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.ActivityID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM replay_tasks WHERE id = $1`, taskID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrTaskNotFound
	}
	return nil
}

// ListTasksByState returns tasks matching the given state.
func (s *Store) ListTasksByState(ctx context.Context, state activity.State, opts activity.ListOpts) ([]*activity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM replay_tasks WHERE state = $1`
	args := []any{string(state)}
	argIdx := 2

	if opts.TaskQueue != "" {
		query += fmt.Sprintf(" AND task_queue = $%d", argIdx)
		args = append(args, opts.TaskQueue)
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
		return nil, fmt.Errorf("replay/postgres: list tasks by state: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanTask)
}

// ListTasksForRun returns all tasks belonging to a run, in ScheduledSeq order.
func (s *Store) ListTasksForRun(ctx context.Context, runID id.RunID) ([]*activity.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM replay_tasks
		WHERE run_id = $1
		ORDER BY scheduled_seq ASC`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: list tasks for run: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanTask)
}

// HeartbeatTask updates the heartbeat timestamp for a running task.
func (s *Store) HeartbeatTask(ctx context.Context, taskID id.ActivityID, _ id.WorkerID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE replay_tasks SET heartbeat_at = NOW() WHERE id = $1`,
		taskID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: heartbeat task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrTaskNotFound
	}
	return nil
}

// ReapStaleTasks returns running tasks whose heartbeat or start-to-close
// deadline has lapsed. Per-task overrides live in the row, so the
// threshold math happens here rather than in SQL.
func (s *Store) ReapStaleTasks(ctx context.Context, defaultThreshold time.Duration) ([]*activity.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM replay_tasks WHERE state = 'running'`)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: reap stale tasks: %w", err)
	}
	defer rows.Close()

	running, err := collect(rows, scanTask)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var stale []*activity.Task
	for _, t := range running {
		last := t.StartedAt
		if t.HeartbeatAt != nil {
			last = t.HeartbeatAt
		}
		hbExpired := last != nil && now.Sub(*last) > t.StaleAfter(defaultThreshold)

		deadline := t.Deadline()
		runTooLong := !deadline.IsZero() && now.After(deadline)

		if hbExpired || runTooLong {
			stale = append(stale, t)
		}
	}
	return stale, nil
}

// CancelTasksForRun transitions all non-terminal tasks of a run to
// cancelled and returns the affected tasks.
func (s *Store) CancelTasksForRun(ctx context.Context, runID id.RunID) ([]*activity.Task, error) {
	rows, err := s.pool.Query(ctx, `
		WITH cancelled AS (
			UPDATE replay_tasks
			SET state = 'cancelled', completed_at = NOW(), updated_at = NOW()
			WHERE run_id = $1 AND state NOT IN ('completed', 'failed', 'cancelled')
			RETURNING `+taskColumns+`
		)
		SELECT * FROM cancelled ORDER BY scheduled_seq ASC`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: cancel tasks for run: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanTask)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts activity.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM replay_tasks WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.TaskQueue != "" {
		query += fmt.Sprintf(" AND task_queue = $%d", argIdx)
		args = append(args, opts.TaskQueue)
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("replay/postgres: count tasks: %w", err)
	}
	return count, nil
}
