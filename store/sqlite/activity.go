package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/id"
)

// ScheduleTask persists a new task in scheduled state.
func (s *Store) ScheduleTask(ctx context.Context, t *activity.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return fmt.Errorf("replay/sqlite: schedule task: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO replay_tasks (`+taskColumns+`) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)`, args...)
	if err != nil {
		if isDuplicateKey(err) {
			return replay.ErrDuplicateTask
		}
		return fmt.Errorf("replay/sqlite: schedule task: %w", err)
	}
	return nil
}

// DequeueTasks atomically leases up to limit due tasks from the given
// queues. SQLite has no FOR UPDATE SKIP LOCKED; a short transaction around
// select-then-update gives the same exclusivity because SQLite serializes
// writers.
func (s *Store) DequeueTasks(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*activity.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: begin dequeue: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC()
	query := `
		SELECT id FROM replay_tasks
		WHERE state IN ('scheduled', 'retrying') AND run_at <= ?`
	args := []any{encTime(now)}
	if len(queues) > 0 {
		query += ` AND task_queue IN (` + placeholders(len(queues)) + `)`
		for _, q := range queues {
			args = append(args, q)
		}
	}
	query += ` ORDER BY run_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: dequeue select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var taskID string
		if err = rows.Scan(&taskID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("replay/sqlite: dequeue scan: %w", err)
		}
		ids = append(ids, taskID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("replay/sqlite: dequeue select: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	updateArgs := []any{workerID.String(), encTime(now), encTime(now), encTime(now)}
	for _, taskID := range ids {
		updateArgs = append(updateArgs, taskID)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE replay_tasks
		SET state = 'running', attempt = attempt + 1, worker_id = ?,
			started_at = ?, heartbeat_at = ?, updated_at = ?
		WHERE id IN (`+placeholders(len(ids))+`)`, updateArgs...)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: dequeue update: %w", err)
	}

	selectArgs := make([]any, len(ids))
	for i, taskID := range ids {
		selectArgs[i] = taskID
	}
	leased, err := tx.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM replay_tasks
		WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY run_at ASC`, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: dequeue reload: %w", err)
	}
	tasks, err := collect(leased, scanTask)
	leased.Close()
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("replay/sqlite: commit dequeue: %w", err)
	}
	return tasks, nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.ActivityID) (*activity.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM replay_tasks WHERE id = ?`, taskID.String())

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrTaskNotFound
		}
		return nil, fmt.Errorf("replay/sqlite: get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *activity.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return fmt.Errorf("replay/sqlite: update task: %w", err)
	}
	update := append(args[1:21:21], nowNano(), args[0])
	res, err := s.db.ExecContext(ctx, `
		UPDATE replay_tasks SET
			run_id = ?, execution_id = ?, name = ?, task_queue = ?,
			input = ?, state = ?, scheduled_seq = ?, attempt = ?,
			retry_policy = ?, start_to_close_timeout = ?,
			heartbeat_timeout = ?, last_error = ?, result = ?,
			scope_app_id = ?, scope_org_id = ?, worker_id = ?,
			run_at = ?, started_at = ?, completed_at = ?,
			heartbeat_at = ?, updated_at = ?
		WHERE id = ?`, update...)
	if err != nil {
		return fmt.Errorf("replay/sqlite: update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.ActivityID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_tasks WHERE id = ?`, taskID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrTaskNotFound
	}
	return nil
}

// ListTasksByState returns tasks matching the given state.
func (s *Store) ListTasksByState(ctx context.Context, state activity.State, opts activity.ListOpts) ([]*activity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM replay_tasks WHERE state = ?`
	args := []any{string(state)}

	if opts.TaskQueue != "" {
		query += " AND task_queue = ?"
		args = append(args, opts.TaskQueue)
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
		return nil, fmt.Errorf("replay/sqlite: list tasks by state: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanTask)
}

// ListTasksForRun returns all tasks belonging to a run, in ScheduledSeq order.
func (s *Store) ListTasksForRun(ctx context.Context, runID id.RunID) ([]*activity.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM replay_tasks
		WHERE run_id = ?
		ORDER BY scheduled_seq ASC`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: list tasks for run: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanTask)
}

// HeartbeatTask updates the heartbeat timestamp for a running task.
func (s *Store) HeartbeatTask(ctx context.Context, taskID id.ActivityID, _ id.WorkerID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE replay_tasks SET heartbeat_at = ? WHERE id = ?`,
		nowNano(), taskID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: heartbeat task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrTaskNotFound
	}
	return nil
}

// ReapStaleTasks returns running tasks whose heartbeat or start-to-close
// deadline has lapsed. Per-task overrides live in the row, so the
// threshold math happens here rather than in SQL.
func (s *Store) ReapStaleTasks(ctx context.Context, defaultThreshold time.Duration) ([]*activity.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM replay_tasks WHERE state = 'running'`)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: reap stale tasks: %w", err)
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
	now := nowNano()
	_, err := s.db.ExecContext(ctx, `
		UPDATE replay_tasks
		SET state = 'cancelled', completed_at = ?, updated_at = ?
		WHERE run_id = ? AND state NOT IN ('completed', 'failed', 'cancelled')`,
		now, now, runID.String())
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: cancel tasks for run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM replay_tasks
		WHERE run_id = ? AND state = 'cancelled' AND completed_at = ?
		ORDER BY scheduled_seq ASC`, runID.String(), now)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: cancel tasks for run: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanTask)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts activity.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM replay_tasks WHERE 1=1`
	args := []any{}

	if opts.TaskQueue != "" {
		query += " AND task_queue = ?"
		args = append(args, opts.TaskQueue)
	}
	if opts.State != "" {
		query += " AND state = ?"
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("replay/sqlite: count tasks: %w", err)
	}
	return count, nil
}
