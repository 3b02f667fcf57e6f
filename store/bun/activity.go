package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/id"
)

// ScheduleTask persists a new task in scheduled state.
func (s *Store) ScheduleTask(ctx context.Context, t *activity.Task) error {
	m, err := toTaskModel(t)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return replay.ErrDuplicateTask
		}
		return fmt.Errorf("replay/bun: schedule task: %w", err)
	}
	return nil
}

// DequeueTasks atomically leases up to limit ready tasks from the given
// queues using SELECT FOR UPDATE SKIP LOCKED. An empty queue list draws
// from every queue.
func (s *Store) DequeueTasks(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*activity.Task, error) {
	var models []taskModel
	_, err := s.db.NewRaw(`
		WITH leased AS (
			UPDATE replay_tasks
			SET state = 'running', attempt = attempt + 1, worker_id = ?0,
				started_at = NOW(), heartbeat_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM replay_tasks
				WHERE state IN ('scheduled', 'retrying')
				  AND (cardinality(?1::text[]) = 0 OR task_queue = ANY(?1))
				  AND run_at <= NOW()
				ORDER BY run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT ?2
			)
			RETURNING *
		)
		SELECT * FROM leased ORDER BY run_at ASC`,
		workerID.String(), pgdialect.Array(queues), limit,
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: dequeue tasks: %w", err)
	}
	return collectTasks(models)
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.ActivityID) (*activity.Task, error) {
	m := new(taskModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", taskID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrTaskNotFound
		}
		return nil, fmt.Errorf("replay/bun: get task: %w", err)
	}
	return fromTaskModel(m)
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *activity.Task) error {
	m, err := toTaskModel(t)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: update task: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.ActivityID) error {
	res, err := s.db.NewDelete().
		TableExpr("replay_tasks").
		Where("id = ?", taskID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: delete task: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrTaskNotFound
	}
	return nil
}

// ListTasksByState returns tasks matching the given state.
func (s *Store) ListTasksByState(ctx context.Context, state activity.State, opts activity.ListOpts) ([]*activity.Task, error) {
	var models []taskModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(state))

	if opts.TaskQueue != "" {
		q = q.Where("task_queue = ?", opts.TaskQueue)
	}

	q = q.Order("scheduled_seq ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("replay/bun: list tasks by state: %w", err)
	}
	return collectTasks(models)
}

// ListTasksForRun returns all tasks belonging to a run in schedule order.
func (s *Store) ListTasksForRun(ctx context.Context, runID id.RunID) ([]*activity.Task, error) {
	var models []taskModel
	err := s.db.NewSelect().Model(&models).
		Where("run_id = ?", runID.String()).
		Order("scheduled_seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: list tasks for run: %w", err)
	}
	return collectTasks(models)
}

// HeartbeatTask updates the heartbeat timestamp for a leased task.
func (s *Store) HeartbeatTask(ctx context.Context, taskID id.ActivityID, workerID id.WorkerID) error {
	res, err := s.db.NewUpdate().
		TableExpr("replay_tasks").
		Set("heartbeat_at = NOW()").
		Set("worker_id = ?", workerID.String()).
		Set("updated_at = NOW()").
		Where("id = ?", taskID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: heartbeat task: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrTaskNotFound
	}
	return nil
}

// ReapStaleTasks returns running tasks whose heartbeat or start-to-close
// deadline has lapsed. Per-task timeout overrides live in the row, so the
// threshold math happens here rather than in SQL.
func (s *Store) ReapStaleTasks(ctx context.Context, defaultThreshold time.Duration) ([]*activity.Task, error) {
	var models []taskModel
	err := s.db.NewSelect().Model(&models).
		Where("state = ?", string(activity.StateRunning)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: reap stale tasks: %w", err)
	}

	running, err := collectTasks(models)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var stale []*activity.Task
	for _, t := range running {
		if t.HeartbeatAt != nil && now.Sub(*t.HeartbeatAt) > t.StaleAfter(defaultThreshold) {
			stale = append(stale, t)
			continue
		}
		if d := t.Deadline(); !d.IsZero() && now.After(d) {
			stale = append(stale, t)
		}
	}
	return stale, nil
}

// CancelTasksForRun transitions every open task of a run to cancelled and
// returns the affected tasks in schedule order.
func (s *Store) CancelTasksForRun(ctx context.Context, runID id.RunID) ([]*activity.Task, error) {
	var models []taskModel
	_, err := s.db.NewRaw(`
		WITH cancelled AS (
			UPDATE replay_tasks
			SET state = 'cancelled', completed_at = NOW(), updated_at = NOW()
			WHERE run_id = ?0
			  AND state IN ('scheduled', 'retrying', 'running')
			RETURNING *
		)
		SELECT * FROM cancelled ORDER BY scheduled_seq ASC`,
		runID.String(),
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: cancel tasks for run: %w", err)
	}
	return collectTasks(models)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts activity.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("replay_tasks")

	if opts.TaskQueue != "" {
		q = q.Where("task_queue = ?", opts.TaskQueue)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("replay/bun: count tasks: %w", err)
	}
	return int64(count), nil
}

func collectTasks(models []taskModel) ([]*activity.Task, error) {
	tasks := make([]*activity.Task, 0, len(models))
	for i := range models {
		t, err := fromTaskModel(&models[i])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
