package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/id"
)

// ScheduleTask persists a new task and adds it to its queue's ready set.
func (s *Store) ScheduleTask(ctx context.Context, t *activity.Task) error {
	tID := t.ID.String()
	key := taskKey(tID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("replay/redis: schedule task exists: %w", err)
	}
	if exists {
		return replay.ErrDuplicateTask
	}

	if err := s.setEntity(ctx, key, t); err != nil {
		return fmt.Errorf("replay/redis: schedule task: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, taskIDsKey, tID)
	pipe.SAdd(ctx, taskQueuesKey, t.TaskQueue)
	pipe.SAdd(ctx, runTasksKey(t.RunID.String()), tID)
	pipe.ZAdd(ctx, taskQueueKey(t.TaskQueue), goredis.Z{
		Score:  float64(t.RunAt.UnixNano()),
		Member: tID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: schedule task indexes: %w", err)
	}
	return nil
}

// DequeueTasks leases up to limit ready tasks from the given queues. An
// empty queue list draws from every known queue. Exclusivity comes from
// ZREM: only the worker that removes a member from the ready set owns it.
func (s *Store) DequeueTasks(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*activity.Task, error) {
	if len(queues) == 0 {
		all, err := s.client.SMembers(ctx, taskQueuesKey).Result()
		if err != nil {
			return nil, fmt.Errorf("replay/redis: dequeue queues: %w", err)
		}
		queues = all
	}

	now := time.Now().UTC()
	maxScore := fmt.Sprintf("%d", now.UnixNano())
	var leased []*activity.Task

	for _, q := range queues {
		if len(leased) >= limit {
			break
		}
		ready, err := s.client.ZRangeByScore(ctx, taskQueueKey(q), &goredis.ZRangeBy{
			Min:   "-inf",
			Max:   maxScore,
			Count: int64(limit - len(leased)),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("replay/redis: dequeue ready: %w", err)
		}

		for _, tID := range ready {
			claimed, err := s.client.ZRem(ctx, taskQueueKey(q), tID).Result()
			if err != nil {
				return nil, fmt.Errorf("replay/redis: dequeue claim: %w", err)
			}
			if claimed == 0 {
				continue // another worker got there first
			}

			var t activity.Task
			if getErr := s.getEntity(ctx, taskKey(tID), &t); getErr != nil {
				continue
			}

			t.State = activity.StateRunning
			t.Attempt++
			t.WorkerID = workerID
			started := now
			t.StartedAt = &started
			hb := now
			t.HeartbeatAt = &hb

			if setErr := s.setEntity(ctx, taskKey(tID), &t); setErr != nil {
				return nil, fmt.Errorf("replay/redis: dequeue lease: %w", setErr)
			}
			if sErr := s.client.SAdd(ctx, runningTasksKey, tID).Err(); sErr != nil {
				return nil, fmt.Errorf("replay/redis: dequeue running index: %w", sErr)
			}
			leased = append(leased, &t)
		}
	}

	sort.Slice(leased, func(i, k int) bool {
		return leased[i].RunAt.Before(leased[k].RunAt)
	})
	return leased, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.ActivityID) (*activity.Task, error) {
	var t activity.Task
	if err := s.getEntity(ctx, taskKey(taskID.String()), &t); err != nil {
		if isRedisNil(err) {
			return nil, replay.ErrTaskNotFound
		}
		return nil, fmt.Errorf("replay/redis: get task: %w", err)
	}
	return &t, nil
}

// UpdateTask persists changes to a task and keeps the queue indexes in
// step with its state.
func (s *Store) UpdateTask(ctx context.Context, t *activity.Task) error {
	tID := t.ID.String()
	key := taskKey(tID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("replay/redis: update task exists: %w", err)
	}
	if !exists {
		return replay.ErrTaskNotFound
	}

	if err := s.setEntity(ctx, key, t); err != nil {
		return fmt.Errorf("replay/redis: update task: %w", err)
	}

	pipe := s.client.TxPipeline()
	switch t.State {
	case activity.StateScheduled, activity.StateRetrying:
		pipe.ZAdd(ctx, taskQueueKey(t.TaskQueue), goredis.Z{
			Score:  float64(t.RunAt.UnixNano()),
			Member: tID,
		})
		pipe.SRem(ctx, runningTasksKey, tID)
	case activity.StateRunning:
		pipe.ZRem(ctx, taskQueueKey(t.TaskQueue), tID)
		pipe.SAdd(ctx, runningTasksKey, tID)
	default:
		pipe.ZRem(ctx, taskQueueKey(t.TaskQueue), tID)
		pipe.SRem(ctx, runningTasksKey, tID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: update task indexes: %w", err)
	}
	return nil
}

// DeleteTask removes a task and all its index entries.
func (s *Store) DeleteTask(ctx context.Context, taskID id.ActivityID) error {
	tID := taskID.String()

	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, taskKey(tID))
	pipe.SRem(ctx, taskIDsKey, tID)
	pipe.SRem(ctx, runningTasksKey, tID)
	pipe.SRem(ctx, runTasksKey(t.RunID.String()), tID)
	pipe.ZRem(ctx, taskQueueKey(t.TaskQueue), tID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: delete task: %w", err)
	}
	return nil
}

// ListTasksByState returns tasks in the given state.
func (s *Store) ListTasksByState(ctx context.Context, state activity.State, opts activity.ListOpts) ([]*activity.Task, error) {
	tasks, err := s.scanTasks(ctx, taskIDsKey, func(t *activity.Task) bool {
		if t.State != state {
			return false
		}
		if opts.TaskQueue != "" && t.TaskQueue != opts.TaskQueue {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(tasks) {
			return nil, nil
		}
		tasks = tasks[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(tasks) {
		tasks = tasks[:opts.Limit]
	}
	return tasks, nil
}

// ListTasksForRun returns all tasks belonging to a run in schedule order.
func (s *Store) ListTasksForRun(ctx context.Context, runID id.RunID) ([]*activity.Task, error) {
	return s.scanTasks(ctx, runTasksKey(runID.String()), func(*activity.Task) bool {
		return true
	})
}

// HeartbeatTask refreshes the heartbeat timestamp for a leased task.
func (s *Store) HeartbeatTask(ctx context.Context, taskID id.ActivityID, workerID id.WorkerID) error {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	t.HeartbeatAt = &now
	t.WorkerID = workerID
	if err := s.setEntity(ctx, taskKey(taskID.String()), t); err != nil {
		return fmt.Errorf("replay/redis: heartbeat task: %w", err)
	}
	return nil
}

// ReapStaleTasks returns running tasks whose heartbeat or start-to-close
// deadline has lapsed. Per-task timeout overrides take precedence over the
// pool default.
func (s *Store) ReapStaleTasks(ctx context.Context, defaultThreshold time.Duration) ([]*activity.Task, error) {
	now := time.Now().UTC()
	return s.scanTasks(ctx, runningTasksKey, func(t *activity.Task) bool {
		if t.State != activity.StateRunning {
			return false
		}
		if t.HeartbeatAt != nil && now.Sub(*t.HeartbeatAt) > t.StaleAfter(defaultThreshold) {
			return true
		}
		if d := t.Deadline(); !d.IsZero() && now.After(d) {
			return true
		}
		return false
	})
}

// CancelTasksForRun transitions every open task of a run to cancelled and
// returns the affected tasks in schedule order.
func (s *Store) CancelTasksForRun(ctx context.Context, runID id.RunID) ([]*activity.Task, error) {
	open, err := s.scanTasks(ctx, runTasksKey(runID.String()), func(t *activity.Task) bool {
		switch t.State {
		case activity.StateScheduled, activity.StateRetrying, activity.StateRunning:
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, t := range open {
		tID := t.ID.String()
		t.State = activity.StateCancelled
		done := now
		t.CompletedAt = &done

		if setErr := s.setEntity(ctx, taskKey(tID), t); setErr != nil {
			return nil, fmt.Errorf("replay/redis: cancel task: %w", setErr)
		}
		pipe := s.client.TxPipeline()
		pipe.ZRem(ctx, taskQueueKey(t.TaskQueue), tID)
		pipe.SRem(ctx, runningTasksKey, tID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return nil, fmt.Errorf("replay/redis: cancel task indexes: %w", pErr)
		}
	}
	return open, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts activity.CountOpts) (int64, error) {
	tasks, err := s.scanTasks(ctx, taskIDsKey, func(t *activity.Task) bool {
		if opts.State != "" && t.State != opts.State {
			return false
		}
		if opts.TaskQueue != "" && t.TaskQueue != opts.TaskQueue {
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	return int64(len(tasks)), nil
}

// ── helpers ──

// scanTasks loads every task listed in the given index set and keeps those
// matching the filter, ordered by scheduled seq.
func (s *Store) scanTasks(ctx context.Context, indexKey string, keep func(*activity.Task) bool) ([]*activity.Task, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: scan tasks: %w", err)
	}

	var tasks []*activity.Task
	for _, tID := range ids {
		var t activity.Task
		if getErr := s.getEntity(ctx, taskKey(tID), &t); getErr != nil {
			continue
		}
		if !keep(&t) {
			continue
		}
		tasks = append(tasks, &t)
	}

	sort.Slice(tasks, func(i, k int) bool {
		return tasks[i].ScheduledSeq < tasks[k].ScheduledSeq
	})
	return tasks, nil
}
