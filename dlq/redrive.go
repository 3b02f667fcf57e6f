package dlq

import (
	"context"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/id"
)

// Redrive re-schedules a DLQ entry as a fresh activity task and marks the
// entry as redriven. The new task gets a fresh ID, a zero attempt counter,
// the original scheduled sequence, and runs immediately. Completion
// delivery is idempotent per scheduled sequence, so a redrive of a task
// the run no longer waits on is harmless.
func (s *Service) Redrive(ctx context.Context, entryID id.DLQID) (*activity.Task, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	original, err := s.taskStore.GetTask(ctx, entry.TaskID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &activity.Task{
		Entity:      replay.NewEntity(),
		ID:          id.NewActivityID(),
		RunID:       entry.RunID,
		ExecutionID: entry.ExecutionID,
		Name:        entry.Activity,
		TaskQueue:   entry.TaskQueue,
		Input:       entry.Input,
		State:       activity.StateScheduled,
		// Same journal position: a successful redrive resolves the
		// command the run recorded.
		ScheduledSeq: original.ScheduledSeq,
		RetryPolicy:  original.RetryPolicy,
		ScopeAppID:   entry.ScopeAppID,
		ScopeOrgID:   entry.ScopeOrgID,
		RunAt:        now,
	}

	if err := s.taskStore.ScheduleTask(ctx, t); err != nil {
		return nil, err
	}

	if err := s.store.RedriveDLQ(ctx, entryID); err != nil {
		// The task is already scheduled. Surface the marking error.
		return t, err
	}

	return t, nil
}
