package dlq

import (
	"context"
	"time"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/id"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store     Store
	taskStore activity.Store
}

// NewService creates a DLQ service.
func NewService(store Store, taskStore activity.Store) *Service {
	return &Service{store: store, taskStore: taskStore}
}

// Push builds a DLQ Entry from a terminally failed task and persists it.
// The error string is captured from the final attempt's error.
func (s *Service) Push(ctx context.Context, t *activity.Task, taskErr error, errType string) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:          id.NewDLQID(),
		TaskID:      t.ID,
		RunID:       t.RunID,
		ExecutionID: t.ExecutionID,
		Activity:    t.Name,
		TaskQueue:   t.TaskQueue,
		Input:       t.Input,
		Error:       taskErr.Error(),
		ErrorType:   errType,
		Attempts:    t.Attempt,
		MaxAttempts: t.RetryPolicy.MaximumAttempts,
		ScopeAppID:  t.ScopeAppID,
		ScopeOrgID:  t.ScopeOrgID,
		FailedAt:    now,
		CreatedAt:   now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// DLQStore returns the underlying DLQ store for direct access to List,
// Get, Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}
