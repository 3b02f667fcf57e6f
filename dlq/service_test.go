package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/backoff"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/store/memory"
)

func newFailedTask(name string, input []byte) *activity.Task {
	now := time.Now().UTC()
	return &activity.Task{
		Entity:       replay.NewEntity(),
		ID:           id.NewActivityID(),
		RunID:        id.NewRunID(),
		ExecutionID:  id.NewExecutionID(),
		Name:         name,
		TaskQueue:    "default",
		Input:        input,
		State:        activity.StateFailed,
		ScheduledSeq: 2,
		Attempt:      3,
		RetryPolicy:  backoff.Policy{MaximumAttempts: 3},
		LastError:    "test error",
		ScopeAppID:   "app_test",
		ScopeOrgID:   "org_test",
		RunAt:        now,
	}
}

func TestService_Push_BuildsEntryFromTask(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	task := newFailedTask("send-invoice", []byte(`{"to":"alice@example.com"}`))
	taskErr := errors.New("smtp timeout")

	if err := svc.Push(ctx, task, taskErr, "SMTPTimeout"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.TaskID != task.ID {
		t.Errorf("TaskID = %v, want %v", entry.TaskID, task.ID)
	}
	if entry.RunID != task.RunID {
		t.Errorf("RunID = %v, want %v", entry.RunID, task.RunID)
	}
	if entry.Activity != "send-invoice" {
		t.Errorf("Activity = %q, want %q", entry.Activity, "send-invoice")
	}
	if entry.TaskQueue != "default" {
		t.Errorf("TaskQueue = %q, want %q", entry.TaskQueue, "default")
	}
	if string(entry.Input) != `{"to":"alice@example.com"}` {
		t.Errorf("Input = %q", entry.Input)
	}
	if entry.Error != "smtp timeout" {
		t.Errorf("Error = %q, want %q", entry.Error, "smtp timeout")
	}
	if entry.ErrorType != "SMTPTimeout" {
		t.Errorf("ErrorType = %q, want %q", entry.ErrorType, "SMTPTimeout")
	}
	if entry.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", entry.Attempts)
	}
	if entry.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", entry.MaxAttempts)
	}
	if entry.ScopeAppID != "app_test" {
		t.Errorf("ScopeAppID = %q, want %q", entry.ScopeAppID, "app_test")
	}
	if entry.FailedAt.IsZero() {
		t.Error("expected FailedAt to be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestService_Push_CountIncreases(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	for i := range 3 {
		task := newFailedTask("task-"+string(rune('a'+i)), nil)
		if err := svc.Push(ctx, task, errors.New("fail"), ""); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	count, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 3 {
		t.Errorf("CountDLQ = %d, want 3", count)
	}
}

func TestService_Redrive_CreatesFreshTask(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	original := newFailedTask("redrive-me", []byte(`{"key":"value"}`))
	if err := s.ScheduleTask(ctx, original); err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	if err := svc.Push(ctx, original, errors.New("original error"), ""); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}
	entryID := entries[0].ID

	redriven, err := svc.Redrive(ctx, entryID)
	if err != nil {
		t.Fatalf("Redrive: %v", err)
	}

	if redriven.ID == original.ID {
		t.Error("redriven task should have a new ID")
	}
	if redriven.State != activity.StateScheduled {
		t.Errorf("State = %q, want %q", redriven.State, activity.StateScheduled)
	}
	if redriven.Attempt != 0 {
		t.Errorf("Attempt = %d, want 0", redriven.Attempt)
	}
	if redriven.ScheduledSeq != original.ScheduledSeq {
		t.Errorf("ScheduledSeq = %d, want %d", redriven.ScheduledSeq, original.ScheduledSeq)
	}
	if redriven.Name != "redrive-me" {
		t.Errorf("Name = %q, want %q", redriven.Name, "redrive-me")
	}
	if string(redriven.Input) != `{"key":"value"}` {
		t.Errorf("Input = %q", redriven.Input)
	}

	got, err := s.GetTask(ctx, redriven.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.State != activity.StateScheduled {
		t.Errorf("stored task State = %q, want %q", got.State, activity.StateScheduled)
	}
}

func TestService_Redrive_MarksEntryRedriven(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	task := newFailedTask("redrive-mark", nil)
	if err := s.ScheduleTask(ctx, task); err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	if err := svc.Push(ctx, task, errors.New("fail"), ""); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	entryID := entries[0].ID

	if _, redriveErr := svc.Redrive(ctx, entryID); redriveErr != nil {
		t.Fatalf("Redrive: %v", redriveErr)
	}

	entry, err := s.GetDLQ(ctx, entryID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if entry.RedrivenAt == nil {
		t.Error("expected RedrivenAt to be set after redrive")
	}
}

func TestService_Redrive_NotFoundReturnsError(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	if _, err := svc.Redrive(ctx, id.NewDLQID()); err == nil {
		t.Fatal("expected error for non-existent DLQ entry")
	}
}
