package hook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/hook"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// recorder implements a subset of the hook interfaces and records which
// events it saw.
type recorder struct {
	name   string
	events []string
	err    error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnExecutionStarted(_ context.Context, _ *workflow.Run) error {
	r.events = append(r.events, "execution_started")
	return r.err
}

func (r *recorder) OnExecutionCompleted(_ context.Context, _ *workflow.Run, _ time.Duration) error {
	r.events = append(r.events, "execution_completed")
	return r.err
}

func (r *recorder) OnActivityFailed(_ context.Context, _ *activity.Task, _ error) error {
	r.events = append(r.events, "activity_failed")
	return r.err
}

func (r *recorder) OnScheduleFired(_ context.Context, name string, _ id.ExecutionID) error {
	r.events = append(r.events, "schedule_fired:"+name)
	return r.err
}

// shutdownOnly implements just Shutdown.
type shutdownOnly struct {
	called bool
}

func (s *shutdownOnly) Name() string { return "shutdown-only" }
func (s *shutdownOnly) OnShutdown(_ context.Context) error {
	s.called = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_DispatchesOnlyImplementedEvents(t *testing.T) {
	reg := hook.NewRegistry(discardLogger())
	rec := &recorder{name: "rec"}
	so := &shutdownOnly{}
	reg.Register(rec)
	reg.Register(so)

	ctx := context.Background()
	run := &workflow.Run{ID: id.NewRunID(), Name: "order"}

	reg.EmitExecutionStarted(ctx, run)
	reg.EmitExecutionCompleted(ctx, run, time.Second)
	// recorder does not implement ExecutionFailed; must be a no-op.
	reg.EmitExecutionFailed(ctx, run, errors.New("boom"))
	reg.EmitActivityFailed(ctx, &activity.Task{ID: id.NewActivityID()}, errors.New("boom"))
	reg.EmitScheduleFired(ctx, "nightly", id.NewExecutionID())
	reg.EmitShutdown(ctx)

	want := []string{"execution_started", "execution_completed", "activity_failed", "schedule_fired:nightly"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i, e := range want {
		if rec.events[i] != e {
			t.Errorf("events[%d] = %q, want %q", i, rec.events[i], e)
		}
	}
	if !so.called {
		t.Error("shutdown hook not called")
	}
}

func TestRegistry_HookErrorsDoNotPropagate(t *testing.T) {
	reg := hook.NewRegistry(discardLogger())
	failing := &recorder{name: "failing", err: errors.New("hook broken")}
	second := &recorder{name: "second"}
	reg.Register(failing)
	reg.Register(second)

	// A failing hook must not stop later hooks from running.
	reg.EmitExecutionStarted(context.Background(), &workflow.Run{ID: id.NewRunID()})

	if len(second.events) != 1 {
		t.Fatalf("second hook saw %d events, want 1", len(second.events))
	}
}

func TestRegistry_Hooks(t *testing.T) {
	reg := hook.NewRegistry(discardLogger())
	reg.Register(&recorder{name: "a"})
	reg.Register(&shutdownOnly{})

	if got := len(reg.Hooks()); got != 2 {
		t.Fatalf("Hooks() = %d, want 2", got)
	}
}
