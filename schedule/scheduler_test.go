package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/schedule"
	"github.com/xraph/replay/store/memory"
)

// stubEmitter records EmitScheduleFired calls.
type stubEmitter struct {
	mu    sync.Mutex
	calls []firedCall
}

type firedCall struct {
	ScheduleName string
	ExecutionID  id.ExecutionID
}

func (e *stubEmitter) EmitScheduleFired(_ context.Context, name string, execID id.ExecutionID) {
	e.mu.Lock()
	e.calls = append(e.calls, firedCall{ScheduleName: name, ExecutionID: execID})
	e.mu.Unlock()
}

func (e *stubEmitter) getCalls() []firedCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]firedCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// startSpy tracks workflow start calls with thread safety.
type startSpy struct {
	mu    sync.Mutex
	calls []startCall
}

type startCall struct {
	Workflow string
	Input    []byte
}

func (s *startSpy) Fn() schedule.StartFunc {
	return func(_ context.Context, workflow string, input []byte, _ string) (id.ExecutionID, error) {
		s.mu.Lock()
		s.calls = append(s.calls, startCall{Workflow: workflow, Input: input})
		s.mu.Unlock()
		return id.NewExecutionID(), nil
	}
}

func (s *startSpy) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *startSpy) Workflows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Workflow
	}
	return out
}

func createDueSchedule(t *testing.T, s *memory.Store, name, workflowName string) *schedule.Schedule {
	t.Helper()

	past := time.Now().UTC().Add(-1 * time.Second)
	sc := &schedule.Schedule{
		Entity:     replay.NewEntity(),
		ID:         id.NewScheduleID(),
		Name:       name,
		Spec:       "@every 1s",
		Workflow:   workflowName,
		Input:      []byte(`{}`),
		NextFireAt: &past,
		Enabled:    true,
	}

	if err := s.CreateSchedule(context.Background(), sc); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	return sc
}

func registerLeader(t *testing.T, s *memory.Store) id.WorkerID {
	t.Helper()
	ctx := context.Background()
	workerID := id.NewWorkerID()

	w := &cluster.Worker{
		ID:        workerID,
		Hostname:  "test-host",
		State:     cluster.WorkerActive,
		LastSeen:  time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.RegisterWorker(ctx, w); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	acquired, err := s.AcquireLeadership(ctx, workerID, 30*time.Second)
	if err != nil {
		t.Fatalf("AcquireLeadership: %v", err)
	}
	if !acquired {
		t.Fatal("failed to acquire leadership")
	}
	return workerID
}

// newTestScheduler creates a working scheduler with leadership acquired.
func newTestScheduler(t *testing.T) (*schedule.Scheduler, *memory.Store, *stubEmitter, *startSpy) {
	t.Helper()

	s := memory.New()
	emitter := &stubEmitter{}
	spy := &startSpy{}
	workerID := registerLeader(t, s)

	sched := schedule.NewScheduler(
		s, s, spy.Fn(), emitter, workerID, nil,
		schedule.WithTickInterval(50*time.Millisecond),
		schedule.WithLeaderTTL(10*time.Second),
	)

	return sched, s, emitter, spy
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	sched, s, emitter, spy := newTestScheduler(t)

	createDueSchedule(t, s, "every-second", "send-invoice")

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for spy.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for schedule to fire")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	workflows := spy.Workflows()
	if len(workflows) == 0 {
		t.Fatal("expected at least one start call")
	}
	if workflows[0] != "send-invoice" {
		t.Errorf("started workflow = %q, want %q", workflows[0], "send-invoice")
	}

	calls := emitter.getCalls()
	if len(calls) == 0 {
		t.Error("expected at least one EmitScheduleFired call")
	}
	if len(calls) > 0 && calls[0].ScheduleName != "every-second" {
		t.Errorf("emitter schedule name = %q, want %q", calls[0].ScheduleName, "every-second")
	}
}

func TestScheduler_SkipsDisabled(t *testing.T) {
	sched, s, _, spy := newTestScheduler(t)

	sc := createDueSchedule(t, s, "disabled-schedule", "noop-workflow")

	sc.Enabled = false
	if err := s.UpdateSchedule(context.Background(), sc); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if spy.Count() != 0 {
		t.Errorf("expected 0 start calls for disabled schedule, got %d", spy.Count())
	}
}

func TestScheduler_NonLeaderSkips(t *testing.T) {
	s := memory.New()
	emitter := &stubEmitter{}
	spy := &startSpy{}

	registerLeader(t, s)

	// A second worker that is not the leader.
	nonLeaderID := id.NewWorkerID()
	w := &cluster.Worker{
		ID:        nonLeaderID,
		Hostname:  "test",
		State:     cluster.WorkerActive,
		LastSeen:  time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.RegisterWorker(context.Background(), w); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	sched := schedule.NewScheduler(
		s, s, spy.Fn(), emitter, nonLeaderID, nil,
		schedule.WithTickInterval(50*time.Millisecond),
		schedule.WithLeaderTTL(10*time.Second),
	)

	createDueSchedule(t, s, "leader-only", "test-workflow")

	if startErr := sched.Start(context.Background()); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	time.Sleep(300 * time.Millisecond)

	if stopErr := sched.Stop(context.Background()); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	if spy.Count() != 0 {
		t.Errorf("non-leader should not fire schedules, got %d calls", spy.Count())
	}
}

func TestScheduler_ComputesNextFireAt(t *testing.T) {
	sched, s, _, spy := newTestScheduler(t)

	sc := createDueSchedule(t, s, "update-next", "compute-workflow")
	scheduleID := sc.ID

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for spy.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for schedule to fire")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	updated, err := s.GetSchedule(context.Background(), scheduleID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if updated.NextFireAt == nil {
		t.Fatal("expected NextFireAt to be set")
	}
	if updated.NextFireAt.Before(time.Now().UTC().Add(-2 * time.Second)) {
		t.Errorf("NextFireAt = %v, expected recent/future time", updated.NextFireAt)
	}
	if updated.LastFiredAt == nil {
		t.Error("expected LastFiredAt to be set after firing")
	}
}

func TestScheduler_LockPreventsDoubleFire(t *testing.T) {
	s := memory.New()
	emitter := &stubEmitter{}
	spy := &startSpy{}
	workerID := registerLeader(t, s)

	ctx := context.Background()
	sc := createDueSchedule(t, s, "locked-schedule", "locked-workflow")

	// Pre-acquire the lock for this schedule with a different worker.
	otherWorkerID := id.NewWorkerID()
	locked, lockErr := s.AcquireScheduleLock(ctx, sc.ID, otherWorkerID, 30*time.Second)
	if lockErr != nil {
		t.Fatalf("AcquireScheduleLock: %v", lockErr)
	}
	if !locked {
		t.Fatal("expected to acquire schedule lock")
	}

	sched := schedule.NewScheduler(
		s, s, spy.Fn(), emitter, workerID, nil,
		schedule.WithTickInterval(50*time.Millisecond),
		schedule.WithLeaderTTL(10*time.Second),
	)

	if startErr := sched.Start(ctx); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	time.Sleep(300 * time.Millisecond)

	if stopErr := sched.Stop(ctx); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	if spy.Count() != 0 {
		t.Errorf("expected 0 fires with pre-locked schedule, got %d", spy.Count())
	}
}

func TestParseSpec(t *testing.T) {
	// Descriptor format.
	parsed, err := schedule.ParseSpec("@every 30s")
	if err != nil {
		t.Fatalf("ParseSpec(@every 30s): %v", err)
	}
	now := time.Now().UTC()
	next := parsed.Next(now)
	if !next.After(now) {
		t.Errorf("Next(%v) = %v, expected future time", now, next)
	}

	// Standard 5-field expression.
	parsed2, err := schedule.ParseSpec("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseSpec(*/5 * * * *): %v", err)
	}
	next2 := parsed2.Next(now)
	if !next2.After(now) {
		t.Errorf("Next(%v) = %v, expected future time", now, next2)
	}

	// Invalid expression.
	if _, err = schedule.ParseSpec("not-a-cron"); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}
