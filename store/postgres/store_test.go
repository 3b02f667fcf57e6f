//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/schedule"
	"github.com/xraph/replay/signal"
	"github.com/xraph/replay/store/postgres"
	"github.com/xraph/replay/timer"
	"github.com/xraph/replay/workflow"
)

// setupStore starts a Postgres container and returns a migrated Store.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("replay_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s, err := postgres.New(ctx, connStr, postgres.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	return s
}

// ── Lifecycle ───────────────────────────────────────────────────────

func TestStore_Ping(t *testing.T) {
	s := setupStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestStore_MigrateIdempotent(t *testing.T) {
	s := setupStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

// ── Runs ────────────────────────────────────────────────────────────

func newRun(name string) *workflow.Run {
	return &workflow.Run{
		Entity:      replay.NewEntity(),
		ID:          id.NewRunID(),
		ExecutionID: id.NewExecutionID(),
		Name:        name,
		Version:     1,
		State:       workflow.RunStateRunning,
		TaskQueue:   "default",
		StartedAt:   time.Now().UTC(),
	}
}

func TestRunLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	run := newRun("billing")
	run.Input = []byte(`{"customer":"c-1"}`)
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.CreateRun(ctx, run); !errors.Is(err, replay.ErrDuplicateRun) {
		t.Fatalf("expected ErrDuplicateRun, got %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Name != "billing" {
		t.Fatalf("Name = %q, want billing", got.Name)
	}
	if string(got.Input) != `{"customer":"c-1"}` {
		t.Fatalf("Input = %s", got.Input)
	}

	run.State = workflow.RunStateCompleted
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Output = []byte(`"done"`)
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	got, _ = s.GetRun(ctx, run.ID)
	if got.State != workflow.RunStateCompleted || got.CompletedAt == nil {
		t.Fatalf("update not persisted: %+v", got)
	}

	if err := s.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, run.ID); !errors.Is(err, replay.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunLineage(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	first := newRun("subscribe")
	first.StartedAt = time.Now().UTC().Add(-time.Hour)
	if err := s.CreateRun(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := newRun("subscribe")
	second.ExecutionID = first.ExecutionID
	second.ContinuedFromRunID = first.ID

	// Only one open run per execution: the successor is rejected until
	// the predecessor is closed.
	var already *replay.AlreadyStartedError
	if err := s.CreateRun(ctx, second); !errors.As(err, &already) {
		t.Fatalf("expected AlreadyStartedError, got %v", err)
	}

	first.State = workflow.RunStateContinuedAsNew
	if err := s.UpdateRun(ctx, first); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if err := s.CreateRun(ctx, second); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestRun(ctx, first.ExecutionID)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != second.ID {
		t.Fatalf("LatestRun = %s, want %s", latest.ID, second.ID)
	}

	chain, err := s.RunsForExecution(ctx, first.ExecutionID)
	if err != nil {
		t.Fatalf("RunsForExecution: %v", err)
	}
	if len(chain) != 2 || chain[0].ID != first.ID || chain[1].ID != second.ID {
		t.Fatalf("lineage out of order: %v", chain)
	}

	if _, err := s.LatestRun(ctx, id.NewExecutionID()); !errors.Is(err, replay.ErrExecutionNotFound) {
		t.Fatalf("expected ErrExecutionNotFound, got %v", err)
	}
}

func TestListRunsFilters(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	running := newRun("order")
	completed := newRun("order")
	completed.State = workflow.RunStateCompleted
	other := newRun("refund")

	for _, r := range []*workflow.Run{running, completed, other} {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	byState, err := s.ListRuns(ctx, workflow.ListOpts{State: workflow.RunStateRunning})
	if err != nil {
		t.Fatal(err)
	}
	if len(byState) != 2 {
		t.Fatalf("running runs = %d, want 2", len(byState))
	}

	byName, err := s.ListRuns(ctx, workflow.ListOpts{Name: "refund"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byName) != 1 || byName[0].Name != "refund" {
		t.Fatalf("name filter failed: %v", byName)
	}

	open, err := s.ListOpenRuns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 2 {
		t.Fatalf("open runs = %d, want 2", len(open))
	}
}

// ── History ─────────────────────────────────────────────────────────

func TestAppendEventsAssignsSequence(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	runID := id.NewRunID()
	execID := id.NewExecutionID()

	ev1, _ := history.New(runID, execID, history.EventExecutionStarted, "order", nil)
	ev2, _ := history.New(runID, execID, history.EventActivityScheduled, "charge", nil)

	if err := s.AppendEvents(ctx, runID, 1, []*history.Event{ev1, ev2}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if ev1.Seq != 1 || ev2.Seq != 2 {
		t.Fatalf("assigned seqs %d, %d; want 1, 2", ev1.Seq, ev2.Seq)
	}

	latest, err := s.LatestSeq(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if latest != 2 {
		t.Fatalf("LatestSeq = %d, want 2", latest)
	}

	// Stale cursor is rejected.
	ev3, _ := history.New(runID, execID, history.EventTimerStarted, "", nil)
	if err := s.AppendEvents(ctx, runID, 2, []*history.Event{ev3}); !errors.Is(err, replay.ErrHistoryConflict) {
		t.Fatalf("expected ErrHistoryConflict, got %v", err)
	}

	tail, err := s.ListEvents(ctx, runID, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 1 || tail[0].Seq != 2 {
		t.Fatalf("ListEvents afterSeq=1 returned %v", tail)
	}

	if err := s.DeleteHistory(ctx, runID); err != nil {
		t.Fatalf("DeleteHistory: %v", err)
	}
	latest, _ = s.LatestSeq(ctx, runID)
	if latest != 0 {
		t.Fatalf("LatestSeq after delete = %d, want 0", latest)
	}
}

// ── Tasks ───────────────────────────────────────────────────────────

func newTask(queue string) *activity.Task {
	return &activity.Task{
		Entity:       replay.NewEntity(),
		ID:           id.NewActivityID(),
		RunID:        id.NewRunID(),
		ExecutionID:  id.NewExecutionID(),
		Name:         "charge_card",
		TaskQueue:    queue,
		State:        activity.StateScheduled,
		ScheduledSeq: 2,
		RunAt:        time.Now().UTC().Add(-time.Second),
	}
}

func TestDequeueTasksLeasesDueTasks(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	workerID := id.NewWorkerID()

	due := newTask("payments")
	future := newTask("payments")
	future.RunAt = time.Now().UTC().Add(time.Hour)
	offQueue := newTask("emails")

	for _, task := range []*activity.Task{due, future, offQueue} {
		if err := s.ScheduleTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	leased, err := s.DequeueTasks(ctx, []string{"payments"}, workerID, 10)
	if err != nil {
		t.Fatalf("DequeueTasks: %v", err)
	}
	if len(leased) != 1 {
		t.Fatalf("leased %d tasks, want 1", len(leased))
	}
	got := leased[0]
	if got.ID != due.ID {
		t.Fatalf("leased wrong task %s", got.ID)
	}
	if got.State != activity.StateRunning || got.Attempt != 1 {
		t.Fatalf("lease did not transition task: state=%s attempt=%d", got.State, got.Attempt)
	}
	if got.WorkerID != workerID || got.StartedAt == nil {
		t.Fatal("lease did not stamp worker and start time")
	}

	// Leased task no longer dequeues.
	again, err := s.DequeueTasks(ctx, []string{"payments"}, workerID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("re-leased %d tasks", len(again))
	}
}

func TestScheduleTaskDuplicate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	task := newTask("default")
	if err := s.ScheduleTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	if err := s.ScheduleTask(ctx, task); !errors.Is(err, replay.ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestReapStaleTasks(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	stale := newTask("default")
	stale.State = activity.StateRunning
	old := time.Now().UTC().Add(-10 * time.Minute)
	stale.StartedAt = &old
	stale.HeartbeatAt = &old

	fresh := newTask("default")
	fresh.State = activity.StateRunning
	now := time.Now().UTC()
	fresh.StartedAt = &now
	fresh.HeartbeatAt = &now

	for _, task := range []*activity.Task{stale, fresh} {
		if err := s.ScheduleTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	reaped, err := s.ReapStaleTasks(ctx, time.Minute)
	if err != nil {
		t.Fatalf("ReapStaleTasks: %v", err)
	}
	if len(reaped) != 1 || reaped[0].ID != stale.ID {
		t.Fatalf("reaped %v, want only the stale task", reaped)
	}
}

func TestCancelTasksForRun(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	runID := id.NewRunID()
	open := newTask("default")
	open.RunID = runID
	done := newTask("default")
	done.RunID = runID
	done.State = activity.StateCompleted
	unrelated := newTask("default")

	for _, task := range []*activity.Task{open, done, unrelated} {
		if err := s.ScheduleTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	affected, err := s.CancelTasksForRun(ctx, runID)
	if err != nil {
		t.Fatalf("CancelTasksForRun: %v", err)
	}
	if len(affected) != 1 || affected[0].ID != open.ID {
		t.Fatalf("affected %v, want only the open task", affected)
	}

	got, _ := s.GetTask(ctx, open.ID)
	if got.State != activity.StateCancelled {
		t.Fatalf("State = %q, want cancelled", got.State)
	}
}

func TestHeartbeatTask(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	workerID := id.NewWorkerID()

	task := newTask("default")
	if err := s.ScheduleTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	leased, err := s.DequeueTasks(ctx, []string{"default"}, workerID, 1)
	if err != nil || len(leased) != 1 {
		t.Fatalf("dequeue: %v, %d", err, len(leased))
	}

	if err := s.HeartbeatTask(ctx, task.ID, workerID); err != nil {
		t.Fatalf("HeartbeatTask: %v", err)
	}
	got, _ := s.GetTask(ctx, task.ID)
	if got.HeartbeatAt == nil {
		t.Fatal("HeartbeatAt not stamped")
	}
}

func TestCountTasks(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	a := newTask("payments")
	b := newTask("payments")
	b.State = activity.StateFailed
	c := newTask("emails")

	for _, task := range []*activity.Task{a, b, c} {
		if err := s.ScheduleTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CountTasks(ctx, activity.CountOpts{TaskQueue: "payments"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("payments count = %d, want 2", n)
	}

	n, err = s.CountTasks(ctx, activity.CountOpts{State: activity.StateFailed})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("failed count = %d, want 1", n)
	}
}

// ── Timers ──────────────────────────────────────────────────────────

func TestTimerLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	runID := id.NewRunID()

	past := &timer.Timer{
		Entity: replay.NewEntity(),
		ID:     id.NewTimerID(),
		RunID:  runID,
		State:  timer.StatePending,
		FireAt: time.Now().UTC().Add(-time.Minute),
	}
	future := &timer.Timer{
		Entity: replay.NewEntity(),
		ID:     id.NewTimerID(),
		RunID:  runID,
		State:  timer.StatePending,
		FireAt: time.Now().UTC().Add(time.Hour),
	}
	for _, tm := range []*timer.Timer{past, future} {
		if err := s.CreateTimer(ctx, tm); err != nil {
			t.Fatal(err)
		}
	}

	due, err := s.DueTimers(ctx, time.Now().UTC(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != past.ID {
		t.Fatalf("due = %v, want only the past timer", due)
	}

	fired, err := s.CompleteTimer(ctx, past.ID)
	if err != nil || !fired {
		t.Fatalf("CompleteTimer = %v, %v; want true, nil", fired, err)
	}
	fired, err = s.CompleteTimer(ctx, past.ID)
	if err != nil || fired {
		t.Fatalf("second CompleteTimer = %v, %v; want false, nil", fired, err)
	}

	if err := s.CancelTimersForRun(ctx, runID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetTimer(ctx, future.ID)
	if got.State != timer.StateCancelled {
		t.Fatalf("State = %q, want cancelled", got.State)
	}

	if err := s.DeleteTimersForRun(ctx, runID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTimer(ctx, past.ID); !errors.Is(err, replay.ErrTimerNotFound) {
		t.Fatalf("expected ErrTimerNotFound, got %v", err)
	}
}

// ── Signals ─────────────────────────────────────────────────────────

func TestSignalBufferFIFO(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	runID := id.NewRunID()

	for i, payload := range []string{`"first"`, `"second"`} {
		sig := &signal.Signal{
			ID:      id.NewSignalID(),
			RunID:   runID,
			Name:    "approval",
			Payload: []byte(payload),
			Seq:     int64(i + 1),
		}
		if err := s.BufferSignal(ctx, sig); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.NextSignal(ctx, runID, "approval")
	if err != nil {
		t.Fatalf("NextSignal: %v", err)
	}
	if string(got.Payload) != `"first"` {
		t.Fatalf("payload = %s, want first", got.Payload)
	}

	pending, err := s.PendingSignals(ctx, runID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || string(pending[0].Payload) != `"second"` {
		t.Fatalf("pending = %v", pending)
	}

	if _, err := s.NextSignal(ctx, runID, "other"); !errors.Is(err, replay.ErrSignalNotFound) {
		t.Fatalf("expected ErrSignalNotFound, got %v", err)
	}
}

func TestTransferSignals(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	from := id.NewRunID()
	to := id.NewRunID()

	consumed := &signal.Signal{ID: id.NewSignalID(), RunID: from, Name: "a", Seq: 1, Consumed: true}
	buffered := &signal.Signal{ID: id.NewSignalID(), RunID: from, Name: "b", Seq: 2}
	for _, sig := range []*signal.Signal{consumed, buffered} {
		if err := s.BufferSignal(ctx, sig); err != nil {
			t.Fatal(err)
		}
	}

	moved, err := s.TransferSignals(ctx, from, to)
	if err != nil {
		t.Fatalf("TransferSignals: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}

	pending, err := s.PendingSignals(ctx, to, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Name != "b" {
		t.Fatalf("successor pending = %v", pending)
	}
}

// ── Schedules ───────────────────────────────────────────────────────

func newSchedule(name string) *schedule.Schedule {
	return &schedule.Schedule{
		Entity:    replay.NewEntity(),
		ID:        id.NewScheduleID(),
		Name:      name,
		Spec:      "@every 1m",
		Workflow:  "cleanup",
		TaskQueue: "default",
		Enabled:   true,
	}
}

func TestScheduleCRUDAndLock(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	sched := newSchedule("nightly")
	if err := s.CreateSchedule(ctx, sched); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	dup := newSchedule("nightly")
	if err := s.CreateSchedule(ctx, dup); !errors.Is(err, replay.ErrDuplicateSchedule) {
		t.Fatalf("expected ErrDuplicateSchedule, got %v", err)
	}

	w1 := id.NewWorkerID()
	w2 := id.NewWorkerID()

	ok, err := s.AcquireScheduleLock(ctx, sched.ID, w1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireScheduleLock = %v, %v", ok, err)
	}
	ok, err = s.AcquireScheduleLock(ctx, sched.ID, w2, time.Minute)
	if err != nil || ok {
		t.Fatalf("contended acquire = %v, %v; want false", ok, err)
	}
	ok, err = s.AcquireScheduleLock(ctx, sched.ID, w1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("re-acquire = %v, %v; want true", ok, err)
	}

	if err := s.ReleaseScheduleLock(ctx, sched.ID, w1); err != nil {
		t.Fatal(err)
	}
	ok, err = s.AcquireScheduleLock(ctx, sched.ID, w2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release = %v, %v; want true", ok, err)
	}

	firedAt := time.Now().UTC().Truncate(time.Second)
	if err := s.UpdateScheduleLastFired(ctx, sched.ID, firedAt); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetSchedule(ctx, sched.ID)
	if got.LastFiredAt == nil || !got.LastFiredAt.Equal(firedAt) {
		t.Fatalf("LastFiredAt = %v, want %v", got.LastFiredAt, firedAt)
	}

	if err := s.DeleteSchedule(ctx, sched.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSchedule(ctx, sched.ID); !errors.Is(err, replay.ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

// ── DLQ ─────────────────────────────────────────────────────────────

func newDLQEntry(queue string, failedAt time.Time) *dlq.Entry {
	return &dlq.Entry{
		ID:          id.NewDLQID(),
		TaskID:      id.NewActivityID(),
		RunID:       id.NewRunID(),
		ExecutionID: id.NewExecutionID(),
		Activity:    "charge_card",
		TaskQueue:   queue,
		Error:       "gateway unreachable",
		Attempts:    5,
		MaxAttempts: 5,
		FailedAt:    failedAt,
		CreatedAt:   failedAt,
	}
}

func TestDLQLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	oldEntry := newDLQEntry("payments", now.Add(-48*time.Hour))
	recent := newDLQEntry("payments", now)
	other := newDLQEntry("emails", now)

	for _, e := range []*dlq.Entry{oldEntry, recent, other} {
		if err := s.PushDLQ(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CountDLQ(ctx)
	if err != nil || n != 3 {
		t.Fatalf("CountDLQ = %d, %v; want 3", n, err)
	}

	byQueue, err := s.ListDLQ(ctx, dlq.ListOpts{TaskQueue: "payments"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byQueue) != 2 || byQueue[0].ID != oldEntry.ID {
		t.Fatalf("queue filter or FailedAt ordering wrong: %v", byQueue)
	}

	if err := s.RedriveDLQ(ctx, recent.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetDLQ(ctx, recent.ID)
	if got.RedrivenAt == nil {
		t.Fatal("RedrivenAt not stamped")
	}

	purged, err := s.PurgeDLQ(ctx, now.Add(-24*time.Hour))
	if err != nil || purged != 1 {
		t.Fatalf("PurgeDLQ = %d, %v; want 1", purged, err)
	}
	if _, err := s.GetDLQ(ctx, oldEntry.ID); !errors.Is(err, replay.ErrDLQNotFound) {
		t.Fatalf("expected ErrDLQNotFound, got %v", err)
	}
}

// ── Cluster ─────────────────────────────────────────────────────────

func TestClusterLeadership(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	w1 := &cluster.Worker{ID: id.NewWorkerID(), Hostname: "a", Queues: []string{"default"}, LastSeen: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	w2 := &cluster.Worker{ID: id.NewWorkerID(), Hostname: "b", Queues: []string{"default"}, LastSeen: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	for _, w := range []*cluster.Worker{w1, w2} {
		if err := s.RegisterWorker(ctx, w); err != nil {
			t.Fatal(err)
		}
	}

	ok, err := s.AcquireLeadership(ctx, w1.ID, time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLeadership = %v, %v", ok, err)
	}
	ok, err = s.AcquireLeadership(ctx, w2.ID, time.Minute)
	if err != nil || ok {
		t.Fatalf("contended leadership = %v, %v; want false", ok, err)
	}
	ok, err = s.RenewLeadership(ctx, w1.ID, time.Minute)
	if err != nil || !ok {
		t.Fatalf("RenewLeadership = %v, %v; want true", ok, err)
	}
	ok, err = s.RenewLeadership(ctx, w2.ID, time.Minute)
	if err != nil || ok {
		t.Fatalf("non-leader renew = %v, %v; want false", ok, err)
	}

	leader, err := s.GetLeader(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if leader == nil || leader.ID != w1.ID {
		t.Fatalf("leader = %v, want %s", leader, w1.ID)
	}
}

func TestWorkerHeartbeatAndReap(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	dead := &cluster.Worker{ID: id.NewWorkerID(), Hostname: "dead", Queues: []string{"default"}, LastSeen: time.Now().UTC().Add(-time.Hour), CreatedAt: time.Now().UTC()}
	alive := &cluster.Worker{ID: id.NewWorkerID(), Hostname: "alive", Queues: []string{"default"}, LastSeen: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	for _, w := range []*cluster.Worker{dead, alive} {
		if err := s.RegisterWorker(ctx, w); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.HeartbeatWorker(ctx, alive.ID); err != nil {
		t.Fatalf("HeartbeatWorker: %v", err)
	}

	reaped, err := s.ReapDeadWorkers(ctx, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(reaped) != 1 || reaped[0].ID != dead.ID {
		t.Fatalf("reaped %v, want only the dead worker", reaped)
	}

	if err := s.DeregisterWorker(ctx, dead.ID); err != nil {
		t.Fatal(err)
	}
	workers, err := s.ListWorkers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(workers) != 1 || workers[0].ID != alive.ID {
		t.Fatalf("workers = %v, want only the live one", workers)
	}
}
