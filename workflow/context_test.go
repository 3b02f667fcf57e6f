package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// fakeScheduler journals commands into an in-memory log, standing in for
// the engine. Tests deliver completions back through Context.Deliver.
type fakeScheduler struct {
	mu      sync.Mutex
	nextSeq int64
	events  []*history.Event

	activities []scheduledActivity
	timers     []time.Duration
	markers    []string
	children   []string
	taskSeals  []int
}

type scheduledActivity struct {
	seq   int64
	name  string
	input []byte
}

func newFakeScheduler(afterSeq int64) *fakeScheduler {
	return &fakeScheduler{nextSeq: afterSeq}
}

func (s *fakeScheduler) append(run *workflow.Run, typ history.EventType, name string, attrs any) (*history.Event, error) {
	ev, err := history.New(run.ID, run.ExecutionID, typ, name, attrs)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextSeq++
	ev.Seq = s.nextSeq
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return ev, nil
}

func (s *fakeScheduler) ScheduleActivity(_ context.Context, run *workflow.Run, name string, input []byte) (*history.Event, error) {
	ev, err := s.append(run, history.EventActivityScheduled, name, history.ActivityScheduledAttrs{
		ActivityID: id.NewActivityID(),
		Activity:   name,
		Input:      input,
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.activities = append(s.activities, scheduledActivity{seq: ev.Seq, name: name, input: input})
	s.mu.Unlock()
	return ev, nil
}

func (s *fakeScheduler) StartTimer(_ context.Context, run *workflow.Run, delay time.Duration) (*history.Event, error) {
	ev, err := s.append(run, history.EventTimerStarted, "", history.TimerStartedAttrs{
		TimerID: id.NewTimerID(),
		Delay:   delay,
		FireAt:  time.Now().UTC().Add(delay),
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.timers = append(s.timers, delay)
	s.mu.Unlock()
	return ev, nil
}

func (s *fakeScheduler) RecordMarker(_ context.Context, run *workflow.Run, name string, value []byte) (*history.Event, error) {
	ev, err := s.append(run, history.EventMarkerRecorded, name, history.MarkerRecordedAttrs{Value: value})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.markers = append(s.markers, name)
	s.mu.Unlock()
	return ev, nil
}

func (s *fakeScheduler) StartChildExecution(_ context.Context, run *workflow.Run, name string, input []byte) (*history.Event, error) {
	ev, err := s.append(run, history.EventChildExecutionStarted, name, history.ChildExecutionStartedAttrs{
		ChildExecutionID: id.NewExecutionID(),
		ChildRunID:       id.NewRunID(),
		Workflow:         name,
		Input:            input,
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.children = append(s.children, name)
	s.mu.Unlock()
	return ev, nil
}

func (s *fakeScheduler) RecordWorkflowTask(_ context.Context, run *workflow.Run, commands int) error {
	if _, err := s.append(run, history.EventWorkflowTaskCompleted, "", history.WorkflowTaskCompletedAttrs{Commands: commands}); err != nil {
		return err
	}
	s.mu.Lock()
	s.taskSeals = append(s.taskSeals, commands)
	s.mu.Unlock()
	return nil
}

func (s *fakeScheduler) activityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activities)
}

func (s *fakeScheduler) activityAt(i int) scheduledActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activities[i]
}

func (s *fakeScheduler) timerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// completeActivity journals ActivityCompleted for the task scheduled at
// scheduledSeq and delivers it, the way the engine does when a worker
// reports success.
func (s *fakeScheduler) completeActivity(t *testing.T, c *workflow.Context, run *workflow.Run, scheduledSeq int64, result any) {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	ev, err := s.append(run, history.EventActivityCompleted, "", history.ActivityCompletedAttrs{
		ScheduledSeq: scheduledSeq,
		Result:       data,
		Attempts:     1,
	})
	if err != nil {
		t.Fatalf("append completion: %v", err)
	}
	if err := c.Deliver(ev, scheduledSeq); err != nil {
		t.Fatalf("deliver completion: %v", err)
	}
}

func newTestRun(name string) *workflow.Run {
	return &workflow.Run{
		ID:          id.NewRunID(),
		ExecutionID: id.NewExecutionID(),
		Name:        name,
		Version:     1,
		State:       workflow.RunStateRunning,
		StartedAt:   time.Now().UTC(),
	}
}

// mustEvent builds a journaled history event with an explicit Seq.
func mustEvent(t *testing.T, run *workflow.Run, seq int64, typ history.EventType, name string, attrs any) *history.Event {
	t.Helper()
	ev, err := history.New(run.ID, run.ExecutionID, typ, name, attrs)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	ev.Seq = seq
	return ev
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func waitOutcome(t *testing.T, done <-chan workflow.Outcome) workflow.Outcome {
	t.Helper()
	select {
	case o := <-done:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("workflow did not finish within 2s")
		return workflow.Outcome{}
	}
}

func drive(t *testing.T, run *workflow.Run, sched workflow.Scheduler, events []*history.Event, handler workflow.HandlerFunc) (*workflow.Context, <-chan workflow.Outcome) {
	t.Helper()
	c, err := workflow.NewContext(context.Background(), run, sched, nil, events)
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	done := make(chan workflow.Outcome, 1)
	workflow.Drive(c, handler, run.Input, func(o workflow.Outcome) { done <- o })
	return c, done
}

func TestContext_LiveActivityRoundTrip(t *testing.T) {
	run := newTestRun("charge")
	sched := newFakeScheduler(1)

	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		var amount int
		if err := wf.ExecuteActivity("charge_card", map[string]int{"cents": 500}, &amount); err != nil {
			return nil, err
		}
		return json.Marshal(amount)
	}

	c, done := drive(t, run, sched, nil, handler)

	waitUntil(t, func() bool { return sched.activityCount() == 1 })
	act := sched.activityAt(0)
	if act.name != "charge_card" {
		t.Fatalf("scheduled activity = %q, want %q", act.name, "charge_card")
	}

	sched.completeActivity(t, c, run, act.seq, 500)

	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if string(o.Result) != "500" {
		t.Errorf("result = %s, want 500", o.Result)
	}

	// The command burst before the park was sealed.
	sched.mu.Lock()
	seals := append([]int(nil), sched.taskSeals...)
	sched.mu.Unlock()
	if len(seals) == 0 || seals[0] != 1 {
		t.Errorf("task seals = %v, want first seal of 1 command", seals)
	}
}

func TestContext_ReplayReturnsRecordedResults(t *testing.T) {
	run := newTestRun("charge")
	events := []*history.Event{
		mustEvent(t, run, 1, history.EventExecutionStarted, "charge", history.ExecutionStartedAttrs{Workflow: "charge"}),
		mustEvent(t, run, 2, history.EventActivityScheduled, "charge_card", history.ActivityScheduledAttrs{Activity: "charge_card"}),
		mustEvent(t, run, 3, history.EventWorkflowTaskCompleted, "", history.WorkflowTaskCompletedAttrs{Commands: 1}),
		mustEvent(t, run, 4, history.EventActivityCompleted, "", history.ActivityCompletedAttrs{ScheduledSeq: 2, Result: json.RawMessage(`42`), Attempts: 1}),
	}

	sched := newFakeScheduler(4)
	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		if !wf.Replaying() {
			t.Error("expected Replaying() before the journal is consumed")
		}
		var n int
		if err := wf.ExecuteActivity("charge_card", nil, &n); err != nil {
			return nil, err
		}
		return json.Marshal(n)
	}

	_, done := drive(t, run, sched, events, handler)
	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if string(o.Result) != "42" {
		t.Errorf("result = %s, want 42", o.Result)
	}
	if sched.activityCount() != 0 {
		t.Errorf("replay scheduled %d activities, want 0", sched.activityCount())
	}
}

func TestContext_TimerSkippedOnReplay(t *testing.T) {
	run := newTestRun("wait")
	events := []*history.Event{
		mustEvent(t, run, 1, history.EventTimerStarted, "", history.TimerStartedAttrs{Delay: 24 * time.Hour, FireAt: time.Now().Add(24 * time.Hour)}),
		mustEvent(t, run, 2, history.EventTimerFired, "", history.TimerFiredAttrs{ScheduledSeq: 1}),
	}

	sched := newFakeScheduler(2)
	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		wf.Sleep(24 * time.Hour)
		return json.Marshal("awake")
	}

	start := time.Now()
	_, done := drive(t, run, sched, events, handler)
	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("replay of a fired 24h timer took %v, want near-instant", elapsed)
	}
	if sched.timerCount() != 0 {
		t.Errorf("replay created %d timers, want 0", sched.timerCount())
	}
}

func TestContext_BufferedSignalsConsumedFIFO(t *testing.T) {
	run := newTestRun("approvals")
	events := []*history.Event{
		mustEvent(t, run, 1, history.EventSignalReceived, "approve", history.SignalReceivedAttrs{Payload: json.RawMessage(`"first"`)}),
		mustEvent(t, run, 2, history.EventSignalReceived, "approve", history.SignalReceivedAttrs{Payload: json.RawMessage(`"second"`)}),
	}

	sched := newFakeScheduler(2)
	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		var a, b string
		if err := wf.WaitSignal("approve", &a); err != nil {
			return nil, err
		}
		if err := wf.WaitSignal("approve", &b); err != nil {
			return nil, err
		}
		return json.Marshal([]string{a, b})
	}

	_, done := drive(t, run, sched, events, handler)
	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if string(o.Result) != `["first","second"]` {
		t.Errorf("signals consumed as %s, want delivery order", o.Result)
	}
}

func TestContext_LiveSignalResolvesWaiter(t *testing.T) {
	run := newTestRun("approvals")
	sched := newFakeScheduler(0)

	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		var decision string
		if err := wf.WaitSignal("approve", &decision); err != nil {
			return nil, err
		}
		return json.Marshal(decision)
	}

	c, done := drive(t, run, sched, nil, handler)

	// Delivery works whether the goroutine reached the wait yet or not:
	// an early signal is buffered and consumed by the wait.
	time.Sleep(5 * time.Millisecond)
	c.DeliverSignal(1, "approve", json.RawMessage(`"granted"`))

	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if string(o.Result) != `"granted"` {
		t.Errorf("result = %s, want %q", o.Result, `"granted"`)
	}
}

func TestContext_WaitAnyPicksEarliestResolution(t *testing.T) {
	run := newTestRun("race")
	sched := newFakeScheduler(0)

	var winner int
	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		a := wf.ExecuteActivityAsync("slow", nil)
		b := wf.ExecuteActivityAsync("fast", nil)
		winner = wf.WaitAny(a, b)
		return nil, nil
	}

	c, done := drive(t, run, sched, nil, handler)
	waitUntil(t, func() bool { return sched.activityCount() == 2 })

	// The second-scheduled activity completes first: its resolution gets
	// the lower history seq, so WaitAny must pick it, live and on every
	// replay after.
	sched.completeActivity(t, c, run, sched.activityAt(1).seq, "fast done")

	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if winner != 1 {
		t.Errorf("WaitAny returned %d, want 1 (first completion in history)", winner)
	}
}

func TestContext_WaitAllCollectsEveryResult(t *testing.T) {
	run := newTestRun("fanout")
	sched := newFakeScheduler(0)

	var aOut, bOut string
	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		a := wf.ExecuteActivityAsync("step_a", nil)
		b := wf.ExecuteActivityAsync("step_b", nil)
		if err := wf.WaitAll(a, b); err != nil {
			return nil, err
		}
		if err := a.Get(&aOut); err != nil {
			return nil, err
		}
		if err := b.Get(&bOut); err != nil {
			return nil, err
		}
		return nil, nil
	}

	c, done := drive(t, run, sched, nil, handler)
	waitUntil(t, func() bool { return sched.activityCount() == 2 })
	sched.completeActivity(t, c, run, sched.activityAt(1).seq, "b")
	sched.completeActivity(t, c, run, sched.activityAt(0).seq, "a")

	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if aOut != "a" || bOut != "b" {
		t.Errorf("results = (%q, %q), want (a, b)", aOut, bOut)
	}
}

// A signal waiter created once and raced against successive timers must
// still resolve when the signal lands in a later round. Escalation loops
// rely on this: a fresh waiter per round would strand the previous one
// and swallow the signal.
func TestContext_SignalWaiterSurvivesTimerRounds(t *testing.T) {
	run := newTestRun("escalation")
	sched := newFakeScheduler(0)

	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		paid := wf.WaitSignalAsync("payment-received")
		for _, delay := range []time.Duration{time.Hour, 2 * time.Hour} {
			timer := wf.SleepAsync(delay)
			if wf.WaitAny(timer, paid) == 1 {
				return json.Marshal("recovered")
			}
		}
		return json.Marshal("written_off")
	}

	c, done := drive(t, run, sched, nil, handler)
	waitUntil(t, func() bool { return sched.timerCount() == 1 })

	timerSeq := func(i int) int64 {
		sched.mu.Lock()
		defer sched.mu.Unlock()
		var seqs []int64
		for _, ev := range sched.events {
			if ev.Type == history.EventTimerStarted {
				seqs = append(seqs, ev.Seq)
			}
		}
		return seqs[i]
	}
	fireTimer := func(scheduledSeq int64) {
		ev, err := sched.append(run, history.EventTimerFired, "", history.TimerFiredAttrs{ScheduledSeq: scheduledSeq})
		if err != nil {
			t.Fatalf("append fire: %v", err)
		}
		if err := c.Deliver(ev, scheduledSeq); err != nil {
			t.Fatalf("deliver fire: %v", err)
		}
	}

	// Round one escalates on the timer.
	fireTimer(timerSeq(0))
	waitUntil(t, func() bool { return sched.timerCount() == 2 })

	// The signal lands mid round two and resolves the pre-loop waiter.
	c.DeliverSignal(timerSeq(1)+2, "payment-received", json.RawMessage(`"paid"`))

	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if string(o.Result) != `"recovered"` {
		t.Errorf("result = %s, want %q", o.Result, "recovered")
	}
}

func TestContext_ActivityFailureRebuilt(t *testing.T) {
	run := newTestRun("charge")
	events := []*history.Event{
		mustEvent(t, run, 1, history.EventActivityScheduled, "charge_card", history.ActivityScheduledAttrs{Activity: "charge_card"}),
		mustEvent(t, run, 2, history.EventActivityFailed, "charge_card", history.ActivityFailedAttrs{
			ScheduledSeq: 1,
			ErrorType:    "InsufficientFunds",
			Error:        "card declined",
			NonRetryable: true,
			Attempts:     1,
		}),
	}

	sched := newFakeScheduler(2)
	var gotErr error
	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		gotErr = wf.ExecuteActivity("charge_card", nil, nil)
		return nil, nil
	}

	_, done := drive(t, run, sched, events, handler)
	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}

	var actErr *workflow.ActivityError
	if !errors.As(gotErr, &actErr) {
		t.Fatalf("error = %v, want *ActivityError", gotErr)
	}
	if actErr.Activity != "charge_card" || actErr.Attempts != 1 {
		t.Errorf("ActivityError = %+v", actErr)
	}
	var appErr *replay.ApplicationError
	if !errors.As(gotErr, &appErr) {
		t.Fatalf("error does not unwrap to *ApplicationError: %v", gotErr)
	}
	if appErr.Type != "InsufficientFunds" || !appErr.NonRetryable {
		t.Errorf("rebuilt failure = %+v", appErr)
	}
	if !replay.IsNonRetryable(gotErr) {
		t.Error("IsNonRetryable = false, want true")
	}
}

func TestContext_SideEffectReplayed(t *testing.T) {
	run := newTestRun("roll")
	events := []*history.Event{
		mustEvent(t, run, 1, history.EventMarkerRecorded, "side_effect", history.MarkerRecordedAttrs{Value: json.RawMessage(`42`)}),
	}

	sched := newFakeScheduler(1)
	called := false
	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		var n int
		if err := wf.SideEffect(func() any {
			called = true
			return 99
		}, &n); err != nil {
			return nil, err
		}
		return json.Marshal(n)
	}

	_, done := drive(t, run, sched, events, handler)
	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if called {
		t.Error("side-effect function ran during replay")
	}
	if string(o.Result) != "42" {
		t.Errorf("result = %s, want journaled 42", o.Result)
	}
}

func TestContext_NowJournaledLive(t *testing.T) {
	run := newTestRun("clock")
	sched := newFakeScheduler(0)

	var observed time.Time
	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		observed = wf.Now()
		return nil, nil
	}

	_, done := drive(t, run, sched, nil, handler)
	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
	if observed.IsZero() {
		t.Error("Now returned zero time")
	}
	sched.mu.Lock()
	markers := append([]string(nil), sched.markers...)
	sched.mu.Unlock()
	if len(markers) != 1 || markers[0] != "now" {
		t.Errorf("markers = %v, want single %q marker", markers, "now")
	}
}

func TestContext_CancelUnwindsAtSuspension(t *testing.T) {
	run := newTestRun("long")
	sched := newFakeScheduler(0)

	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		return nil, wf.WaitSignal("never", nil)
	}

	c, done := drive(t, run, sched, nil, handler)
	time.Sleep(10 * time.Millisecond)
	c.Cancel("operator request")

	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", o.Kind)
	}
	if o.Err == nil || o.Err.Error() != "operator request" {
		t.Errorf("cancel reason = %v, want operator request", o.Err)
	}
}

func TestContext_ContinueAsNew(t *testing.T) {
	run := newTestRun("dunning")
	sched := newFakeScheduler(0)

	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		wf.ContinueAsNew(map[string]int{"cycle": 2})
		return nil, errors.New("unreachable")
	}

	_, done := drive(t, run, sched, nil, handler)
	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeContinuedAsNew {
		t.Fatalf("outcome = %v, want continued-as-new", o.Kind)
	}
	var input map[string]int
	if err := json.Unmarshal(o.NewInput, &input); err != nil {
		t.Fatalf("new input is not valid JSON: %v", err)
	}
	if input["cycle"] != 2 {
		t.Errorf("new input = %v, want cycle 2", input)
	}
}

func TestContext_QueryAgainstSuspendedRun(t *testing.T) {
	run := newTestRun("status")
	sched := newFakeScheduler(0)

	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		state := "waiting_approval"
		wf.SetQueryHandler("state", func(_ []byte) (any, error) {
			return state, nil
		})
		return nil, wf.WaitSignal("approve", nil)
	}

	c, done := drive(t, run, sched, nil, handler)

	waitUntil(t, func() bool {
		_, err := c.Query("state", nil)
		return err == nil
	})

	result, err := c.Query("state", nil)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result != "waiting_approval" {
		t.Errorf("query result = %v, want waiting_approval", result)
	}
	// Queries journal nothing.
	sched.mu.Lock()
	journaled := len(sched.events)
	sched.mu.Unlock()
	if journaled != 0 {
		t.Errorf("query appended %d events, want 0", journaled)
	}

	var qErr *replay.QueryFailedError
	if _, err := c.Query("unknown", nil); !errors.As(err, &qErr) {
		t.Errorf("unknown query error = %v, want *QueryFailedError", err)
	}

	c.Cancel("test done")
	waitOutcome(t, done)
}

func TestContext_PendingSignalsDiagnostic(t *testing.T) {
	run := newTestRun("inbox")
	sched := newFakeScheduler(0)

	handler := func(wf *workflow.Context, _ []byte) ([]byte, error) {
		return nil, wf.WaitSignal("wanted", nil)
	}

	c, done := drive(t, run, sched, nil, handler)
	time.Sleep(10 * time.Millisecond)

	c.DeliverSignal(1, "stray_a", nil)
	c.DeliverSignal(2, "stray_b", nil)

	pending := c.PendingSignals()
	if len(pending) != 2 || pending[0] != "stray_a" || pending[1] != "stray_b" {
		t.Errorf("pending signals = %v, want [stray_a stray_b]", pending)
	}

	c.DeliverSignal(3, "wanted", nil)
	o := waitOutcome(t, done)
	if o.Kind != workflow.OutcomeCompleted {
		t.Fatalf("outcome = %v, err = %v, want completed", o.Kind, o.Err)
	}
}
