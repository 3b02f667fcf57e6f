package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
)

// Scheduler is the engine-side contract behind live commands. Every method
// journals the command event into the run's history (assigning its Seq) and
// performs the persistent side effect: creating the activity task, the
// timer row, or the child run. Implemented by the engine; satisfied by a
// recording stub in replay-only mode.
type Scheduler interface {
	// ScheduleActivity appends ActivityScheduled and creates the task.
	ScheduleActivity(ctx context.Context, run *Run, name string, input []byte) (*history.Event, error)

	// StartTimer appends TimerStarted and creates the timer row. FireAt
	// is fixed here, at schedule time.
	StartTimer(ctx context.Context, run *Run, delay time.Duration) (*history.Event, error)

	// RecordMarker appends MarkerRecorded with the captured value.
	RecordMarker(ctx context.Context, run *Run, name string, value []byte) (*history.Event, error)

	// StartChildExecution appends ChildExecutionStarted and starts the
	// child run.
	StartChildExecution(ctx context.Context, run *Run, workflow string, input []byte) (*history.Event, error)

	// RecordWorkflowTask appends WorkflowTaskCompleted after a burst of
	// live commands, just before the run suspends.
	RecordWorkflowTask(ctx context.Context, run *Run, commands int) error
}

// inboxSignal is a buffered signal awaiting consumption, ordered by the
// Seq of its SignalReceived event.
type inboxSignal struct {
	seq     int64
	name    string
	payload []byte
}

// QueryHandler answers a query against the run's current in-memory state.
// Handlers must not issue commands or mutate workflow state.
type QueryHandler func(args []byte) (any, error)

// Context is the deterministic execution context passed to workflow
// handlers. All interaction with the world goes through it: activities,
// timers, signals, side-effect markers, child executions, continuation.
//
// A Context replays recorded history before issuing anything new: commands
// the handler re-issues are matched against the journal and their recorded
// outcomes returned without re-executing side effects. The first command
// past the end of the journal switches the run live.
type Context struct {
	ctx    context.Context
	run    *Run
	sched  Scheduler
	logger *slog.Logger

	// commands is the journaled command-event cursor, in issue order.
	commands []*history.Event
	cursor   int

	// completions maps ScheduledSeq → resolving event for every
	// journaled completion.
	completions map[int64]*history.Event

	mu   sync.Mutex
	cond *sync.Cond

	// pending maps a command's Seq → the future awaiting its completion.
	pending map[int64]*Future

	// inbox holds unconsumed signals in Seq order.
	inbox []*inboxSignal

	// signalWaiters holds unresolved signal futures per name, FIFO.
	signalWaiters map[string][]*Future

	queryHandlers map[string]QueryHandler

	cancelled    bool
	cancelReason string

	// liveCommands counts commands issued since the last recorded
	// workflow task.
	liveCommands int

	// live flips once the cursor is exhausted and the first new command
	// is journaled.
	live bool

	// suspendCh, when set, receives a non-blocking notification each time
	// the goroutine actually blocks at a suspension point. Used by the
	// replayer to detect that the journal was reproduced up to the live
	// run's park position.
	suspendCh chan<- struct{}
}

// notifySuspend registers a suspension notification channel.
func (c *Context) notifySuspend(ch chan<- struct{}) {
	c.mu.Lock()
	c.suspendCh = ch
	c.mu.Unlock()
}

// NewContext builds the execution context for one run. events is the run's
// full journaled history; passing an empty slice starts a fresh run.
// This is called by the engine and by the replayer, not by users.
func NewContext(ctx context.Context, run *Run, sched Scheduler, logger *slog.Logger, events []*history.Event) (*Context, error) {
	c := &Context{
		ctx:           ctx,
		run:           run,
		sched:         sched,
		logger:        logger,
		completions:   make(map[int64]*history.Event),
		pending:       make(map[int64]*Future),
		signalWaiters: make(map[string][]*Future),
		queryHandlers: make(map[string]QueryHandler),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.cond = sync.NewCond(&c.mu)

	for _, ev := range events {
		switch ev.Type {
		case history.EventActivityScheduled, history.EventTimerStarted,
			history.EventMarkerRecorded, history.EventChildExecutionStarted:
			c.commands = append(c.commands, ev)

		case history.EventActivityCompleted:
			var attrs history.ActivityCompletedAttrs
			if err := ev.DecodeAttrs(&attrs); err != nil {
				return nil, fmt.Errorf("workflow: decode event %d: %w", ev.Seq, err)
			}
			c.completions[attrs.ScheduledSeq] = ev

		case history.EventActivityFailed:
			var attrs history.ActivityFailedAttrs
			if err := ev.DecodeAttrs(&attrs); err != nil {
				return nil, fmt.Errorf("workflow: decode event %d: %w", ev.Seq, err)
			}
			c.completions[attrs.ScheduledSeq] = ev

		case history.EventTimerFired:
			var attrs history.TimerFiredAttrs
			if err := ev.DecodeAttrs(&attrs); err != nil {
				return nil, fmt.Errorf("workflow: decode event %d: %w", ev.Seq, err)
			}
			c.completions[attrs.ScheduledSeq] = ev

		case history.EventChildExecutionCompleted:
			var attrs history.ChildExecutionCompletedAttrs
			if err := ev.DecodeAttrs(&attrs); err != nil {
				return nil, fmt.Errorf("workflow: decode event %d: %w", ev.Seq, err)
			}
			c.completions[attrs.ScheduledSeq] = ev

		case history.EventChildExecutionFailed:
			var attrs history.ChildExecutionFailedAttrs
			if err := ev.DecodeAttrs(&attrs); err != nil {
				return nil, fmt.Errorf("workflow: decode event %d: %w", ev.Seq, err)
			}
			c.completions[attrs.ScheduledSeq] = ev

		case history.EventSignalReceived:
			var attrs history.SignalReceivedAttrs
			if err := ev.DecodeAttrs(&attrs); err != nil {
				return nil, fmt.Errorf("workflow: decode event %d: %w", ev.Seq, err)
			}
			c.inbox = append(c.inbox, &inboxSignal{seq: ev.Seq, name: ev.Name, payload: attrs.Payload})

		default:
			// Lifecycle and task events carry no replay state.
		}
	}
	return c, nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Context returns the engine's base context. Workflow code should not use
// it for I/O; it exists so loggers and tracers can propagate.
func (c *Context) Context() context.Context { return c.ctx }

// ExecutionID returns the stable execution ID, unchanged across
// continue-as-new boundaries.
func (c *Context) ExecutionID() id.ExecutionID { return c.run.ExecutionID }

// RunID returns the current run's ID.
func (c *Context) RunID() id.RunID { return c.run.ID }

// Workflow returns the workflow name.
func (c *Context) Workflow() string { return c.run.Name }

// Version returns the definition version this run is pinned to.
func (c *Context) Version() int { return c.run.Version }

// Run returns the run record.
func (c *Context) Run() *Run { return c.run }

// Logger returns a structured logger scoped to the run. During replay it
// discards records so re-executed code does not double-log.
func (c *Context) Logger() *slog.Logger {
	if c.Replaying() {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.logger.With(
		slog.String("workflow", c.run.Name),
		slog.String("run_id", c.run.ID.String()),
	)
}

// Replaying reports whether the handler is still consuming journaled
// commands rather than issuing new ones.
func (c *Context) Replaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.live && c.cursor < len(c.commands)
}

// ──────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────

// ExecuteActivity schedules an activity invocation and blocks for its
// outcome, unmarshalling the result into out (nil to discard). The error,
// if any, is an *ActivityError wrapping the final attempt's failure.
func (c *Context) ExecuteActivity(name string, input any, out any) error {
	return c.ExecuteActivityAsync(name, input).Get(out)
}

// ExecuteActivityAsync schedules an activity invocation and returns its
// future immediately. Scheduling order is journal order, so fan-out code
// must create futures in a deterministic sequence.
func (c *Context) ExecuteActivityAsync(name string, input any) *Future {
	data, err := json.Marshal(input)
	if err != nil {
		panic(&abortError{kind: abortInternal, err: fmt.Errorf("marshal input for activity %q: %w", name, err)})
	}

	if ev := c.nextCommand(history.EventActivityScheduled, name); ev != nil {
		return c.attachFuture(ev.Seq)
	}

	ev, err := c.sched.ScheduleActivity(c.ctx, c.run, name, data)
	if err != nil {
		panic(&abortError{kind: abortInternal, err: err})
	}
	c.noteLiveCommand()
	return c.attachFuture(ev.Seq)
}

// Sleep blocks the workflow for the given duration on a durable timer.
// The absolute fire time is fixed when the timer is first journaled, so a
// fired timer never re-sleeps on replay.
func (c *Context) Sleep(d time.Duration) {
	_ = c.SleepAsync(d).Get(nil)
}

// SleepAsync starts a durable timer and returns its future.
func (c *Context) SleepAsync(d time.Duration) *Future {
	if ev := c.nextCommand(history.EventTimerStarted, ""); ev != nil {
		return c.attachFuture(ev.Seq)
	}

	ev, err := c.sched.StartTimer(c.ctx, c.run, d)
	if err != nil {
		panic(&abortError{kind: abortInternal, err: err})
	}
	c.noteLiveCommand()
	return c.attachFuture(ev.Seq)
}

// WaitSignal blocks until a signal with the given name is delivered and
// unmarshals its payload into out (nil to discard). Signals buffered
// before the wait are consumed first, in delivery order.
func (c *Context) WaitSignal(name string, out any) error {
	return c.WaitSignalAsync(name).Get(out)
}

// WaitSignalAsync returns a future that resolves with the next signal of
// the given name. The signal is consumed when the future resolves, not
// when Get is called.
func (c *Context) WaitSignalAsync(name string) *Future {
	f := &Future{c: c}
	c.mu.Lock()
	defer c.mu.Unlock()

	if sig := c.popInboxLocked(name); sig != nil {
		f.resolveLocked(sig.payload, nil, sig.seq)
		return f
	}
	c.signalWaiters[name] = append(c.signalWaiters[name], f)
	return f
}

// SideEffect runs fn exactly once, journals its JSON-encoded value as a
// marker, and unmarshals it into out. On replay the journaled value is
// returned and fn is not called. Use it for non-deterministic reads such
// as random values.
func (c *Context) SideEffect(fn func() any, out any) error {
	return c.marker("side_effect", fn, out)
}

// Now returns the current time as observed by the run, journaled so
// replays observe the identical instant. Workflow code must use this
// instead of time.Now.
func (c *Context) Now() time.Time {
	var t time.Time
	if err := c.marker("now", func() any { return time.Now().UTC() }, &t); err != nil {
		panic(&abortError{kind: abortInternal, err: err})
	}
	return t
}

func (c *Context) marker(name string, fn func() any, out any) error {
	if ev := c.nextCommand(history.EventMarkerRecorded, name); ev != nil {
		var attrs history.MarkerRecordedAttrs
		if err := ev.DecodeAttrs(&attrs); err != nil {
			return err
		}
		if out != nil && len(attrs.Value) > 0 {
			return json.Unmarshal(attrs.Value, out)
		}
		return nil
	}

	value := fn()
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal marker %q: %w", name, err)
	}
	if _, err := c.sched.RecordMarker(c.ctx, c.run, name, data); err != nil {
		panic(&abortError{kind: abortInternal, err: err})
	}
	c.noteLiveCommand()
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

// ExecuteChild starts a child execution and blocks until it reaches a
// terminal state, unmarshalling its result into out (nil to discard).
// A failed or cancelled child surfaces as *ChildError.
func (c *Context) ExecuteChild(workflowName string, input any, out any) error {
	return c.ExecuteChildAsync(workflowName, input).Get(out)
}

// ExecuteChildAsync starts a child execution and returns its future.
func (c *Context) ExecuteChildAsync(workflowName string, input any) *Future {
	data, err := json.Marshal(input)
	if err != nil {
		panic(&abortError{kind: abortInternal, err: fmt.Errorf("marshal input for child %q: %w", workflowName, err)})
	}

	if ev := c.nextCommand(history.EventChildExecutionStarted, workflowName); ev != nil {
		return c.attachFuture(ev.Seq)
	}

	ev, err := c.sched.StartChildExecution(c.ctx, c.run, workflowName, data)
	if err != nil {
		panic(&abortError{kind: abortInternal, err: err})
	}
	c.noteLiveCommand()
	return c.attachFuture(ev.Seq)
}

// ContinueAsNew ends the current run and restarts the workflow with fresh
// history and the given input, under the same execution ID. It does not
// return.
func (c *Context) ContinueAsNew(input any) {
	data, err := json.Marshal(input)
	if err != nil {
		panic(&abortError{kind: abortInternal, err: fmt.Errorf("marshal continue-as-new input: %w", err)})
	}
	panic(&abortError{kind: abortContinueAsNew, input: data})
}

// WaitAny blocks until at least one of the given futures resolves and
// returns the index of the resolved future with the earliest journal
// position. Ties cannot occur: every resolution has a distinct Seq.
func (c *Context) WaitAny(futures ...*Future) int {
	if len(futures) == 0 {
		panic(&abortError{kind: abortInternal, err: fmt.Errorf("workflow: WaitAny with no futures")})
	}
	c.park(func() bool {
		for _, f := range futures {
			if f.resolved {
				return true
			}
		}
		return false
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	winner, best := -1, int64(0)
	for i, f := range futures {
		if f.resolved && (winner == -1 || f.seq < best) {
			winner, best = i, f.seq
		}
	}
	return winner
}

// WaitAll blocks until every given future resolves and returns the first
// error among them in argument order, if any.
func (c *Context) WaitAll(futures ...*Future) error {
	c.park(func() bool {
		for _, f := range futures {
			if !f.resolved {
				return false
			}
		}
		return true
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range futures {
		if f.err != nil {
			return f.err
		}
	}
	return nil
}

// Await blocks until cond reports true. cond is re-evaluated whenever new
// events or signals are delivered to the run. It must read only
// workflow-local state and must not issue commands.
func (c *Context) Await(cond func() bool) {
	c.park(cond)
}

// SetQueryHandler registers a named query handler. Handlers run against
// the run's in-memory state while it is suspended; they must not issue
// commands. Registration is not journaled: queries never touch history.
func (c *Context) SetQueryHandler(name string, handler QueryHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryHandlers[name] = handler
}

// ──────────────────────────────────────────────────
// Engine-facing surface
// ──────────────────────────────────────────────────

// Deliver resolves the future awaiting the completion event. Called by the
// engine after journaling the event.
func (c *Context) Deliver(ev *history.Event, scheduledSeq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.pending[scheduledSeq]
	if !ok {
		// Replay resolved it from the journal before the live path got
		// here, or the run never awaited it.
		c.completions[scheduledSeq] = ev
		return nil
	}
	delete(c.pending, scheduledSeq)
	if err := f.resolveFromEventLocked(ev); err != nil {
		return err
	}
	c.cond.Broadcast()
	return nil
}

// DeliverSignal hands a journaled signal to the run: the eldest waiter for
// its name resolves, or the signal is buffered FIFO. Called by the engine
// after journaling SignalReceived.
func (c *Context) DeliverSignal(seq int64, name string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if waiters := c.signalWaiters[name]; len(waiters) > 0 {
		f := waiters[0]
		c.signalWaiters[name] = waiters[1:]
		f.resolveLocked(payload, nil, seq)
		c.cond.Broadcast()
		return
	}
	c.inbox = append(c.inbox, &inboxSignal{seq: seq, name: name, payload: payload})
	c.cond.Broadcast()
}

// Cancel flags the run cancelled and wakes every suspension point.
func (c *Context) Cancel(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	c.cancelReason = reason
	c.cond.Broadcast()
}

// Query runs a registered query handler. It never journals anything.
func (c *Context) Query(name string, args []byte) (any, error) {
	c.mu.Lock()
	handler, ok := c.queryHandlers[name]
	c.mu.Unlock()
	if !ok {
		return nil, &replay.QueryFailedError{Query: name, Err: fmt.Errorf("no handler registered")}
	}
	result, err := handler(args)
	if err != nil {
		return nil, &replay.QueryFailedError{Query: name, Err: err}
	}
	return result, nil
}

// PendingSignals returns the names of buffered, unconsumed signals in
// delivery order. Diagnostic surface for the API layer.
func (c *Context) PendingSignals() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.inbox))
	for i, s := range c.inbox {
		names[i] = s.name
	}
	return names
}

// ──────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────

// nextCommand consumes the journal cursor. A non-nil return is the
// journaled command matching this call; nil means the journal is exhausted
// and the command must be issued live. A mismatch is fatal.
func (c *Context) nextCommand(typ history.EventType, name string) *history.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor >= len(c.commands) {
		return nil
	}
	ev := c.commands[c.cursor]
	if ev.Type != typ || ev.Name != name {
		panic(&abortError{kind: abortNonDeterminism, err: &replay.NonDeterminismError{
			RunID:    c.run.ID,
			Seq:      ev.Seq,
			Expected: describe(ev.Type, ev.Name),
			Got:      describe(typ, name),
		}})
	}
	c.cursor++
	return ev
}

func describe(typ history.EventType, name string) string {
	if name == "" {
		return string(typ)
	}
	return string(typ) + ":" + name
}

// attachFuture registers a future for the command at seq, resolving it
// immediately when the completion is already journaled.
func (c *Context) attachFuture(seq int64) *Future {
	f := &Future{c: c}
	c.mu.Lock()
	defer c.mu.Unlock()

	if comp, ok := c.completions[seq]; ok {
		delete(c.completions, seq)
		if err := f.resolveFromEventLocked(comp); err != nil {
			panic(&abortError{kind: abortInternal, err: err})
		}
		return f
	}
	c.pending[seq] = f
	return f
}

func (c *Context) popInboxLocked(name string) *inboxSignal {
	for i, s := range c.inbox {
		if s.name == name {
			c.inbox = append(c.inbox[:i:i], c.inbox[i+1:]...)
			return s
		}
	}
	return nil
}

func (c *Context) noteLiveCommand() {
	c.mu.Lock()
	c.live = true
	c.liveCommands++
	c.mu.Unlock()
}

// park blocks the workflow goroutine until ready reports true. It is the
// only suspension point: cancellation unwinds here, and the pending
// command burst is sealed with a WorkflowTaskCompleted event first.
func (c *Context) park(ready func() bool) {
	c.sealTask()

	c.mu.Lock()
	defer c.mu.Unlock()
	for !ready() {
		if c.cancelled {
			panic(&abortError{kind: abortCancelled, err: fmt.Errorf("%s", c.cancelReason)})
		}
		if c.suspendCh != nil {
			select {
			case c.suspendCh <- struct{}{}:
			default:
			}
		}
		c.cond.Wait()
	}
}

func (c *Context) sealTask() {
	c.mu.Lock()
	n := c.liveCommands
	c.liveCommands = 0
	c.mu.Unlock()

	if n == 0 {
		return
	}
	if err := c.sched.RecordWorkflowTask(c.ctx, c.run, n); err != nil {
		panic(&abortError{kind: abortInternal, err: err})
	}
}
