// Package history defines the append-only event log that makes executions
// durable. Every state transition of a run is recorded as an Event with a
// per-run monotonic sequence number; replaying the log deterministically
// reconstructs the run's state after a crash.
package history

import (
	"encoding/json"
	"time"

	"github.com/xraph/replay/id"
)

// EventType classifies a history event.
type EventType string

// Event types recorded in a run's history. The set is closed: stores and
// replayers reject unknown types rather than guessing.
const (
	EventExecutionStarted        EventType = "execution_started"
	EventActivityScheduled       EventType = "activity_scheduled"
	EventActivityCompleted       EventType = "activity_completed"
	EventActivityFailed          EventType = "activity_failed"
	EventTimerStarted            EventType = "timer_started"
	EventTimerFired              EventType = "timer_fired"
	EventSignalReceived          EventType = "signal_received"
	EventMarkerRecorded          EventType = "marker_recorded"
	EventChildExecutionStarted   EventType = "child_execution_started"
	EventChildExecutionCompleted EventType = "child_execution_completed"
	EventChildExecutionFailed    EventType = "child_execution_failed"
	EventWorkflowTaskCompleted   EventType = "workflow_task_completed"
	EventExecutionCompleted      EventType = "execution_completed"
	EventExecutionFailed         EventType = "execution_failed"
	EventExecutionContinuedAsNew EventType = "execution_continued_as_new"
	EventExecutionCancelled      EventType = "execution_cancelled"
	EventExecutionTimedOut       EventType = "execution_timed_out"
)

// Terminal reports whether the event type closes a run.
func (t EventType) Terminal() bool {
	switch t {
	case EventExecutionCompleted, EventExecutionFailed,
		EventExecutionContinuedAsNew, EventExecutionCancelled,
		EventExecutionTimedOut:
		return true
	default:
		return false
	}
}

// Event is one entry in a run's history. Seq is assigned by the store at
// append time and is strictly increasing per run with no gaps. Events are
// immutable once appended.
type Event struct {
	ID          id.EventID      `json:"id"`
	RunID       id.RunID        `json:"run_id"`
	ExecutionID id.ExecutionID  `json:"execution_id"`
	Seq         int64           `json:"seq"`
	Type        EventType       `json:"type"`
	Name        string          `json:"name,omitempty"`
	Attrs       json.RawMessage `json:"attrs,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// New creates an unsequenced event ready for append. The store assigns Seq.
func New(runID id.RunID, executionID id.ExecutionID, typ EventType, name string, attrs any) (*Event, error) {
	var raw json.RawMessage
	if attrs != nil {
		data, err := json.Marshal(attrs)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Event{
		ID:          id.NewEventID(),
		RunID:       runID,
		ExecutionID: executionID,
		Type:        typ,
		Name:        name,
		Attrs:       raw,
		OccurredAt:  time.Now().UTC(),
	}, nil
}

// DecodeAttrs unmarshals the event's attributes into v.
func (e *Event) DecodeAttrs(v any) error {
	if len(e.Attrs) == 0 {
		return nil
	}
	return json.Unmarshal(e.Attrs, v)
}

// ──────────────────────────────────────────────────
// Attribute payloads
// ──────────────────────────────────────────────────

// ExecutionStartedAttrs accompanies EventExecutionStarted.
type ExecutionStartedAttrs struct {
	Workflow    string          `json:"workflow"`
	Version     int             `json:"version"`
	Input       json.RawMessage `json:"input,omitempty"`
	TaskQueue   string          `json:"task_queue,omitempty"`
	ParentRunID id.RunID        `json:"parent_run_id,omitempty"`
	// ContinuedFromRunID links a continue-as-new successor to its
	// predecessor run.
	ContinuedFromRunID id.RunID `json:"continued_from_run_id,omitempty"`
	ScopeAppID         string   `json:"scope_app_id,omitempty"`
	ScopeOrgID         string   `json:"scope_org_id,omitempty"`
}

// ActivityScheduledAttrs accompanies EventActivityScheduled.
type ActivityScheduledAttrs struct {
	ActivityID id.ActivityID   `json:"activity_id"`
	Activity   string          `json:"activity"`
	Input      json.RawMessage `json:"input,omitempty"`
	TaskQueue  string          `json:"task_queue,omitempty"`
}

// ActivityCompletedAttrs accompanies EventActivityCompleted.
// ScheduledSeq points back at the ActivityScheduled event this resolves.
type ActivityCompletedAttrs struct {
	ActivityID   id.ActivityID   `json:"activity_id"`
	ScheduledSeq int64           `json:"scheduled_seq"`
	Result       json.RawMessage `json:"result,omitempty"`
	Attempts     int             `json:"attempts"`
}

// ActivityFailedAttrs accompanies EventActivityFailed, recorded only after
// the retry policy is exhausted or short-circuited.
type ActivityFailedAttrs struct {
	ActivityID   id.ActivityID `json:"activity_id"`
	ScheduledSeq int64         `json:"scheduled_seq"`
	ErrorType    string        `json:"error_type,omitempty"`
	Error        string        `json:"error"`
	NonRetryable bool          `json:"non_retryable"`
	Attempts     int           `json:"attempts"`
}

// TimerStartedAttrs accompanies EventTimerStarted. FireAt is absolute,
// computed from the workflow-relative duration at schedule time.
type TimerStartedAttrs struct {
	TimerID id.TimerID    `json:"timer_id"`
	Delay   time.Duration `json:"delay"`
	FireAt  time.Time     `json:"fire_at"`
}

// TimerFiredAttrs accompanies EventTimerFired.
type TimerFiredAttrs struct {
	TimerID      id.TimerID `json:"timer_id"`
	ScheduledSeq int64      `json:"scheduled_seq"`
}

// SignalReceivedAttrs accompanies EventSignalReceived. Signal order in
// history is delivery order.
type SignalReceivedAttrs struct {
	SignalID id.SignalID     `json:"signal_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// MarkerRecordedAttrs accompanies EventMarkerRecorded, the journal entry
// behind SideEffect and Now: a value captured once on the live path and
// returned verbatim on replay.
type MarkerRecordedAttrs struct {
	Value json.RawMessage `json:"value,omitempty"`
}

// ChildExecutionStartedAttrs accompanies EventChildExecutionStarted in the
// parent's history.
type ChildExecutionStartedAttrs struct {
	ChildExecutionID id.ExecutionID  `json:"child_execution_id"`
	ChildRunID       id.RunID        `json:"child_run_id"`
	Workflow         string          `json:"workflow"`
	Input            json.RawMessage `json:"input,omitempty"`
}

// ChildExecutionCompletedAttrs accompanies EventChildExecutionCompleted.
type ChildExecutionCompletedAttrs struct {
	ChildExecutionID id.ExecutionID  `json:"child_execution_id"`
	ScheduledSeq     int64           `json:"scheduled_seq"`
	Result           json.RawMessage `json:"result,omitempty"`
}

// ChildExecutionFailedAttrs accompanies EventChildExecutionFailed.
type ChildExecutionFailedAttrs struct {
	ChildExecutionID id.ExecutionID `json:"child_execution_id"`
	ScheduledSeq     int64          `json:"scheduled_seq"`
	ErrorType        string         `json:"error_type,omitempty"`
	Error            string         `json:"error"`
	Cancelled        bool           `json:"cancelled,omitempty"`
}

// WorkflowTaskCompletedAttrs accompanies EventWorkflowTaskCompleted,
// recorded each time the workflow function runs to a suspension point.
type WorkflowTaskCompletedAttrs struct {
	Commands int `json:"commands"`
}

// ExecutionCompletedAttrs accompanies EventExecutionCompleted.
type ExecutionCompletedAttrs struct {
	Result json.RawMessage `json:"result,omitempty"`
}

// ExecutionFailedAttrs accompanies EventExecutionFailed.
type ExecutionFailedAttrs struct {
	ErrorType        string `json:"error_type,omitempty"`
	Error            string `json:"error"`
	NonDeterministic bool   `json:"non_deterministic,omitempty"`
}

// ExecutionContinuedAsNewAttrs accompanies EventExecutionContinuedAsNew.
type ExecutionContinuedAsNewAttrs struct {
	NewRunID id.RunID        `json:"new_run_id"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// ExecutionCancelledAttrs accompanies EventExecutionCancelled.
type ExecutionCancelledAttrs struct {
	Reason string `json:"reason,omitempty"`
}

// ExecutionTimedOutAttrs accompanies EventExecutionTimedOut.
type ExecutionTimedOutAttrs struct {
	Deadline time.Time `json:"deadline"`
}
