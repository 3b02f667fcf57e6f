// Package stream provides a real-time event broker for Replay lifecycle
// events. It bridges the hook system to connected clients via
// topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Execution events.
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventExecutionCancelled EventType = "execution.cancelled"
	EventExecutionContinued EventType = "execution.continued_as_new"

	// Activity events.
	EventActivityScheduled EventType = "activity.scheduled"
	EventActivityStarted   EventType = "activity.started"
	EventActivityCompleted EventType = "activity.completed"
	EventActivityFailed    EventType = "activity.failed"
	EventActivityRetrying  EventType = "activity.retrying"
	EventActivityDLQ       EventType = "activity.dlq"

	// Timer, signal, and schedule events.
	EventTimerFired     EventType = "timer.fired"
	EventSignalReceived EventType = "signal.received"
	EventScheduleFired  EventType = "schedule.fired"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// ExecutionEventData is the payload for execution lifecycle events.
type ExecutionEventData struct {
	RunID       string `json:"run_id"`
	ExecutionID string `json:"execution_id"`
	Name        string `json:"name"`
	ScopeAppID  string `json:"scope_app_id,omitempty"`
	ScopeOrgID  string `json:"scope_org_id,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	Error       string `json:"error,omitempty"`
	Reason      string `json:"reason,omitempty"`
	NewRunID    string `json:"new_run_id,omitempty"`
}

// ActivityEventData is the payload for activity lifecycle events.
type ActivityEventData struct {
	ActivityID string `json:"activity_id"`
	RunID      string `json:"run_id"`
	Name       string `json:"name"`
	TaskQueue  string `json:"task_queue"`
	ScopeAppID string `json:"scope_app_id,omitempty"`
	ScopeOrgID string `json:"scope_org_id,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`
	NextRunAt  string `json:"next_run_at,omitempty"`
}

// TimerEventData is the payload for timer events.
type TimerEventData struct {
	RunID   string `json:"run_id"`
	TimerID string `json:"timer_id"`
}

// SignalEventData is the payload for signal events.
type SignalEventData struct {
	RunID string `json:"run_id"`
	Name  string `json:"name"`
}

// ScheduleEventData is the payload for schedule events.
type ScheduleEventData struct {
	ScheduleName string `json:"schedule_name"`
	ExecutionID  string `json:"execution_id"`
}
