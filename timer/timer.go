// Package timer provides durable timers. A timer's absolute fire time is
// fixed when the workflow schedules it; the timer service scans for due
// timers and reports them to the engine, which appends TimerFired to the
// owning run's history. Firing survives restarts because the timer row,
// not an in-memory clock, is the source of truth.
package timer

import (
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
)

// State represents the lifecycle state of a timer.
type State string

const (
	// StatePending means the timer has not fired yet.
	StatePending State = "pending"
	// StateFired means the timer fired and TimerFired was recorded.
	StateFired State = "fired"
	// StateCancelled means the owning run ended before the timer fired.
	StateCancelled State = "cancelled"
)

// Timer is one durable sleep scheduled by a workflow run.
type Timer struct {
	replay.Entity

	ID          id.TimerID     `json:"id"`
	RunID       id.RunID       `json:"run_id"`
	ExecutionID id.ExecutionID `json:"execution_id"`

	// ScheduledSeq is the history Seq of the TimerStarted event.
	ScheduledSeq int64 `json:"scheduled_seq"`

	// FireAt is the absolute fire time, computed at schedule time.
	FireAt time.Time `json:"fire_at"`

	State   State      `json:"state"`
	FiredAt *time.Time `json:"fired_at,omitempty"`
}
