// Package signal defines durable signals delivered to executions. A signal
// is journaled into the target run's history on receipt and buffered until
// workflow code consumes it with WaitSignal; signals sent while no wait is
// outstanding are never dropped.
package signal

import (
	"time"

	"github.com/xraph/replay/id"
)

// Reserved signal names interpreted by the engine itself rather than
// workflow code. They drive the cooperative lifecycle gate.
const (
	NamePause  = "pause"
	NameResume = "resume"
	NameCancel = "cancel"
)

// Reserved reports whether the signal name is claimed by the engine.
func Reserved(name string) bool {
	return name == NamePause || name == NameResume || name == NameCancel
}

// Signal is a named payload sent to an execution. Order of delivery per
// execution is the order of SignalReceived events in history.
type Signal struct {
	ID          id.SignalID    `json:"id"`
	ExecutionID id.ExecutionID `json:"execution_id"`
	RunID       id.RunID       `json:"run_id"`
	Name        string         `json:"name"`
	Payload     []byte         `json:"payload,omitempty"`

	// Seq is the history sequence of the SignalReceived event; buffer
	// consumption order follows it.
	Seq int64 `json:"seq"`

	// Consumed marks the signal as claimed by a WaitSignal call.
	Consumed  bool      `json:"consumed"`
	CreatedAt time.Time `json:"created_at"`
}
