package signal

import (
	"context"

	"github.com/xraph/replay/id"
)

// Store defines the persistence contract for the signal buffer.
type Store interface {
	// BufferSignal persists a received signal for later consumption.
	BufferSignal(ctx context.Context, s *Signal) error

	// NextSignal returns the oldest unconsumed signal with the given name
	// for the run and marks it consumed. Returns replay.ErrSignalNotFound
	// when none is buffered.
	NextSignal(ctx context.Context, runID id.RunID, name string) (*Signal, error)

	// PendingSignals returns all unconsumed signals for the run in Seq
	// order, optionally filtered by name (empty matches all).
	PendingSignals(ctx context.Context, runID id.RunID, name string) ([]*Signal, error)

	// TransferSignals reassigns all unconsumed signals from one run to
	// another. Used at continue-as-new boundaries so buffered signals
	// carry over to the successor run.
	TransferSignals(ctx context.Context, fromRunID, toRunID id.RunID) (int, error)

	// DeleteSignalsForRun removes all signals belonging to a run.
	DeleteSignalsForRun(ctx context.Context, runID id.RunID) error
}
