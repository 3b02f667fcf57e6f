package history

import (
	"context"

	"github.com/xraph/replay/id"
)

// Store defines the persistence contract for run histories.
//
// Histories are append-only: events are never updated or individually
// deleted. AppendEvents carries the expected next sequence number so that
// two writers racing on the same run cannot interleave; the loser gets
// replay.ErrHistoryConflict and must re-read.
type Store interface {
	// AppendEvents atomically appends events to the run's history,
	// assigning consecutive Seq values starting at expectedNextSeq.
	// Returns replay.ErrHistoryConflict if the run's history has advanced
	// past expectedNextSeq in the meantime.
	AppendEvents(ctx context.Context, runID id.RunID, expectedNextSeq int64, events []*Event) error

	// ListEvents returns events with Seq > afterSeq in Seq order,
	// up to limit (limit <= 0 means no limit).
	ListEvents(ctx context.Context, runID id.RunID, afterSeq int64, limit int) ([]*Event, error)

	// LatestSeq returns the highest Seq appended for the run, or 0 when
	// the run has no history.
	LatestSeq(ctx context.Context, runID id.RunID) (int64, error)

	// DeleteHistory removes the run's entire history. Used only when a
	// run record itself is deleted for retention.
	DeleteHistory(ctx context.Context, runID id.RunID) error
}
