package dlq

import (
	"context"
	"time"

	"github.com/xraph/replay/id"
)

// ListOpts filters and paginates DLQ listings.
type ListOpts struct {
	// Limit caps the number of entries returned. Zero means all.
	Limit int
	// Offset skips that many entries first.
	Offset int
	// TaskQueue restricts results to one queue when non-empty.
	TaskQueue string
}

// Store persists dead-lettered task entries.
type Store interface {
	// PushDLQ records a task that exhausted its retries.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries matching opts, newest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ returns one entry by ID.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// RedriveDLQ records that an entry was sent back to its queue.
	// Scheduling the replacement task is the service layer's job.
	RedriveDLQ(ctx context.Context, entryID id.DLQID) error

	// PurgeDLQ deletes entries that failed before the given time and
	// returns how many were removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total entry count.
	CountDLQ(ctx context.Context) (int64, error)
}
