package cluster

import (
	"context"
	"time"

	"github.com/xraph/replay/id"
)

// Store is the persistence contract for worker membership and leader
// election. The scheduler runs only on the current leader.
type Store interface {
	// RegisterWorker records a worker joining the cluster.
	RegisterWorker(ctx context.Context, w *Worker) error

	// DeregisterWorker removes a worker on clean shutdown.
	DeregisterWorker(ctx context.Context, workerID id.WorkerID) error

	// HeartbeatWorker refreshes the worker's last-seen timestamp.
	HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error

	// ListWorkers returns all registered workers.
	ListWorkers(ctx context.Context) ([]*Worker, error)

	// ReapDeadWorkers returns workers that have not heartbeat within
	// threshold and are presumed crashed.
	ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*Worker, error)

	// AcquireLeadership attempts to take the leader lock. Returns true
	// when this worker is now leader; the lock lapses after ttl unless
	// renewed.
	AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// RenewLeadership extends the current leader's ttl. Fails when the
	// caller is not the leader.
	RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// GetLeader returns the worker currently holding the leader lock,
	// or nil when no live leader exists.
	GetLeader(ctx context.Context) (*Worker, error)
}
