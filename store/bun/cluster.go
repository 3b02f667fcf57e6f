package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/id"
)

// RegisterWorker adds a new worker to the cluster registry. Re-registering
// an existing worker ID refreshes its record.
func (s *Store) RegisterWorker(ctx context.Context, w *cluster.Worker) error {
	m, err := toWorkerModel(w)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("hostname = EXCLUDED.hostname").
		Set("queues = EXCLUDED.queues").
		Set("concurrency = EXCLUDED.concurrency").
		Set("state = EXCLUDED.state").
		Set("metadata = EXCLUDED.metadata").
		Set("last_seen = EXCLUDED.last_seen").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the cluster registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.NewDelete().
		TableExpr("replay_workers").
		Where("id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: deregister worker: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrWorkerNotFound
	}
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.NewUpdate().
		TableExpr("replay_workers").
		Set("last_seen = NOW()").
		Where("id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: heartbeat worker: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrWorkerNotFound
	}
	return nil
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*cluster.Worker, error) {
	var models []workerModel
	err := s.db.NewSelect().Model(&models).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: list workers: %w", err)
	}

	workers := make([]*cluster.Worker, 0, len(models))
	for i := range models {
		w, convErr := fromWorkerModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		workers = append(workers, w)
	}
	return s.annotateLeader(ctx, workers)
}

// annotateLeader marks the current leader in a worker list.
func (s *Store) annotateLeader(ctx context.Context, workers []*cluster.Worker) ([]*cluster.Worker, error) {
	lease := new(leadershipModel)
	err := s.db.NewSelect().Model(lease).
		Where("lease_until > NOW()").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return workers, nil
		}
		return nil, fmt.Errorf("replay/bun: read leadership: %w", err)
	}

	for _, w := range workers {
		if w.ID.String() == lease.WorkerID {
			w.IsLeader = true
			until := lease.LeaseUntil
			w.LeaderUntil = &until
		}
	}
	return workers, nil
}

// ReapDeadWorkers returns workers whose last-seen timestamp is older than
// the given threshold.
func (s *Store) ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	var models []workerModel
	err := s.db.NewSelect().Model(&models).
		Where("last_seen < ?", time.Now().UTC().Add(-threshold)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: reap dead workers: %w", err)
	}

	workers := make([]*cluster.Worker, 0, len(models))
	for i := range models {
		w, convErr := fromWorkerModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// AcquireLeadership attempts to become the cluster leader. The singleton
// lease row is claimed when it is absent, expired, or already held by the
// same worker.
func (s *Store) AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	lease := &leadershipModel{
		Singleton:  true,
		WorkerID:   workerID.String(),
		LeaseUntil: time.Now().UTC().Add(ttl),
	}
	res, err := s.db.NewInsert().Model(lease).
		On("CONFLICT (singleton) DO UPDATE").
		Set("worker_id = EXCLUDED.worker_id").
		Set("lease_until = EXCLUDED.lease_until").
		Where("replay_leadership.lease_until <= NOW() OR replay_leadership.worker_id = EXCLUDED.worker_id").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("replay/bun: acquire leadership: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows == 1, nil
}

// RenewLeadership extends the leader's hold. Fails when the worker no
// longer holds the lease.
func (s *Store) RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	res, err := s.db.NewUpdate().
		TableExpr("replay_leadership").
		Set("lease_until = ?", time.Now().UTC().Add(ttl)).
		Where("worker_id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("replay/bun: renew leadership: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows == 1, nil
}

// GetLeader returns the current cluster leader, or nil if there is none.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Worker, error) {
	lease := new(leadershipModel)
	err := s.db.NewSelect().Model(lease).
		Where("lease_until > NOW()").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay/bun: get leader: %w", err)
	}

	m := new(workerModel)
	err = s.db.NewSelect().Model(m).
		Where("id = ?", lease.WorkerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil // lease held but worker record gone
		}
		return nil, fmt.Errorf("replay/bun: get leader worker: %w", err)
	}

	w, err := fromWorkerModel(m)
	if err != nil {
		return nil, err
	}
	w.IsLeader = true
	until := lease.LeaseUntil
	w.LeaderUntil = &until
	return w, nil
}
