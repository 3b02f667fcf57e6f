package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/id"
)

// RegisterWorker adds a new worker to the cluster registry. Re-registering
// an existing worker ID refreshes its record.
func (s *Store) RegisterWorker(ctx context.Context, w *cluster.Worker) error {
	queues, err := json.Marshal(w.Queues)
	if err != nil {
		return fmt.Errorf("replay/postgres: encode worker queues: %w", err)
	}
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("replay/postgres: encode worker metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO replay_workers (`+workerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			hostname = EXCLUDED.hostname, queues = EXCLUDED.queues,
			concurrency = EXCLUDED.concurrency, state = EXCLUDED.state,
			metadata = EXCLUDED.metadata, last_seen = EXCLUDED.last_seen`,
		w.ID.String(), w.Hostname, queues, w.Concurrency, string(w.State),
		meta, w.LastSeen, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("replay/postgres: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the cluster registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM replay_workers WHERE id = $1`, workerID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: deregister worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrWorkerNotFound
	}
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE replay_workers SET last_seen = NOW() WHERE id = $1`,
		workerID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: heartbeat worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrWorkerNotFound
	}
	return nil
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*cluster.Worker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+workerColumns+` FROM replay_workers ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: list workers: %w", err)
	}
	defer rows.Close()

	workers, err := collect(rows, scanWorker)
	if err != nil {
		return nil, err
	}
	return s.annotateLeader(ctx, workers)
}

// annotateLeader marks the current leader in a worker list.
func (s *Store) annotateLeader(ctx context.Context, workers []*cluster.Worker) ([]*cluster.Worker, error) {
	var (
		leaderID string
		until    time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT worker_id, lease_until FROM replay_leadership WHERE lease_until > NOW()`,
	).Scan(&leaderID, &until)
	if err != nil {
		if isNoRows(err) {
			return workers, nil
		}
		return nil, fmt.Errorf("replay/postgres: read leadership: %w", err)
	}

	for _, w := range workers {
		if w.ID.String() == leaderID {
			w.IsLeader = true
			u := until
			w.LeaderUntil = &u
		}
	}
	return workers, nil
}

// ReapDeadWorkers returns workers whose last-seen timestamp is older than
// the given threshold.
func (s *Store) ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := s.pool.Query(ctx,
		`SELECT `+workerColumns+` FROM replay_workers WHERE last_seen < $1`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: reap dead workers: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanWorker)
}

// AcquireLeadership attempts to become the cluster leader. The singleton
// leadership row is claimed when it is absent, expired, or already held by
// the same worker.
func (s *Store) AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	until := time.Now().UTC().Add(ttl)
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO replay_leadership (singleton, worker_id, lease_until)
		VALUES (TRUE, $1, $2)
		ON CONFLICT (singleton) DO UPDATE
		SET worker_id = EXCLUDED.worker_id, lease_until = EXCLUDED.lease_until
		WHERE replay_leadership.lease_until <= NOW()
		   OR replay_leadership.worker_id = EXCLUDED.worker_id`,
		workerID.String(), until)
	if err != nil {
		return false, fmt.Errorf("replay/postgres: acquire leadership: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RenewLeadership extends the leader's hold. Fails when the worker no
// longer holds the lease.
func (s *Store) RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	until := time.Now().UTC().Add(ttl)
	tag, err := s.pool.Exec(ctx, `
		UPDATE replay_leadership
		SET lease_until = $2
		WHERE worker_id = $1`,
		workerID.String(), until)
	if err != nil {
		return false, fmt.Errorf("replay/postgres: renew leadership: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetLeader returns the current cluster leader, or nil if there is none.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Worker, error) {
	var (
		leaderID string
		until    time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT worker_id, lease_until FROM replay_leadership WHERE lease_until > NOW()`,
	).Scan(&leaderID, &until)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay/postgres: get leader: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM replay_workers WHERE id = $1`, leaderID)
	w, err := scanWorker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay/postgres: get leader: %w", err)
	}
	w.IsLeader = true
	w.LeaderUntil = &until
	return w, nil
}
