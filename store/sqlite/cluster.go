package sqlite

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
		return fmt.Errorf("replay/sqlite: encode worker queues: %w", err)
	}
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("replay/sqlite: encode worker metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO replay_workers (`+workerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			hostname = excluded.hostname, queues = excluded.queues,
			concurrency = excluded.concurrency, state = excluded.state,
			metadata = excluded.metadata, last_seen = excluded.last_seen`,
		w.ID.String(), w.Hostname, queues, w.Concurrency, string(w.State),
		meta, encTime(w.LastSeen), encTime(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("replay/sqlite: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the cluster registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_workers WHERE id = ?`, workerID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: deregister worker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrWorkerNotFound
	}
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE replay_workers SET last_seen = ? WHERE id = ?`,
		nowNano(), workerID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: heartbeat worker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrWorkerNotFound
	}
	return nil
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*cluster.Worker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workerColumns+` FROM replay_workers ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: list workers: %w", err)
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
		until    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT worker_id, lease_until FROM replay_leadership WHERE lease_until > ?`,
		nowNano(),
	).Scan(&leaderID, &until)
	if err != nil {
		if isNoRows(err) {
			return workers, nil
		}
		return nil, fmt.Errorf("replay/sqlite: read leadership: %w", err)
	}

	for _, w := range workers {
		if w.ID.String() == leaderID {
			w.IsLeader = true
			u := decTime(until)
			w.LeaderUntil = &u
		}
	}
	return workers, nil
}

// ReapDeadWorkers returns workers whose last-seen timestamp is older than
// the given threshold.
func (s *Store) ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workerColumns+` FROM replay_workers WHERE last_seen < ?`,
		encTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: reap dead workers: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanWorker)
}

// AcquireLeadership attempts to become the cluster leader. The singleton
// leadership row is claimed when it is absent, expired, or already held by
// the same worker.
func (s *Store) AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	until := encTime(time.Now().UTC().Add(ttl))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_leadership (singleton, worker_id, lease_until)
		VALUES (1, ?, ?)
		ON CONFLICT (singleton) DO UPDATE
		SET worker_id = excluded.worker_id, lease_until = excluded.lease_until
		WHERE replay_leadership.lease_until <= ?
		   OR replay_leadership.worker_id = excluded.worker_id`,
		workerID.String(), until, nowNano())
	if err != nil {
		return false, fmt.Errorf("replay/sqlite: acquire leadership: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// RenewLeadership extends the leader's hold. Fails when the worker no
// longer holds the lease.
func (s *Store) RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	until := encTime(time.Now().UTC().Add(ttl))
	res, err := s.db.ExecContext(ctx, `
		UPDATE replay_leadership
		SET lease_until = ?
		WHERE worker_id = ?`,
		until, workerID.String())
	if err != nil {
		return false, fmt.Errorf("replay/sqlite: renew leadership: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// GetLeader returns the current cluster leader, or nil if there is none.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Worker, error) {
	var (
		leaderID string
		until    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT worker_id, lease_until FROM replay_leadership WHERE lease_until > ?`,
		nowNano(),
	).Scan(&leaderID, &until)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay/sqlite: get leader: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM replay_workers WHERE id = ?`, leaderID)
	w, err := scanWorker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay/sqlite: get leader: %w", err)
	}
	w.IsLeader = true
	u := decTime(until)
	w.LeaderUntil = &u
	return w, nil
}
