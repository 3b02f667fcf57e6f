package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/id"
)

// RegisterWorker adds a new worker to the cluster registry. Re-registering
// an existing worker ID refreshes its record.
func (s *Store) RegisterWorker(ctx context.Context, w *cluster.Worker) error {
	wID := w.ID.String()

	if err := s.setEntity(ctx, workerKey(wID), w); err != nil {
		return fmt.Errorf("replay/redis: register worker: %w", err)
	}
	if err := s.client.SAdd(ctx, workerIDsKey, wID).Err(); err != nil {
		return fmt.Errorf("replay/redis: register worker index: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the cluster registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	wID := workerID.String()
	key := workerKey(wID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("replay/redis: deregister exists: %w", err)
	}
	if !exists {
		return replay.ErrWorkerNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, workerIDsKey, wID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: deregister worker: %w", err)
	}
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	key := workerKey(workerID.String())

	var w cluster.Worker
	if err := s.getEntity(ctx, key, &w); err != nil {
		if isRedisNil(err) {
			return replay.ErrWorkerNotFound
		}
		return fmt.Errorf("replay/redis: heartbeat worker get: %w", err)
	}

	w.LastSeen = time.Now().UTC()
	if err := s.setEntity(ctx, key, &w); err != nil {
		return fmt.Errorf("replay/redis: heartbeat worker: %w", err)
	}
	return nil
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*cluster.Worker, error) {
	ids, err := s.client.SMembers(ctx, workerIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: list workers: %w", err)
	}

	workers := make([]*cluster.Worker, 0, len(ids))
	for _, wID := range ids {
		var w cluster.Worker
		if getErr := s.getEntity(ctx, workerKey(wID), &w); getErr != nil {
			continue
		}
		workers = append(workers, &w)
	}

	sort.Slice(workers, func(i, k int) bool {
		return workers[i].CreatedAt.Before(workers[k].CreatedAt)
	})
	return workers, nil
}

// ReapDeadWorkers returns workers whose last-seen timestamp is older than
// the given threshold.
func (s *Store) ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	workers, err := s.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}

	var dead []*cluster.Worker
	for _, w := range workers {
		if w.LastSeen.Before(cutoff) {
			dead = append(dead, w)
		}
	}
	return dead, nil
}

// AcquireLeadership attempts to become the cluster leader using SET NX on
// the leader key with a TTL lease.
func (s *Store) AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	wID := workerID.String()

	ok, err := s.client.SetNX(ctx, leaderKey, wID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay/redis: acquire leadership setnx: %w", err)
	}
	if ok {
		s.markLeader(ctx, workerID, ttl)
		return true, nil
	}

	current, err := s.client.Get(ctx, leaderKey).Result()
	if err != nil && !isRedisNil(err) {
		return false, fmt.Errorf("replay/redis: acquire leadership get: %w", err)
	}
	if current == wID {
		// Re-acquire: extend the lease.
		if eErr := s.client.Expire(ctx, leaderKey, ttl).Err(); eErr != nil {
			s.logger.Warn("failed to extend leader lease", "error", eErr)
		}
		s.markLeader(ctx, workerID, ttl)
		return true, nil
	}
	return false, nil
}

// RenewLeadership extends the leader's hold. Fails when the worker no
// longer holds the lease.
func (s *Store) RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	wID := workerID.String()

	current, err := s.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if isRedisNil(err) {
			return false, nil // no leader
		}
		return false, fmt.Errorf("replay/redis: renew leadership get: %w", err)
	}
	if current != wID {
		return false, nil
	}

	if eErr := s.client.Expire(ctx, leaderKey, ttl).Err(); eErr != nil {
		s.logger.Warn("failed to extend leader lease", "error", eErr)
	}
	s.markLeader(ctx, workerID, ttl)
	return true, nil
}

// GetLeader returns the current cluster leader, or nil if there is none.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Worker, error) {
	wID, err := s.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay/redis: get leader: %w", err)
	}

	var w cluster.Worker
	if err := s.getEntity(ctx, workerKey(wID), &w); err != nil {
		if isRedisNil(err) {
			return nil, nil // leader key exists but worker gone
		}
		return nil, fmt.Errorf("replay/redis: get leader worker: %w", err)
	}
	w.IsLeader = true
	return &w, nil
}

// markLeader reflects leadership onto the worker record, best effort.
func (s *Store) markLeader(ctx context.Context, workerID id.WorkerID, ttl time.Duration) {
	key := workerKey(workerID.String())

	var w cluster.Worker
	if err := s.getEntity(ctx, key, &w); err != nil {
		return
	}
	until := time.Now().UTC().Add(ttl)
	w.IsLeader = true
	w.LeaderUntil = &until
	if err := s.setEntity(ctx, key, &w); err != nil {
		s.logger.Warn("failed to update leader fields", "error", err)
	}
}
