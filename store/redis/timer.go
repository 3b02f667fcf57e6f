package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/timer"
)

// CreateTimer persists a new pending timer and indexes it for firing.
func (s *Store) CreateTimer(ctx context.Context, t *timer.Timer) error {
	tID := t.ID.String()

	if err := s.setEntity(ctx, timerKey(tID), t); err != nil {
		return fmt.Errorf("replay/redis: create timer: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, runTimersKey(t.RunID.String()), tID)
	pipe.ZAdd(ctx, dueTimersKey, goredis.Z{
		Score:  float64(t.FireAt.UnixNano()),
		Member: tID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: create timer indexes: %w", err)
	}
	return nil
}

// GetTimer retrieves a timer by ID.
func (s *Store) GetTimer(ctx context.Context, timerID id.TimerID) (*timer.Timer, error) {
	var t timer.Timer
	if err := s.getEntity(ctx, timerKey(timerID.String()), &t); err != nil {
		if isRedisNil(err) {
			return nil, replay.ErrTimerNotFound
		}
		return nil, fmt.Errorf("replay/redis: get timer: %w", err)
	}
	return &t, nil
}

// DueTimers returns pending timers with FireAt <= now, ordered by FireAt.
func (s *Store) DueTimers(ctx context.Context, now time.Time, limit int) ([]*timer.Timer, error) {
	rangeBy := &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixNano()),
	}
	if limit > 0 {
		rangeBy.Count = int64(limit)
	}

	ids, err := s.client.ZRangeByScore(ctx, dueTimersKey, rangeBy).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: due timers: %w", err)
	}

	due := make([]*timer.Timer, 0, len(ids))
	for _, tID := range ids {
		var t timer.Timer
		if getErr := s.getEntity(ctx, timerKey(tID), &t); getErr != nil {
			continue
		}
		if t.State != timer.StatePending {
			continue
		}
		due = append(due, &t)
	}

	sort.Slice(due, func(i, k int) bool {
		return due[i].FireAt.Before(due[k].FireAt)
	})
	return due, nil
}

// CompleteTimer transitions a pending timer to fired. The ZREM on the due
// index doubles as the claim: returns false when another caller already
// fired or cancelled the timer.
func (s *Store) CompleteTimer(ctx context.Context, timerID id.TimerID) (bool, error) {
	tID := timerID.String()

	t, err := s.GetTimer(ctx, timerID)
	if err != nil {
		return false, err
	}
	if t.State != timer.StatePending {
		return false, nil
	}

	claimed, err := s.client.ZRem(ctx, dueTimersKey, tID).Result()
	if err != nil {
		return false, fmt.Errorf("replay/redis: complete timer claim: %w", err)
	}
	if claimed == 0 {
		return false, nil
	}

	now := time.Now().UTC()
	t.State = timer.StateFired
	t.FiredAt = &now
	if err := s.setEntity(ctx, timerKey(tID), t); err != nil {
		return false, fmt.Errorf("replay/redis: complete timer: %w", err)
	}
	return true, nil
}

// CancelTimersForRun transitions all pending timers of a run to cancelled.
func (s *Store) CancelTimersForRun(ctx context.Context, runID id.RunID) error {
	ids, err := s.client.SMembers(ctx, runTimersKey(runID.String())).Result()
	if err != nil {
		return fmt.Errorf("replay/redis: cancel timers: %w", err)
	}

	for _, tID := range ids {
		var t timer.Timer
		if getErr := s.getEntity(ctx, timerKey(tID), &t); getErr != nil {
			continue
		}
		if t.State != timer.StatePending {
			continue
		}
		t.State = timer.StateCancelled
		if setErr := s.setEntity(ctx, timerKey(tID), &t); setErr != nil {
			return fmt.Errorf("replay/redis: cancel timer: %w", setErr)
		}
		if zErr := s.client.ZRem(ctx, dueTimersKey, tID).Err(); zErr != nil {
			return fmt.Errorf("replay/redis: cancel timer index: %w", zErr)
		}
	}
	return nil
}

// DeleteTimersForRun removes all timers of a run.
func (s *Store) DeleteTimersForRun(ctx context.Context, runID id.RunID) error {
	idxKey := runTimersKey(runID.String())
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return fmt.Errorf("replay/redis: delete timers: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, tID := range ids {
		pipe.Del(ctx, timerKey(tID))
		pipe.ZRem(ctx, dueTimersKey, tID)
	}
	pipe.Del(ctx, idxKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: delete timers: %w", err)
	}
	return nil
}
