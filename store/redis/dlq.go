package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/replay"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/id"
)

// PushDLQ adds a dead-lettered task entry to the queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	if err := s.setEntity(ctx, dlqKey(eID), entry); err != nil {
		return fmt.Errorf("replay/redis: push dlq: %w", err)
	}
	err := s.client.ZAdd(ctx, dlqByTimeKey, goredis.Z{
		Score:  float64(entry.FailedAt.UnixNano()),
		Member: eID,
	}).Err()
	if err != nil {
		return fmt.Errorf("replay/redis: push dlq index: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.client.ZRange(ctx, dlqByTimeKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		var e dlq.Entry
		if getErr := s.getEntity(ctx, dlqKey(eID), &e); getErr != nil {
			continue
		}
		if opts.TaskQueue != "" && e.TaskQueue != opts.TaskQueue {
			continue
		}
		entries = append(entries, &e)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	var e dlq.Entry
	if err := s.getEntity(ctx, dlqKey(entryID.String()), &e); err != nil {
		if isRedisNil(err) {
			return nil, replay.ErrDLQNotFound
		}
		return nil, fmt.Errorf("replay/redis: get dlq: %w", err)
	}
	return &e, nil
}

// RedriveDLQ marks a DLQ entry as redriven.
func (s *Store) RedriveDLQ(ctx context.Context, entryID id.DLQID) error {
	e, err := s.GetDLQ(ctx, entryID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	e.RedrivenAt = &now
	if err := s.setEntity(ctx, dlqKey(entryID.String()), e); err != nil {
		return fmt.Errorf("replay/redis: redrive dlq: %w", err)
	}
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	maxScore := fmt.Sprintf("(%d", before.UnixNano())
	ids, err := s.client.ZRangeByScore(ctx, dlqByTimeKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("replay/redis: purge dlq: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, dlqKey(eID))
		pipe.ZRem(ctx, dlqByTimeKey, eID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("replay/redis: purge dlq: %w", err)
	}
	return int64(len(ids)), nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, dlqByTimeKey).Result()
	if err != nil {
		return 0, fmt.Errorf("replay/redis: count dlq: %w", err)
	}
	return n, nil
}
