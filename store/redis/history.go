package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/replay"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
)

// appendEventsScript appends events only when the journal length matches
// the caller's cursor, making optimistic appends atomic.
var appendEventsScript = goredis.NewScript(`
local len = redis.call('LLEN', KEYS[1])
if len ~= tonumber(ARGV[1]) - 1 then
	return -1
end
for i = 2, #ARGV do
	redis.call('RPUSH', KEYS[1], ARGV[i])
end
return len + #ARGV - 1
`)

// AppendEvents appends events to a run's journal, assigning consecutive
// Seq values starting at expectedNextSeq. A cursor mismatch means another
// appender won the race and the caller must replay.
func (s *Store) AppendEvents(ctx context.Context, runID id.RunID, expectedNextSeq int64, events []*history.Event) error {
	if len(events) == 0 {
		return nil
	}

	args := make([]any, 0, len(events)+1)
	args = append(args, expectedNextSeq)
	for i, ev := range events {
		ev.Seq = expectedNextSeq + int64(i)
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("replay/redis: marshal event: %w", err)
		}
		args = append(args, data)
	}

	n, err := appendEventsScript.Run(ctx, s.client, []string{historyKey(runID.String())}, args...).Int64()
	if err != nil {
		return fmt.Errorf("replay/redis: append events: %w", err)
	}
	if n < 0 {
		return replay.ErrHistoryConflict
	}
	return nil
}

// ListEvents returns up to limit events with Seq > afterSeq, in order.
func (s *Store) ListEvents(ctx context.Context, runID id.RunID, afterSeq int64, limit int) ([]*history.Event, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = afterSeq + int64(limit) - 1
	}

	raw, err := s.client.LRange(ctx, historyKey(runID.String()), afterSeq, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: list events: %w", err)
	}

	events := make([]*history.Event, 0, len(raw))
	for _, item := range raw {
		var ev history.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("replay/redis: decode event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, nil
}

// LatestSeq returns the sequence of the last journaled event, or zero for
// an empty journal.
func (s *Store) LatestSeq(ctx context.Context, runID id.RunID) (int64, error) {
	n, err := s.client.LLen(ctx, historyKey(runID.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("replay/redis: latest seq: %w", err)
	}
	return n, nil
}

// DeleteHistory removes the full journal for a run.
func (s *Store) DeleteHistory(ctx context.Context, runID id.RunID) error {
	if err := s.client.Del(ctx, historyKey(runID.String())).Err(); err != nil {
		return fmt.Errorf("replay/redis: delete history: %w", err)
	}
	return nil
}
