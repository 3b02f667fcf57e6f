package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/signal"
)

// BufferSignal persists a signal and indexes it by history seq so
// consumption follows delivery order.
func (s *Store) BufferSignal(ctx context.Context, sig *signal.Signal) error {
	sID := sig.ID.String()

	if err := s.setEntity(ctx, signalKey(sID), sig); err != nil {
		return fmt.Errorf("replay/redis: buffer signal: %w", err)
	}
	err := s.client.ZAdd(ctx, runSignalsKey(sig.RunID.String()), goredis.Z{
		Score:  float64(sig.Seq),
		Member: sID,
	}).Err()
	if err != nil {
		return fmt.Errorf("replay/redis: buffer signal index: %w", err)
	}
	return nil
}

// NextSignal returns the oldest unconsumed signal with the given name for
// the run and marks it consumed.
func (s *Store) NextSignal(ctx context.Context, runID id.RunID, name string) (*signal.Signal, error) {
	ids, err := s.client.ZRange(ctx, runSignalsKey(runID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: next signal: %w", err)
	}

	for _, sID := range ids {
		var sig signal.Signal
		if getErr := s.getEntity(ctx, signalKey(sID), &sig); getErr != nil {
			continue
		}
		if sig.Consumed || sig.Name != name {
			continue
		}
		sig.Consumed = true
		if setErr := s.setEntity(ctx, signalKey(sID), &sig); setErr != nil {
			return nil, fmt.Errorf("replay/redis: consume signal: %w", setErr)
		}
		return &sig, nil
	}
	return nil, replay.ErrSignalNotFound
}

// PendingSignals returns all unconsumed signals for the run in Seq order.
// An empty name matches every signal.
func (s *Store) PendingSignals(ctx context.Context, runID id.RunID, name string) ([]*signal.Signal, error) {
	ids, err := s.client.ZRange(ctx, runSignalsKey(runID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: pending signals: %w", err)
	}

	var pending []*signal.Signal
	for _, sID := range ids {
		var sig signal.Signal
		if getErr := s.getEntity(ctx, signalKey(sID), &sig); getErr != nil {
			continue
		}
		if sig.Consumed {
			continue
		}
		if name != "" && sig.Name != name {
			continue
		}
		pending = append(pending, &sig)
	}
	return pending, nil
}

// TransferSignals reassigns all unconsumed signals from one run to
// another. Used by continue-as-new so buffered signals survive the run
// boundary.
func (s *Store) TransferSignals(ctx context.Context, fromRunID, toRunID id.RunID) (int, error) {
	fromKey := runSignalsKey(fromRunID.String())
	toKey := runSignalsKey(toRunID.String())

	members, err := s.client.ZRangeWithScores(ctx, fromKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("replay/redis: transfer signals: %w", err)
	}

	moved := 0
	for _, z := range members {
		sID, ok := z.Member.(string)
		if !ok {
			continue
		}
		var sig signal.Signal
		if getErr := s.getEntity(ctx, signalKey(sID), &sig); getErr != nil {
			continue
		}
		if sig.Consumed {
			continue
		}

		sig.RunID = toRunID
		if setErr := s.setEntity(ctx, signalKey(sID), &sig); setErr != nil {
			return moved, fmt.Errorf("replay/redis: transfer signal: %w", setErr)
		}
		pipe := s.client.TxPipeline()
		pipe.ZRem(ctx, fromKey, sID)
		pipe.ZAdd(ctx, toKey, z)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return moved, fmt.Errorf("replay/redis: transfer signal index: %w", pErr)
		}
		moved++
	}
	return moved, nil
}

// DeleteSignalsForRun removes all signals buffered for a run.
func (s *Store) DeleteSignalsForRun(ctx context.Context, runID id.RunID) error {
	key := runSignalsKey(runID.String())
	ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("replay/redis: delete signals: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, sID := range ids {
		pipe.Del(ctx, signalKey(sID))
	}
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: delete signals: %w", err)
	}
	return nil
}
