package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/schedule"
	"github.com/xraph/replay/signal"
	"github.com/xraph/replay/timer"
	"github.com/xraph/replay/workflow"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ workflow.Store = (*Store)(nil)
	_ history.Store  = (*Store)(nil)
	_ activity.Store = (*Store)(nil)
	_ timer.Store    = (*Store)(nil)
	_ signal.Store   = (*Store)(nil)
	_ schedule.Store = (*Store)(nil)
	_ dlq.Store      = (*Store)(nil)
	_ cluster.Store  = (*Store)(nil)
)

// Store is a Bun ORM implementation of store.Store using PostgreSQL
// dialect. The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle; the
// Store will not close it on Close.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates all tables and indexes from the registered models.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*runModel)(nil),
		(*eventModel)(nil),
		(*taskModel)(nil),
		(*timerModel)(nil),
		(*signalModel)(nil),
		(*scheduleModel)(nil),
		(*dlqModel)(nil),
		(*workerModel)(nil),
		(*leadershipModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("replay/bun: create table for %T: %w", model, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS replay_runs_execution_idx
			ON replay_runs (execution_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS replay_runs_state_idx
			ON replay_runs (state)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_replay_runs_open_execution
			ON replay_runs (execution_id)
			WHERE state IN ('running', 'paused')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS replay_history_run_seq_idx
			ON replay_history (run_id, seq)`,
		`CREATE INDEX IF NOT EXISTS replay_tasks_dequeue_idx
			ON replay_tasks (task_queue, run_at)
			WHERE state IN ('scheduled', 'retrying')`,
		`CREATE INDEX IF NOT EXISTS replay_tasks_run_idx
			ON replay_tasks (run_id)`,
		`CREATE INDEX IF NOT EXISTS replay_timers_due_idx
			ON replay_timers (fire_at)
			WHERE state = 'pending'`,
		`CREATE INDEX IF NOT EXISTS replay_signals_pending_idx
			ON replay_signals (run_id, name, seq)
			WHERE NOT consumed`,
		`CREATE INDEX IF NOT EXISTS replay_dlq_failed_idx
			ON replay_dlq (failed_at)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("replay/bun: create index: %w", err)
		}
	}

	s.logger.Info("bun store migrated")
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close(_ context.Context) error {
	return nil
}
