package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // register the CGO-free sqlite driver

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

// Store is a SQLite implementation of store.Store using the CGO-free
// modernc driver. Suited to single-node deployments and embedded use;
// SQLite serializes writers, so the usual SKIP LOCKED dequeue tricks are
// replaced by short transactions.
type Store struct {
	db     *sql.DB
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

// Open creates a new SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		// A single write connection avoids SQLITE_BUSY under concurrency.
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return NewFromDB(db, opts...), nil
}

// NewFromDB creates a new SQLite store from an existing *sql.DB.
// The Store owns the handle and closes it on Close.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies all pending schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS replay_migrations (
			name       TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("replay/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM replay_migrations WHERE name = ?)`, m.name,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("replay/sqlite: check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		if _, err = s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("replay/sqlite: apply migration %s: %w", m.name, err)
		}
		if _, err = s.db.ExecContext(ctx,
			`INSERT INTO replay_migrations (name, applied_at) VALUES (?, ?)`,
			m.name, nowNano(),
		); err != nil {
			return fmt.Errorf("replay/sqlite: record migration %s: %w", m.name, err)
		}
		s.logger.Info("applied migration", "name", m.name)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}

// isOpenRunConflict checks if a unique violation came from the one-open-run
// partial index on execution_id rather than the run primary key.
func isOpenRunConflict(err error) bool {
	return isDuplicateKey(err) &&
		strings.Contains(err.Error(), "replay_runs.execution_id")
}
