package store

import (
	"context"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/schedule"
	"github.com/xraph/replay/signal"
	"github.com/xraph/replay/timer"
	"github.com/xraph/replay/workflow"
)

// Store is the aggregate persistence interface. Each subsystem store is a
// composable interface; a single backend (postgres, bun, sqlite, redis,
// memory) implements all of them.
type Store interface {
	workflow.Store
	history.Store
	activity.Store
	timer.Store
	signal.Store
	schedule.Store
	dlq.Store
	cluster.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
