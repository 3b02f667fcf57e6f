package sqlite

// migration is a named schema change applied exactly once, in order.
type migration struct {
	name string
	sql  string
}

// Timestamps are stored as unix nanoseconds (INTEGER); zero means unset.
var migrations = []migration{
	{
		name: "001_create_runs",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_runs (
			id                    TEXT PRIMARY KEY,
			execution_id          TEXT NOT NULL,
			name                  TEXT NOT NULL,
			version               INTEGER NOT NULL DEFAULT 1,
			state                 TEXT NOT NULL DEFAULT 'running',
			task_queue            TEXT NOT NULL DEFAULT '',
			input                 BLOB,
			output                BLOB,
			error                 TEXT NOT NULL DEFAULT '',
			error_type            TEXT NOT NULL DEFAULT '',
			parent_run_id         TEXT NOT NULL DEFAULT '',
			continued_from_run_id TEXT NOT NULL DEFAULT '',
			deadline              INTEGER NOT NULL DEFAULT 0,
			scope_app_id          TEXT NOT NULL DEFAULT '',
			scope_org_id          TEXT NOT NULL DEFAULT '',
			started_at            INTEGER NOT NULL,
			completed_at          INTEGER,
			created_at            INTEGER NOT NULL,
			updated_at            INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_replay_runs_execution
			ON replay_runs (execution_id, started_at);
		CREATE INDEX IF NOT EXISTS idx_replay_runs_state
			ON replay_runs (state);
		CREATE INDEX IF NOT EXISTS idx_replay_runs_parent
			ON replay_runs (parent_run_id)`,
	},
	{
		name: "002_create_history",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_history (
			id           TEXT PRIMARY KEY,
			run_id       TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			seq          INTEGER NOT NULL,
			type         TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			attrs        BLOB,
			occurred_at  INTEGER NOT NULL,
			UNIQUE (run_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_replay_history_run
			ON replay_history (run_id, seq)`,
	},
	{
		name: "003_create_tasks",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_tasks (
			id                     TEXT PRIMARY KEY,
			run_id                 TEXT NOT NULL,
			execution_id           TEXT NOT NULL,
			name                   TEXT NOT NULL,
			task_queue             TEXT NOT NULL DEFAULT 'default',
			input                  BLOB,
			state                  TEXT NOT NULL DEFAULT 'scheduled',
			scheduled_seq          INTEGER NOT NULL DEFAULT 0,
			attempt                INTEGER NOT NULL DEFAULT 0,
			retry_policy           BLOB,
			start_to_close_timeout INTEGER NOT NULL DEFAULT 0,
			heartbeat_timeout      INTEGER NOT NULL DEFAULT 0,
			last_error             TEXT NOT NULL DEFAULT '',
			result                 BLOB,
			scope_app_id           TEXT NOT NULL DEFAULT '',
			scope_org_id           TEXT NOT NULL DEFAULT '',
			worker_id              TEXT NOT NULL DEFAULT '',
			run_at                 INTEGER NOT NULL,
			started_at             INTEGER,
			completed_at           INTEGER,
			heartbeat_at           INTEGER,
			created_at             INTEGER NOT NULL,
			updated_at             INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_replay_tasks_dequeue
			ON replay_tasks (state, task_queue, run_at);
		CREATE INDEX IF NOT EXISTS idx_replay_tasks_run
			ON replay_tasks (run_id, scheduled_seq)`,
	},
	{
		name: "004_create_timers",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_timers (
			id            TEXT PRIMARY KEY,
			run_id        TEXT NOT NULL,
			execution_id  TEXT NOT NULL,
			scheduled_seq INTEGER NOT NULL DEFAULT 0,
			fire_at       INTEGER NOT NULL,
			state         TEXT NOT NULL DEFAULT 'pending',
			fired_at      INTEGER,
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_replay_timers_due
			ON replay_timers (state, fire_at);
		CREATE INDEX IF NOT EXISTS idx_replay_timers_run
			ON replay_timers (run_id)`,
	},
	{
		name: "005_create_signals",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_signals (
			id           TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			run_id       TEXT NOT NULL,
			name         TEXT NOT NULL,
			payload      BLOB,
			seq          INTEGER NOT NULL DEFAULT 0,
			consumed     INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_replay_signals_run
			ON replay_signals (run_id, name, seq)`,
	},
	{
		name: "006_create_schedules",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_schedules (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL UNIQUE,
			spec          TEXT NOT NULL,
			workflow      TEXT NOT NULL,
			task_queue    TEXT NOT NULL DEFAULT '',
			input         BLOB,
			scope_app_id  TEXT NOT NULL DEFAULT '',
			scope_org_id  TEXT NOT NULL DEFAULT '',
			last_fired_at INTEGER,
			next_fire_at  INTEGER,
			locked_by     TEXT NOT NULL DEFAULT '',
			locked_until  INTEGER,
			enabled       INTEGER NOT NULL DEFAULT 1,
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		)`,
	},
	{
		name: "007_create_dlq",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_dlq (
			id           TEXT PRIMARY KEY,
			task_id      TEXT NOT NULL,
			run_id       TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			activity     TEXT NOT NULL,
			task_queue   TEXT NOT NULL DEFAULT '',
			input        BLOB,
			error        TEXT NOT NULL DEFAULT '',
			error_type   TEXT NOT NULL DEFAULT '',
			attempts     INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 0,
			scope_app_id TEXT NOT NULL DEFAULT '',
			scope_org_id TEXT NOT NULL DEFAULT '',
			failed_at    INTEGER NOT NULL,
			redriven_at  INTEGER,
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_replay_dlq_failed
			ON replay_dlq (failed_at)`,
	},
	{
		name: "008_create_workers",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_workers (
			id          TEXT PRIMARY KEY,
			hostname    TEXT NOT NULL DEFAULT '',
			queues      BLOB,
			concurrency INTEGER NOT NULL DEFAULT 0,
			state       TEXT NOT NULL DEFAULT 'active',
			metadata    BLOB,
			last_seen   INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS replay_leadership (
			singleton   INTEGER PRIMARY KEY CHECK (singleton = 1),
			worker_id   TEXT NOT NULL,
			lease_until INTEGER NOT NULL
		)`,
	},
	{
		// One open run per execution lineage, enforced where the
		// rows are written so concurrent starts cannot both win.
		name: "009_open_run_unique",
		sql: `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_replay_runs_open_execution
			ON replay_runs (execution_id)
			WHERE state IN ('running', 'paused')`,
	},
}
