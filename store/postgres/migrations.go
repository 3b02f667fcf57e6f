package postgres

// migration is a named schema change applied exactly once, in order.
type migration struct {
	name string
	sql  string
}

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
			input                 BYTEA,
			output                BYTEA,
			error                 TEXT NOT NULL DEFAULT '',
			error_type            TEXT NOT NULL DEFAULT '',
			parent_run_id         TEXT NOT NULL DEFAULT '',
			continued_from_run_id TEXT NOT NULL DEFAULT '',
			deadline              TIMESTAMPTZ,
			scope_app_id          TEXT NOT NULL DEFAULT '',
			scope_org_id          TEXT NOT NULL DEFAULT '',
			started_at            TIMESTAMPTZ NOT NULL,
			completed_at          TIMESTAMPTZ,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_replay_runs_execution
			ON replay_runs (execution_id, started_at);
		CREATE INDEX IF NOT EXISTS idx_replay_runs_state
			ON replay_runs (state);
		CREATE INDEX IF NOT EXISTS idx_replay_runs_parent
			ON replay_runs (parent_run_id) WHERE parent_run_id <> ''`,
	},
	{
		name: "002_create_history",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_history (
			id           TEXT PRIMARY KEY,
			run_id       TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			seq          BIGINT NOT NULL,
			type         TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			attrs        JSONB,
			occurred_at  TIMESTAMPTZ NOT NULL,
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
			input                  BYTEA,
			state                  TEXT NOT NULL DEFAULT 'scheduled',
			scheduled_seq          BIGINT NOT NULL DEFAULT 0,
			attempt                INTEGER NOT NULL DEFAULT 0,
			retry_policy           JSONB,
			start_to_close_timeout BIGINT NOT NULL DEFAULT 0,
			heartbeat_timeout      BIGINT NOT NULL DEFAULT 0,
			last_error             TEXT NOT NULL DEFAULT '',
			result                 BYTEA,
			scope_app_id           TEXT NOT NULL DEFAULT '',
			scope_org_id           TEXT NOT NULL DEFAULT '',
			worker_id              TEXT NOT NULL DEFAULT '',
			run_at                 TIMESTAMPTZ NOT NULL,
			started_at             TIMESTAMPTZ,
			completed_at           TIMESTAMPTZ,
			heartbeat_at           TIMESTAMPTZ,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_replay_tasks_dequeue
			ON replay_tasks (task_queue, run_at)
			WHERE state IN ('scheduled', 'retrying');
		CREATE INDEX IF NOT EXISTS idx_replay_tasks_run
			ON replay_tasks (run_id, scheduled_seq);
		CREATE INDEX IF NOT EXISTS idx_replay_tasks_state
			ON replay_tasks (state)`,
	},
	{
		name: "004_create_timers",
		sql: `
		CREATE TABLE IF NOT EXISTS replay_timers (
			id            TEXT PRIMARY KEY,
			run_id        TEXT NOT NULL,
			execution_id  TEXT NOT NULL,
			scheduled_seq BIGINT NOT NULL DEFAULT 0,
			fire_at       TIMESTAMPTZ NOT NULL,
			state         TEXT NOT NULL DEFAULT 'pending',
			fired_at      TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_replay_timers_due
			ON replay_timers (fire_at) WHERE state = 'pending';
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
			payload      BYTEA,
			seq          BIGINT NOT NULL DEFAULT 0,
			consumed     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_replay_signals_run
			ON replay_signals (run_id, name, seq) WHERE NOT consumed`,
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
			input         BYTEA,
			scope_app_id  TEXT NOT NULL DEFAULT '',
			scope_org_id  TEXT NOT NULL DEFAULT '',
			last_fired_at TIMESTAMPTZ,
			next_fire_at  TIMESTAMPTZ,
			locked_by     TEXT NOT NULL DEFAULT '',
			locked_until  TIMESTAMPTZ,
			enabled       BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
			input        BYTEA,
			error        TEXT NOT NULL DEFAULT '',
			error_type   TEXT NOT NULL DEFAULT '',
			attempts     INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 0,
			scope_app_id TEXT NOT NULL DEFAULT '',
			scope_org_id TEXT NOT NULL DEFAULT '',
			failed_at    TIMESTAMPTZ NOT NULL,
			redriven_at  TIMESTAMPTZ,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
			queues      JSONB,
			concurrency INTEGER NOT NULL DEFAULT 0,
			state       TEXT NOT NULL DEFAULT 'active',
			metadata    JSONB,
			last_seen   TIMESTAMPTZ NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS replay_leadership (
			singleton   BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			worker_id   TEXT NOT NULL,
			lease_until TIMESTAMPTZ NOT NULL
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
