package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/schedule"
	"github.com/xraph/replay/signal"
	"github.com/xraph/replay/timer"
	"github.com/xraph/replay/workflow"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// collect drains rows through a scan function.
func collect[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]*T, error) {
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// parseOptionalID parses an ID column that may be empty.
func parseOptionalID(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}

// timeOrZero dereferences a nullable timestamp column.
func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// nullableTime maps a zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ── workflow runs ────────────────────────────────────────────────

const runColumns = `id, execution_id, name, version, state, task_queue,
	input, output, error, error_type, parent_run_id, continued_from_run_id,
	deadline, scope_app_id, scope_org_id, started_at, completed_at,
	created_at, updated_at`

func scanRun(row rowScanner) (*workflow.Run, error) {
	var (
		r                                  workflow.Run
		idStr, execStr, parentStr, prevStr string
		deadline                          *time.Time
	)
	err := row.Scan(
		&idStr, &execStr, &r.Name, &r.Version, &r.State, &r.TaskQueue,
		&r.Input, &r.Output, &r.Error, &r.ErrorType, &parentStr, &prevStr,
		&deadline, &r.ScopeAppID, &r.ScopeOrgID, &r.StartedAt, &r.CompletedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.ID, err = id.ParseRunID(idStr); err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", idStr, err)
	}
	if r.ExecutionID, err = id.ParseExecutionID(execStr); err != nil {
		return nil, fmt.Errorf("parse execution id %q: %w", execStr, err)
	}
	if r.ParentRunID, err = parseOptionalID(parentStr, id.ParseRunID); err != nil {
		return nil, fmt.Errorf("parse parent run id %q: %w", parentStr, err)
	}
	if r.ContinuedFromRunID, err = parseOptionalID(prevStr, id.ParseRunID); err != nil {
		return nil, fmt.Errorf("parse continued-from run id %q: %w", prevStr, err)
	}
	r.Deadline = timeOrZero(deadline)
	return &r, nil
}

func runArgs(r *workflow.Run) []any {
	parent := ""
	if !r.ParentRunID.IsNil() {
		parent = r.ParentRunID.String()
	}
	prev := ""
	if !r.ContinuedFromRunID.IsNil() {
		prev = r.ContinuedFromRunID.String()
	}
	return []any{
		r.ID.String(), r.ExecutionID.String(), r.Name, r.Version,
		string(r.State), r.TaskQueue, r.Input, r.Output, r.Error, r.ErrorType,
		parent, prev, nullableTime(r.Deadline), r.ScopeAppID, r.ScopeOrgID,
		r.StartedAt, r.CompletedAt, r.CreatedAt, r.UpdatedAt,
	}
}

// ── history events ───────────────────────────────────────────────

const eventColumns = `id, run_id, execution_id, seq, type, name, attrs, occurred_at`

func scanEvent(row rowScanner) (*history.Event, error) {
	var (
		ev                     history.Event
		idStr, runStr, execStr string
		attrs                  []byte
	)
	err := row.Scan(&idStr, &runStr, &execStr, &ev.Seq, &ev.Type, &ev.Name, &attrs, &ev.OccurredAt)
	if err != nil {
		return nil, err
	}

	if ev.ID, err = id.ParseEventID(idStr); err != nil {
		return nil, fmt.Errorf("parse event id %q: %w", idStr, err)
	}
	if ev.RunID, err = id.ParseRunID(runStr); err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runStr, err)
	}
	if ev.ExecutionID, err = id.ParseExecutionID(execStr); err != nil {
		return nil, fmt.Errorf("parse execution id %q: %w", execStr, err)
	}
	ev.Attrs = attrs
	return &ev, nil
}

// ── activity tasks ───────────────────────────────────────────────

const taskColumns = `id, run_id, execution_id, name, task_queue, input, state,
	scheduled_seq, attempt, retry_policy, start_to_close_timeout,
	heartbeat_timeout, last_error, result, scope_app_id, scope_org_id,
	worker_id, run_at, started_at, completed_at, heartbeat_at,
	created_at, updated_at`

func scanTask(row rowScanner) (*activity.Task, error) {
	var (
		t                                 activity.Task
		idStr, runStr, execStr, workerStr string
		policy                            []byte
		stc, hb                           int64
	)
	err := row.Scan(
		&idStr, &runStr, &execStr, &t.Name, &t.TaskQueue, &t.Input, &t.State,
		&t.ScheduledSeq, &t.Attempt, &policy, &stc, &hb,
		&t.LastError, &t.Result, &t.ScopeAppID, &t.ScopeOrgID,
		&workerStr, &t.RunAt, &t.StartedAt, &t.CompletedAt, &t.HeartbeatAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.ID, err = id.ParseActivityID(idStr); err != nil {
		return nil, fmt.Errorf("parse task id %q: %w", idStr, err)
	}
	if t.RunID, err = id.ParseRunID(runStr); err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runStr, err)
	}
	if t.ExecutionID, err = id.ParseExecutionID(execStr); err != nil {
		return nil, fmt.Errorf("parse execution id %q: %w", execStr, err)
	}
	if t.WorkerID, err = parseOptionalID(workerStr, id.ParseWorkerID); err != nil {
		return nil, fmt.Errorf("parse worker id %q: %w", workerStr, err)
	}
	if len(policy) > 0 {
		if err = json.Unmarshal(policy, &t.RetryPolicy); err != nil {
			return nil, fmt.Errorf("decode retry policy: %w", err)
		}
	}
	t.StartToCloseTimeout = time.Duration(stc)
	t.HeartbeatTimeout = time.Duration(hb)
	return &t, nil
}

func taskArgs(t *activity.Task) ([]any, error) {
	policy, err := json.Marshal(t.RetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("encode retry policy: %w", err)
	}
	worker := ""
	if !t.WorkerID.IsNil() {
		worker = t.WorkerID.String()
	}
	return []any{
		t.ID.String(), t.RunID.String(), t.ExecutionID.String(), t.Name,
		t.TaskQueue, t.Input, string(t.State), t.ScheduledSeq, t.Attempt,
		policy, t.StartToCloseTimeout.Nanoseconds(), t.HeartbeatTimeout.Nanoseconds(),
		t.LastError, t.Result, t.ScopeAppID, t.ScopeOrgID, worker,
		t.RunAt, t.StartedAt, t.CompletedAt, t.HeartbeatAt,
		t.CreatedAt, t.UpdatedAt,
	}, nil
}

// ── timers ───────────────────────────────────────────────────────

const timerColumns = `id, run_id, execution_id, scheduled_seq, fire_at, state,
	fired_at, created_at, updated_at`

func scanTimer(row rowScanner) (*timer.Timer, error) {
	var (
		t                      timer.Timer
		idStr, runStr, execStr string
	)
	err := row.Scan(&idStr, &runStr, &execStr, &t.ScheduledSeq, &t.FireAt,
		&t.State, &t.FiredAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if t.ID, err = id.ParseTimerID(idStr); err != nil {
		return nil, fmt.Errorf("parse timer id %q: %w", idStr, err)
	}
	if t.RunID, err = id.ParseRunID(runStr); err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runStr, err)
	}
	if t.ExecutionID, err = id.ParseExecutionID(execStr); err != nil {
		return nil, fmt.Errorf("parse execution id %q: %w", execStr, err)
	}
	return &t, nil
}

// ── signals ──────────────────────────────────────────────────────

const signalColumns = `id, execution_id, run_id, name, payload, seq, consumed, created_at`

func scanSignal(row rowScanner) (*signal.Signal, error) {
	var (
		sg                     signal.Signal
		idStr, execStr, runStr string
	)
	err := row.Scan(&idStr, &execStr, &runStr, &sg.Name, &sg.Payload,
		&sg.Seq, &sg.Consumed, &sg.CreatedAt)
	if err != nil {
		return nil, err
	}

	if sg.ID, err = id.ParseSignalID(idStr); err != nil {
		return nil, fmt.Errorf("parse signal id %q: %w", idStr, err)
	}
	if sg.ExecutionID, err = id.ParseExecutionID(execStr); err != nil {
		return nil, fmt.Errorf("parse execution id %q: %w", execStr, err)
	}
	if sg.RunID, err = id.ParseRunID(runStr); err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runStr, err)
	}
	return &sg, nil
}

// ── schedules ────────────────────────────────────────────────────

const scheduleColumns = `id, name, spec, workflow, task_queue, input,
	scope_app_id, scope_org_id, last_fired_at, next_fire_at,
	locked_by, locked_until, enabled, created_at, updated_at`

func scanSchedule(row rowScanner) (*schedule.Schedule, error) {
	var (
		sc    schedule.Schedule
		idStr string
	)
	err := row.Scan(&idStr, &sc.Name, &sc.Spec, &sc.Workflow, &sc.TaskQueue,
		&sc.Input, &sc.ScopeAppID, &sc.ScopeOrgID, &sc.LastFiredAt,
		&sc.NextFireAt, &sc.LockedBy, &sc.LockedUntil, &sc.Enabled,
		&sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if sc.ID, err = id.ParseScheduleID(idStr); err != nil {
		return nil, fmt.Errorf("parse schedule id %q: %w", idStr, err)
	}
	return &sc, nil
}

// ── DLQ entries ──────────────────────────────────────────────────

const dlqColumns = `id, task_id, run_id, execution_id, activity, task_queue,
	input, error, error_type, attempts, max_attempts, scope_app_id,
	scope_org_id, failed_at, redriven_at, created_at`

func scanDLQEntry(row rowScanner) (*dlq.Entry, error) {
	var (
		e                               dlq.Entry
		idStr, taskStr, runStr, execStr string
	)
	err := row.Scan(&idStr, &taskStr, &runStr, &execStr, &e.Activity,
		&e.TaskQueue, &e.Input, &e.Error, &e.ErrorType, &e.Attempts,
		&e.MaxAttempts, &e.ScopeAppID, &e.ScopeOrgID, &e.FailedAt,
		&e.RedrivenAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	if e.ID, err = id.ParseDLQID(idStr); err != nil {
		return nil, fmt.Errorf("parse dlq id %q: %w", idStr, err)
	}
	if e.TaskID, err = id.ParseActivityID(taskStr); err != nil {
		return nil, fmt.Errorf("parse task id %q: %w", taskStr, err)
	}
	if e.RunID, err = id.ParseRunID(runStr); err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runStr, err)
	}
	if e.ExecutionID, err = id.ParseExecutionID(execStr); err != nil {
		return nil, fmt.Errorf("parse execution id %q: %w", execStr, err)
	}
	return &e, nil
}

// ── cluster workers ──────────────────────────────────────────────

const workerColumns = `id, hostname, queues, concurrency, state, metadata,
	last_seen, created_at`

func scanWorker(row rowScanner) (*cluster.Worker, error) {
	var (
		w            cluster.Worker
		idStr        string
		queues, meta []byte
	)
	err := row.Scan(&idStr, &w.Hostname, &queues, &w.Concurrency, &w.State,
		&meta, &w.LastSeen, &w.CreatedAt)
	if err != nil {
		return nil, err
	}

	if w.ID, err = id.ParseWorkerID(idStr); err != nil {
		return nil, fmt.Errorf("parse worker id %q: %w", idStr, err)
	}
	if len(queues) > 0 {
		if err = json.Unmarshal(queues, &w.Queues); err != nil {
			return nil, fmt.Errorf("decode worker queues: %w", err)
		}
	}
	if len(meta) > 0 {
		if err = json.Unmarshal(meta, &w.Metadata); err != nil {
			return nil, fmt.Errorf("decode worker metadata: %w", err)
		}
	}
	return &w, nil
}
