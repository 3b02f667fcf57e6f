package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/backoff"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/schedule"
	"github.com/xraph/replay/signal"
	"github.com/xraph/replay/timer"
	"github.com/xraph/replay/workflow"
)

// parseOptionalID parses an ID column that may be empty.
func parseOptionalID(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}

func optionalIDString(i id.ID) string {
	if i.IsNil() {
		return ""
	}
	return i.String()
}

// nullableTime maps a zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// timeOrZero dereferences a nullable timestamp column.
func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// ── Run model ─────────────────────────────────────────────────────

type runModel struct {
	bun.BaseModel `bun:"table:replay_runs"`

	ID                 string     `bun:"id,pk"`
	ExecutionID        string     `bun:"execution_id,notnull"`
	Name               string     `bun:"name,notnull"`
	Version            int        `bun:"version,notnull,default:1"`
	State              string     `bun:"state,notnull"`
	TaskQueue          string     `bun:"task_queue,notnull,default:''"`
	Input              []byte     `bun:"input,type:bytea"`
	Output             []byte     `bun:"output,type:bytea"`
	Error              string     `bun:"error"`
	ErrorType          string     `bun:"error_type"`
	ParentRunID        string     `bun:"parent_run_id"`
	ContinuedFromRunID string     `bun:"continued_from_run_id"`
	Deadline           *time.Time `bun:"deadline"`
	ScopeAppID         string     `bun:"scope_app_id"`
	ScopeOrgID         string     `bun:"scope_org_id"`
	StartedAt          time.Time  `bun:"started_at,notnull"`
	CompletedAt        *time.Time `bun:"completed_at"`
	CreatedAt          time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toRunModel(r *workflow.Run) *runModel {
	return &runModel{
		ID:                 r.ID.String(),
		ExecutionID:        r.ExecutionID.String(),
		Name:               r.Name,
		Version:            r.Version,
		State:              string(r.State),
		TaskQueue:          r.TaskQueue,
		Input:              r.Input,
		Output:             r.Output,
		Error:              r.Error,
		ErrorType:          r.ErrorType,
		ParentRunID:        optionalIDString(r.ParentRunID),
		ContinuedFromRunID: optionalIDString(r.ContinuedFromRunID),
		Deadline:           nullableTime(r.Deadline),
		ScopeAppID:         r.ScopeAppID,
		ScopeOrgID:         r.ScopeOrgID,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func fromRunModel(m *runModel) (*workflow.Run, error) {
	r := &workflow.Run{
		Entity: replay.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Name:        m.Name,
		Version:     m.Version,
		State:       workflow.RunState(m.State),
		TaskQueue:   m.TaskQueue,
		Input:       m.Input,
		Output:      m.Output,
		Error:       m.Error,
		ErrorType:   m.ErrorType,
		Deadline:    timeOrZero(m.Deadline),
		ScopeAppID:  m.ScopeAppID,
		ScopeOrgID:  m.ScopeOrgID,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}

	var err error
	if r.ID, err = id.ParseRunID(m.ID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse run id %q: %w", m.ID, err)
	}
	if r.ExecutionID, err = id.ParseExecutionID(m.ExecutionID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	if r.ParentRunID, err = parseOptionalID(m.ParentRunID, id.ParseRunID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse parent run id %q: %w", m.ParentRunID, err)
	}
	if r.ContinuedFromRunID, err = parseOptionalID(m.ContinuedFromRunID, id.ParseRunID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse continued-from run id %q: %w", m.ContinuedFromRunID, err)
	}
	return r, nil
}

// ── History event model ───────────────────────────────────────────

type eventModel struct {
	bun.BaseModel `bun:"table:replay_history"`

	ID          string    `bun:"id,pk"`
	RunID       string    `bun:"run_id,notnull"`
	ExecutionID string    `bun:"execution_id,notnull"`
	Seq         int64     `bun:"seq,notnull"`
	Type        string    `bun:"type,notnull"`
	Name        string    `bun:"name"`
	Attrs       []byte    `bun:"attrs,type:jsonb"`
	OccurredAt  time.Time `bun:"occurred_at,notnull"`
}

func toEventModel(ev *history.Event) *eventModel {
	return &eventModel{
		ID:          ev.ID.String(),
		RunID:       ev.RunID.String(),
		ExecutionID: ev.ExecutionID.String(),
		Seq:         ev.Seq,
		Type:        string(ev.Type),
		Name:        ev.Name,
		Attrs:       ev.Attrs,
		OccurredAt:  ev.OccurredAt,
	}
}

func fromEventModel(m *eventModel) (*history.Event, error) {
	ev := &history.Event{
		Seq:        m.Seq,
		Type:       history.EventType(m.Type),
		Name:       m.Name,
		Attrs:      m.Attrs,
		OccurredAt: m.OccurredAt,
	}

	var err error
	if ev.ID, err = id.ParseEventID(m.ID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse event id %q: %w", m.ID, err)
	}
	if ev.RunID, err = id.ParseRunID(m.RunID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse run id %q: %w", m.RunID, err)
	}
	if ev.ExecutionID, err = id.ParseExecutionID(m.ExecutionID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	return ev, nil
}

// ── Task model ────────────────────────────────────────────────────

type taskModel struct {
	bun.BaseModel `bun:"table:replay_tasks"`

	ID                  string     `bun:"id,pk"`
	RunID               string     `bun:"run_id,notnull"`
	ExecutionID         string     `bun:"execution_id,notnull"`
	Name                string     `bun:"name,notnull"`
	TaskQueue           string     `bun:"task_queue,notnull,default:'default'"`
	Input               []byte     `bun:"input,type:bytea"`
	State               string     `bun:"state,notnull"`
	ScheduledSeq        int64      `bun:"scheduled_seq,notnull"`
	Attempt             int        `bun:"attempt,notnull,default:0"`
	RetryPolicy         []byte     `bun:"retry_policy,type:jsonb"`
	StartToCloseTimeout int64      `bun:"start_to_close_timeout,notnull,default:0"`
	HeartbeatTimeout    int64      `bun:"heartbeat_timeout,notnull,default:0"`
	LastError           string     `bun:"last_error"`
	Result              []byte     `bun:"result,type:bytea"`
	ScopeAppID          string     `bun:"scope_app_id"`
	ScopeOrgID          string     `bun:"scope_org_id"`
	WorkerID            string     `bun:"worker_id"`
	RunAt               time.Time  `bun:"run_at,notnull"`
	StartedAt           *time.Time `bun:"started_at"`
	CompletedAt         *time.Time `bun:"completed_at"`
	HeartbeatAt         *time.Time `bun:"heartbeat_at"`
	CreatedAt           time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toTaskModel(t *activity.Task) (*taskModel, error) {
	policy, err := json.Marshal(t.RetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: encode retry policy: %w", err)
	}
	return &taskModel{
		ID:                  t.ID.String(),
		RunID:               t.RunID.String(),
		ExecutionID:         t.ExecutionID.String(),
		Name:                t.Name,
		TaskQueue:           t.TaskQueue,
		Input:               t.Input,
		State:               string(t.State),
		ScheduledSeq:        t.ScheduledSeq,
		Attempt:             t.Attempt,
		RetryPolicy:         policy,
		StartToCloseTimeout: t.StartToCloseTimeout.Nanoseconds(),
		HeartbeatTimeout:    t.HeartbeatTimeout.Nanoseconds(),
		LastError:           t.LastError,
		Result:              t.Result,
		ScopeAppID:          t.ScopeAppID,
		ScopeOrgID:          t.ScopeOrgID,
		WorkerID:            optionalIDString(t.WorkerID),
		RunAt:               t.RunAt,
		StartedAt:           t.StartedAt,
		CompletedAt:         t.CompletedAt,
		HeartbeatAt:         t.HeartbeatAt,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}, nil
}

func fromTaskModel(m *taskModel) (*activity.Task, error) {
	t := &activity.Task{
		Entity: replay.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Name:                m.Name,
		TaskQueue:           m.TaskQueue,
		Input:               m.Input,
		State:               activity.State(m.State),
		ScheduledSeq:        m.ScheduledSeq,
		Attempt:             m.Attempt,
		StartToCloseTimeout: time.Duration(m.StartToCloseTimeout),
		HeartbeatTimeout:    time.Duration(m.HeartbeatTimeout),
		LastError:           m.LastError,
		Result:              m.Result,
		ScopeAppID:          m.ScopeAppID,
		ScopeOrgID:          m.ScopeOrgID,
		RunAt:               m.RunAt,
		StartedAt:           m.StartedAt,
		CompletedAt:         m.CompletedAt,
		HeartbeatAt:         m.HeartbeatAt,
	}

	if len(m.RetryPolicy) > 0 {
		var policy backoff.Policy
		if err := json.Unmarshal(m.RetryPolicy, &policy); err != nil {
			return nil, fmt.Errorf("replay/bun: decode retry policy: %w", err)
		}
		t.RetryPolicy = policy
	}

	var err error
	if t.ID, err = id.ParseActivityID(m.ID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse task id %q: %w", m.ID, err)
	}
	if t.RunID, err = id.ParseRunID(m.RunID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse run id %q: %w", m.RunID, err)
	}
	if t.ExecutionID, err = id.ParseExecutionID(m.ExecutionID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	if t.WorkerID, err = parseOptionalID(m.WorkerID, id.ParseWorkerID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse worker id %q: %w", m.WorkerID, err)
	}
	return t, nil
}

// ── Timer model ───────────────────────────────────────────────────

type timerModel struct {
	bun.BaseModel `bun:"table:replay_timers"`

	ID           string     `bun:"id,pk"`
	RunID        string     `bun:"run_id,notnull"`
	ExecutionID  string     `bun:"execution_id,notnull"`
	ScheduledSeq int64      `bun:"scheduled_seq,notnull"`
	FireAt       time.Time  `bun:"fire_at,notnull"`
	State        string     `bun:"state,notnull,default:'pending'"`
	FiredAt      *time.Time `bun:"fired_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toTimerModel(t *timer.Timer) *timerModel {
	return &timerModel{
		ID:           t.ID.String(),
		RunID:        t.RunID.String(),
		ExecutionID:  t.ExecutionID.String(),
		ScheduledSeq: t.ScheduledSeq,
		FireAt:       t.FireAt,
		State:        string(t.State),
		FiredAt:      t.FiredAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fromTimerModel(m *timerModel) (*timer.Timer, error) {
	t := &timer.Timer{
		Entity: replay.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ScheduledSeq: m.ScheduledSeq,
		FireAt:       m.FireAt,
		State:        timer.State(m.State),
		FiredAt:      m.FiredAt,
	}

	var err error
	if t.ID, err = id.ParseTimerID(m.ID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse timer id %q: %w", m.ID, err)
	}
	if t.RunID, err = id.ParseRunID(m.RunID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse run id %q: %w", m.RunID, err)
	}
	if t.ExecutionID, err = id.ParseExecutionID(m.ExecutionID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	return t, nil
}

// ── Signal model ──────────────────────────────────────────────────

type signalModel struct {
	bun.BaseModel `bun:"table:replay_signals"`

	ID          string    `bun:"id,pk"`
	ExecutionID string    `bun:"execution_id,notnull"`
	RunID       string    `bun:"run_id,notnull"`
	Name        string    `bun:"name,notnull"`
	Payload     []byte    `bun:"payload,type:bytea"`
	Seq         int64     `bun:"seq,notnull"`
	Consumed    bool      `bun:"consumed,notnull,default:false"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toSignalModel(sg *signal.Signal) *signalModel {
	return &signalModel{
		ID:          sg.ID.String(),
		ExecutionID: sg.ExecutionID.String(),
		RunID:       sg.RunID.String(),
		Name:        sg.Name,
		Payload:     sg.Payload,
		Seq:         sg.Seq,
		Consumed:    sg.Consumed,
		CreatedAt:   sg.CreatedAt,
	}
}

func fromSignalModel(m *signalModel) (*signal.Signal, error) {
	sg := &signal.Signal{
		Name:      m.Name,
		Payload:   m.Payload,
		Seq:       m.Seq,
		Consumed:  m.Consumed,
		CreatedAt: m.CreatedAt,
	}

	var err error
	if sg.ID, err = id.ParseSignalID(m.ID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse signal id %q: %w", m.ID, err)
	}
	if sg.ExecutionID, err = id.ParseExecutionID(m.ExecutionID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	if sg.RunID, err = id.ParseRunID(m.RunID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse run id %q: %w", m.RunID, err)
	}
	return sg, nil
}

// ── Schedule model ────────────────────────────────────────────────

type scheduleModel struct {
	bun.BaseModel `bun:"table:replay_schedules"`

	ID          string     `bun:"id,pk"`
	Name        string     `bun:"name,notnull,unique"`
	Spec        string     `bun:"spec,notnull"`
	Workflow    string     `bun:"workflow,notnull"`
	TaskQueue   string     `bun:"task_queue"`
	Input       []byte     `bun:"input,type:bytea"`
	ScopeAppID  string     `bun:"scope_app_id"`
	ScopeOrgID  string     `bun:"scope_org_id"`
	LastFiredAt *time.Time `bun:"last_fired_at"`
	NextFireAt  *time.Time `bun:"next_fire_at"`
	LockedBy    string     `bun:"locked_by"`
	LockedUntil *time.Time `bun:"locked_until"`
	Enabled     bool       `bun:"enabled,notnull,default:true"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toScheduleModel(sc *schedule.Schedule) *scheduleModel {
	return &scheduleModel{
		ID:          sc.ID.String(),
		Name:        sc.Name,
		Spec:        sc.Spec,
		Workflow:    sc.Workflow,
		TaskQueue:   sc.TaskQueue,
		Input:       sc.Input,
		ScopeAppID:  sc.ScopeAppID,
		ScopeOrgID:  sc.ScopeOrgID,
		LastFiredAt: sc.LastFiredAt,
		NextFireAt:  sc.NextFireAt,
		LockedBy:    sc.LockedBy,
		LockedUntil: sc.LockedUntil,
		Enabled:     sc.Enabled,
		CreatedAt:   sc.CreatedAt,
		UpdatedAt:   sc.UpdatedAt,
	}
}

func fromScheduleModel(m *scheduleModel) (*schedule.Schedule, error) {
	sc := &schedule.Schedule{
		Entity: replay.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Name:        m.Name,
		Spec:        m.Spec,
		Workflow:    m.Workflow,
		TaskQueue:   m.TaskQueue,
		Input:       m.Input,
		ScopeAppID:  m.ScopeAppID,
		ScopeOrgID:  m.ScopeOrgID,
		LastFiredAt: m.LastFiredAt,
		NextFireAt:  m.NextFireAt,
		LockedBy:    m.LockedBy,
		LockedUntil: m.LockedUntil,
		Enabled:     m.Enabled,
	}

	var err error
	if sc.ID, err = id.ParseScheduleID(m.ID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse schedule id %q: %w", m.ID, err)
	}
	return sc, nil
}

// ── DLQ entry model ───────────────────────────────────────────────

type dlqModel struct {
	bun.BaseModel `bun:"table:replay_dlq"`

	ID          string     `bun:"id,pk"`
	TaskID      string     `bun:"task_id,notnull"`
	RunID       string     `bun:"run_id,notnull"`
	ExecutionID string     `bun:"execution_id,notnull"`
	Activity    string     `bun:"activity,notnull"`
	TaskQueue   string     `bun:"task_queue,notnull"`
	Input       []byte     `bun:"input,type:bytea"`
	Error       string     `bun:"error"`
	ErrorType   string     `bun:"error_type"`
	Attempts    int        `bun:"attempts,notnull,default:0"`
	MaxAttempts int        `bun:"max_attempts,notnull,default:0"`
	ScopeAppID  string     `bun:"scope_app_id"`
	ScopeOrgID  string     `bun:"scope_org_id"`
	FailedAt    time.Time  `bun:"failed_at,notnull"`
	RedrivenAt  *time.Time `bun:"redriven_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func toDLQModel(e *dlq.Entry) *dlqModel {
	return &dlqModel{
		ID:          e.ID.String(),
		TaskID:      e.TaskID.String(),
		RunID:       e.RunID.String(),
		ExecutionID: e.ExecutionID.String(),
		Activity:    e.Activity,
		TaskQueue:   e.TaskQueue,
		Input:       e.Input,
		Error:       e.Error,
		ErrorType:   e.ErrorType,
		Attempts:    e.Attempts,
		MaxAttempts: e.MaxAttempts,
		ScopeAppID:  e.ScopeAppID,
		ScopeOrgID:  e.ScopeOrgID,
		FailedAt:    e.FailedAt,
		RedrivenAt:  e.RedrivenAt,
		CreatedAt:   e.CreatedAt,
	}
}

func fromDLQModel(m *dlqModel) (*dlq.Entry, error) {
	e := &dlq.Entry{
		Activity:    m.Activity,
		TaskQueue:   m.TaskQueue,
		Input:       m.Input,
		Error:       m.Error,
		ErrorType:   m.ErrorType,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		ScopeAppID:  m.ScopeAppID,
		ScopeOrgID:  m.ScopeOrgID,
		FailedAt:    m.FailedAt,
		RedrivenAt:  m.RedrivenAt,
		CreatedAt:   m.CreatedAt,
	}

	var err error
	if e.ID, err = id.ParseDLQID(m.ID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse dlq id %q: %w", m.ID, err)
	}
	if e.TaskID, err = id.ParseActivityID(m.TaskID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse task id %q: %w", m.TaskID, err)
	}
	if e.RunID, err = id.ParseRunID(m.RunID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse run id %q: %w", m.RunID, err)
	}
	if e.ExecutionID, err = id.ParseExecutionID(m.ExecutionID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	return e, nil
}

// ── Worker model ──────────────────────────────────────────────────

type workerModel struct {
	bun.BaseModel `bun:"table:replay_workers"`

	ID          string     `bun:"id,pk"`
	Hostname    string     `bun:"hostname,notnull"`
	Queues      []byte     `bun:"queues,type:jsonb"`
	Concurrency int        `bun:"concurrency,notnull,default:0"`
	State       string     `bun:"state,notnull"`
	Metadata    []byte     `bun:"metadata,type:jsonb"`
	LastSeen    time.Time  `bun:"last_seen,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

func toWorkerModel(w *cluster.Worker) (*workerModel, error) {
	queues, err := json.Marshal(w.Queues)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: encode worker queues: %w", err)
	}
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: encode worker metadata: %w", err)
	}
	return &workerModel{
		ID:          w.ID.String(),
		Hostname:    w.Hostname,
		Queues:      queues,
		Concurrency: w.Concurrency,
		State:       string(w.State),
		Metadata:    meta,
		LastSeen:    w.LastSeen,
		CreatedAt:   w.CreatedAt,
	}, nil
}

func fromWorkerModel(m *workerModel) (*cluster.Worker, error) {
	w := &cluster.Worker{
		Hostname:    m.Hostname,
		Concurrency: m.Concurrency,
		State:       cluster.WorkerState(m.State),
		LastSeen:    m.LastSeen,
		CreatedAt:   m.CreatedAt,
	}

	if len(m.Queues) > 0 {
		if err := json.Unmarshal(m.Queues, &w.Queues); err != nil {
			return nil, fmt.Errorf("replay/bun: decode worker queues: %w", err)
		}
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &w.Metadata); err != nil {
			return nil, fmt.Errorf("replay/bun: decode worker metadata: %w", err)
		}
	}

	var err error
	if w.ID, err = id.ParseWorkerID(m.ID); err != nil {
		return nil, fmt.Errorf("replay/bun: parse worker id %q: %w", m.ID, err)
	}
	return w, nil
}

// ── Leadership model ──────────────────────────────────────────────

// leadershipModel is the singleton cluster leadership lease row.
type leadershipModel struct {
	bun.BaseModel `bun:"table:replay_leadership"`

	Singleton  bool      `bun:"singleton,pk"`
	WorkerID   string    `bun:"worker_id,notnull"`
	LeaseUntil time.Time `bun:"lease_until,notnull"`
}
