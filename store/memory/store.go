package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/replay"
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

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
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

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	runs      map[string]*workflow.Run
	histories map[string][]*history.Event // key: run ID, Seq order
	tasks     map[string]*activity.Task
	timers    map[string]*timer.Timer
	signals   map[string][]*signal.Signal // key: run ID, Seq order
	schedules map[string]*schedule.Schedule
	dlqs      map[string]*dlq.Entry
	workers   map[string]*cluster.Worker

	// leader tracks the current cluster leader worker ID string.
	leader      string
	leaderUntil time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:      make(map[string]*workflow.Run),
		histories: make(map[string][]*history.Event),
		tasks:     make(map[string]*activity.Task),
		timers:    make(map[string]*timer.Timer),
		signals:   make(map[string][]*signal.Signal),
		schedules: make(map[string]*schedule.Schedule),
		dlqs:      make(map[string]*dlq.Entry),
		workers:   make(map[string]*cluster.Worker),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow Store
// ──────────────────────────────────────────────────

// CreateRun persists a new run.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return replay.ErrDuplicateRun
	}

	// At most one open run per execution lineage. Continue-as-new closes
	// the predecessor before creating its successor, so only a competing
	// start can trip this.
	if run.State.Open() {
		for _, existing := range m.runs {
			if existing.ExecutionID == run.ExecutionID && existing.State.Open() {
				return &replay.AlreadyStartedError{
					ExecutionID: run.ExecutionID,
					RunID:       existing.ID,
				}
			}
		}
	}

	cp := *run
	m.runs[key] = &cp
	return nil
}

// GetRun retrieves a run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, replay.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateRun persists changes to an existing run.
func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, ok := m.runs[key]; !ok {
		return replay.ErrRunNotFound
	}
	cp := *run
	cp.UpdatedAt = time.Now().UTC()
	m.runs[key] = &cp
	return nil
}

// LatestRun returns the most recent run of an execution lineage.
func (m *Store) LatestRun(_ context.Context, executionID id.ExecutionID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *workflow.Run
	for _, r := range m.runs {
		if r.ExecutionID != executionID {
			continue
		}
		if latest == nil || r.StartedAt.After(latest.StartedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, replay.ErrExecutionNotFound
	}
	cp := *latest
	return &cp, nil
}

// RunsForExecution returns the full lineage of an execution, oldest first.
func (m *Store) RunsForExecution(_ context.Context, executionID id.ExecutionID) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*workflow.Run
	for _, r := range m.runs {
		if r.ExecutionID != executionID {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	if len(result) == 0 {
		return nil, replay.ErrExecutionNotFound
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].StartedAt.Before(result[k].StartedAt)
	})
	return result, nil
}

// ListRuns returns runs matching the given options.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Name != "" && r.Name != opts.Name {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// ListOpenRuns returns all runs whose state is running or paused.
func (m *Store) ListOpenRuns(_ context.Context) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*workflow.Run
	for _, r := range m.runs {
		if !r.State.Open() {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].StartedAt.Before(result[k].StartedAt)
	})
	return result, nil
}

// ListChildRuns returns all child runs started by a parent run.
func (m *Store) ListChildRuns(_ context.Context, parentRunID id.RunID) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*workflow.Run
	for _, r := range m.runs {
		if r.ParentRunID != parentRunID {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].StartedAt.Before(result[k].StartedAt)
	})
	return result, nil
}

// DeleteRun removes a run record.
func (m *Store) DeleteRun(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runID.String()
	if _, ok := m.runs[key]; !ok {
		return replay.ErrRunNotFound
	}
	delete(m.runs, key)
	return nil
}

// ──────────────────────────────────────────────────
// History Store
// ──────────────────────────────────────────────────

// AppendEvents atomically appends events to the run's history, assigning
// consecutive Seq values starting at expectedNextSeq.
func (m *Store) AppendEvents(_ context.Context, runID id.RunID, expectedNextSeq int64, events []*history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runID.String()
	log := m.histories[key]
	nextSeq := int64(len(log)) + 1
	if expectedNextSeq != nextSeq {
		return replay.ErrHistoryConflict
	}

	for i, ev := range events {
		cp := *ev
		cp.Seq = nextSeq + int64(i)
		log = append(log, &cp)
		// Reflect the assigned Seq back to the caller's event.
		ev.Seq = cp.Seq
	}
	m.histories[key] = log
	return nil
}

// ListEvents returns events with Seq > afterSeq in Seq order.
func (m *Store) ListEvents(_ context.Context, runID id.RunID, afterSeq int64, limit int) ([]*history.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.histories[runID.String()]
	var result []*history.Event
	for _, ev := range log {
		if ev.Seq <= afterSeq {
			continue
		}
		cp := *ev
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// LatestSeq returns the highest Seq appended for the run.
func (m *Store) LatestSeq(_ context.Context, runID id.RunID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.histories[runID.String()])), nil
}

// DeleteHistory removes the run's entire history.
func (m *Store) DeleteHistory(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.histories, runID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Activity Task Store
// ──────────────────────────────────────────────────

// ScheduleTask persists a new task in scheduled state.
func (m *Store) ScheduleTask(_ context.Context, t *activity.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, exists := m.tasks[key]; exists {
		return replay.ErrDuplicateTask
	}
	cp := *t
	m.tasks[key] = &cp
	return nil
}

// DequeueTasks atomically leases up to limit due tasks from the given
// queues, sets them to running, and returns them.
func (m *Store) DequeueTasks(_ context.Context, queues []string, workerID id.WorkerID, limit int) ([]*activity.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*activity.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.State != activity.StateScheduled && t.State != activity.StateRetrying {
			continue
		}
		if !t.RunAt.IsZero() && t.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[t.TaskQueue]; !ok {
				continue
			}
		}
		candidates = append(candidates, t)
	}

	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*activity.Task, len(candidates))
	for i, t := range candidates {
		t.State = activity.StateRunning
		t.Attempt++
		t.WorkerID = workerID
		n := now
		t.StartedAt = &n
		hb := now
		t.HeartbeatAt = &hb
		// Return a copy so callers can mutate without racing with the store.
		cp := *t
		result[i] = &cp
	}
	return result, nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.ActivityID) (*activity.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, replay.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateTask persists changes to an existing task.
func (m *Store) UpdateTask(_ context.Context, t *activity.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, ok := m.tasks[key]; !ok {
		return replay.ErrTaskNotFound
	}
	cp := *t
	cp.UpdatedAt = time.Now().UTC()
	m.tasks[key] = &cp
	return nil
}

// DeleteTask removes a task by ID.
func (m *Store) DeleteTask(_ context.Context, taskID id.ActivityID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := taskID.String()
	if _, ok := m.tasks[key]; !ok {
		return replay.ErrTaskNotFound
	}
	delete(m.tasks, key)
	return nil
}

// ListTasksByState returns tasks matching the given state.
func (m *Store) ListTasksByState(_ context.Context, state activity.State, opts activity.ListOpts) ([]*activity.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*activity.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.State != state {
			continue
		}
		if opts.TaskQueue != "" && t.TaskQueue != opts.TaskQueue {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// ListTasksForRun returns all tasks belonging to a run, in ScheduledSeq order.
func (m *Store) ListTasksForRun(_ context.Context, runID id.RunID) ([]*activity.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*activity.Task
	for _, t := range m.tasks {
		if t.RunID != runID {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ScheduledSeq < result[k].ScheduledSeq
	})
	return result, nil
}

// HeartbeatTask updates the heartbeat timestamp for a running task.
func (m *Store) HeartbeatTask(_ context.Context, taskID id.ActivityID, _ id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return replay.ErrTaskNotFound
	}
	now := time.Now().UTC()
	t.HeartbeatAt = &now
	return nil
}

// ReapStaleTasks returns running tasks whose heartbeat or start-to-close
// deadline has lapsed.
func (m *Store) ReapStaleTasks(_ context.Context, defaultThreshold time.Duration) ([]*activity.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	var stale []*activity.Task
	for _, t := range m.tasks {
		if t.State != activity.StateRunning {
			continue
		}

		last := t.StartedAt
		if t.HeartbeatAt != nil {
			last = t.HeartbeatAt
		}
		hbExpired := last != nil && now.Sub(*last) > t.StaleAfter(defaultThreshold)

		deadline := t.Deadline()
		runTooLong := !deadline.IsZero() && now.After(deadline)

		if hbExpired || runTooLong {
			cp := *t
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// CancelTasksForRun transitions all non-terminal tasks of a run to
// cancelled and returns the affected tasks.
func (m *Store) CancelTasksForRun(_ context.Context, runID id.RunID) ([]*activity.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var affected []*activity.Task
	for _, t := range m.tasks {
		if t.RunID != runID || t.State.Terminal() {
			continue
		}
		t.State = activity.StateCancelled
		n := now
		t.CompletedAt = &n
		t.UpdatedAt = now
		cp := *t
		affected = append(affected, &cp)
	}

	sort.Slice(affected, func(i, k int) bool {
		return affected[i].ScheduledSeq < affected[k].ScheduledSeq
	})
	return affected, nil
}

// CountTasks returns the number of tasks matching the given options.
func (m *Store) CountTasks(_ context.Context, opts activity.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, t := range m.tasks {
		if opts.TaskQueue != "" && t.TaskQueue != opts.TaskQueue {
			continue
		}
		if opts.State != "" && t.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Timer Store
// ──────────────────────────────────────────────────

// CreateTimer persists a new pending timer.
func (m *Store) CreateTimer(_ context.Context, t *timer.Timer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.timers[t.ID.String()] = &cp
	return nil
}

// GetTimer retrieves a timer by ID.
func (m *Store) GetTimer(_ context.Context, timerID id.TimerID) (*timer.Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.timers[timerID.String()]
	if !ok {
		return nil, replay.ErrTimerNotFound
	}
	cp := *t
	return &cp, nil
}

// DueTimers returns pending timers with FireAt <= now, ordered by FireAt.
func (m *Store) DueTimers(_ context.Context, now time.Time, limit int) ([]*timer.Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*timer.Timer
	for _, t := range m.timers {
		if t.State != timer.StatePending {
			continue
		}
		if t.FireAt.After(now) {
			continue
		}
		cp := *t
		due = append(due, &cp)
	}

	sort.Slice(due, func(i, k int) bool {
		return due[i].FireAt.Before(due[k].FireAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// CompleteTimer transitions a pending timer to fired. Returns false when
// the timer is already fired or cancelled.
func (m *Store) CompleteTimer(_ context.Context, timerID id.TimerID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[timerID.String()]
	if !ok {
		return false, replay.ErrTimerNotFound
	}
	if t.State != timer.StatePending {
		return false, nil
	}
	now := time.Now().UTC()
	t.State = timer.StateFired
	t.FiredAt = &now
	return true, nil
}

// CancelTimersForRun transitions all pending timers of a run to cancelled.
func (m *Store) CancelTimersForRun(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.timers {
		if t.RunID != runID || t.State != timer.StatePending {
			continue
		}
		t.State = timer.StateCancelled
	}
	return nil
}

// DeleteTimersForRun removes all timers belonging to a run.
func (m *Store) DeleteTimersForRun(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, t := range m.timers {
		if t.RunID == runID {
			delete(m.timers, key)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Signal Store
// ──────────────────────────────────────────────────

// BufferSignal persists a received signal for later consumption.
func (m *Store) BufferSignal(_ context.Context, s *signal.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	key := s.RunID.String()
	m.signals[key] = append(m.signals[key], &cp)
	return nil
}

// NextSignal returns the oldest unconsumed signal with the given name for
// the run and marks it consumed.
func (m *Store) NextSignal(_ context.Context, runID id.RunID, name string) (*signal.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.signals[runID.String()] {
		if s.Consumed || s.Name != name {
			continue
		}
		s.Consumed = true
		cp := *s
		return &cp, nil
	}
	return nil, replay.ErrSignalNotFound
}

// PendingSignals returns all unconsumed signals for the run in Seq order.
func (m *Store) PendingSignals(_ context.Context, runID id.RunID, name string) ([]*signal.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*signal.Signal
	for _, s := range m.signals[runID.String()] {
		if s.Consumed {
			continue
		}
		if name != "" && s.Name != name {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].Seq < result[k].Seq
	})
	return result, nil
}

// TransferSignals reassigns all unconsumed signals from one run to another.
func (m *Store) TransferSignals(_ context.Context, fromRunID, toRunID id.RunID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey := fromRunID.String()
	toKey := toRunID.String()

	var kept []*signal.Signal
	moved := 0
	for _, s := range m.signals[fromKey] {
		if s.Consumed {
			kept = append(kept, s)
			continue
		}
		s.RunID = toRunID
		m.signals[toKey] = append(m.signals[toKey], s)
		moved++
	}

	if len(kept) == 0 {
		delete(m.signals, fromKey)
	} else {
		m.signals[fromKey] = kept
	}
	return moved, nil
}

// DeleteSignalsForRun removes all signals belonging to a run.
func (m *Store) DeleteSignalsForRun(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.signals, runID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// CreateSchedule persists a new schedule. Returns an error if the name
// already exists.
func (m *Store) CreateSchedule(_ context.Context, s *schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.schedules {
		if e.Name == s.Name {
			return replay.ErrDuplicateSchedule
		}
	}

	cp := *s
	m.schedules[s.ID.String()] = &cp
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (m *Store) GetSchedule(_ context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return nil, replay.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

// ListSchedules returns all schedules.
func (m *Store) ListSchedules(_ context.Context) ([]*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*schedule.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		cp := *s
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// AcquireScheduleLock attempts to acquire a distributed lock for a schedule.
func (m *Store) AcquireScheduleLock(_ context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return false, replay.ErrScheduleNotFound
	}

	now := time.Now().UTC()

	// If already locked by someone else and the lock hasn't expired, fail.
	if s.LockedBy != "" && s.LockedUntil != nil && s.LockedUntil.After(now) {
		if s.LockedBy != workerID.String() {
			return false, nil
		}
	}

	s.LockedBy = workerID.String()
	until := now.Add(ttl)
	s.LockedUntil = &until
	return true, nil
}

// ReleaseScheduleLock releases the distributed lock for a schedule.
func (m *Store) ReleaseScheduleLock(_ context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return replay.ErrScheduleNotFound
	}

	if s.LockedBy != workerID.String() {
		return nil // not holding the lock; no-op
	}

	s.LockedBy = ""
	s.LockedUntil = nil
	return nil
}

// UpdateScheduleLastFired records when a schedule last fired.
func (m *Store) UpdateScheduleLastFired(_ context.Context, scheduleID id.ScheduleID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return replay.ErrScheduleNotFound
	}
	s.LastFiredAt = &at
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateSchedule updates a schedule (Enabled, NextFireAt, etc.).
func (m *Store) UpdateSchedule(_ context.Context, s *schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := s.ID.String()
	existing, ok := m.schedules[key]
	if !ok {
		return replay.ErrScheduleNotFound
	}
	cp := *s
	cp.UpdatedAt = time.Now().UTC()
	// Lock fields are managed by Acquire/Release, not by updates.
	cp.LockedBy = existing.LockedBy
	cp.LockedUntil = existing.LockedUntil
	m.schedules[key] = &cp
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (m *Store) DeleteSchedule(_ context.Context, scheduleID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scheduleID.String()
	if _, ok := m.schedules[key]; !ok {
		return replay.ErrScheduleNotFound
	}
	delete(m.schedules, key)
	return nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a dead-lettered task entry to the queue.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns DLQ entries matching the given options.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.TaskQueue != "" && e.TaskQueue != opts.TaskQueue {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.Before(result[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, replay.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// RedriveDLQ marks a DLQ entry as redriven.
func (m *Store) RedriveDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return replay.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.RedrivenAt = &now
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Cluster Store
// ──────────────────────────────────────────────────

// RegisterWorker adds a new worker to the cluster registry.
func (m *Store) RegisterWorker(_ context.Context, w *cluster.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *w
	m.workers[w.ID.String()] = &cp
	return nil
}

// DeregisterWorker removes a worker from the cluster registry.
func (m *Store) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workerID.String()
	if _, ok := m.workers[key]; !ok {
		return replay.ErrWorkerNotFound
	}
	delete(m.workers, key)
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (m *Store) HeartbeatWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return replay.ErrWorkerNotFound
	}
	w.LastSeen = time.Now().UTC()
	return nil
}

// ListWorkers returns all registered workers.
func (m *Store) ListWorkers(_ context.Context) ([]*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		cp := *w
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ReapDeadWorkers returns workers whose last-seen timestamp is older than
// the given threshold.
func (m *Store) ReapDeadWorkers(_ context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var dead []*cluster.Worker
	for _, w := range m.workers {
		if w.LastSeen.Before(cutoff) {
			cp := *w
			dead = append(dead, &cp)
		}
	}
	return dead, nil
}

// AcquireLeadership attempts to become the cluster leader.
func (m *Store) AcquireLeadership(_ context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	wKey := workerID.String()

	// If there's already a live leader and it's not us, fail.
	if m.leader != "" && m.leaderUntil.After(now) && m.leader != wKey {
		return false, nil
	}

	m.leader = wKey
	m.leaderUntil = now.Add(ttl)

	if w, ok := m.workers[wKey]; ok {
		w.IsLeader = true
		until := m.leaderUntil
		w.LeaderUntil = &until
	}
	return true, nil
}

// RenewLeadership extends the leader's hold.
func (m *Store) RenewLeadership(_ context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wKey := workerID.String()
	if m.leader != wKey {
		return false, nil
	}

	m.leaderUntil = time.Now().UTC().Add(ttl)

	if w, ok := m.workers[wKey]; ok {
		until := m.leaderUntil
		w.LeaderUntil = &until
	}
	return true, nil
}

// GetLeader returns the current cluster leader, or nil if there is none.
func (m *Store) GetLeader(_ context.Context) (*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.leader == "" || m.leaderUntil.Before(time.Now().UTC()) {
		return nil, nil
	}

	w, ok := m.workers[m.leader]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}
