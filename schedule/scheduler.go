package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/id"
)

// StartFunc is the callback the scheduler uses to start workflow
// executions. This breaks the import cycle: the engine provides the
// implementation.
type StartFunc func(ctx context.Context, workflow string, input []byte, taskQueue string) (id.ExecutionID, error)

// Emitter emits schedule lifecycle events.
// hook.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, scheduleName string, execID id.ExecutionID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due schedules.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLockTTL sets the TTL for per-schedule distributed locks.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// WithLeaderTTL sets the TTL for leader election.
func WithLeaderTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.leaderTTL = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSpec parses a cron expression and returns the schedule.
// Exported for use by engine.RegisterSchedule.
func ParseSpec(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler fires due schedules on a tick loop. Only the cluster leader
// executes ticks to prevent double-firing.
type Scheduler struct {
	store        Store
	clusterStore cluster.Store
	start        StartFunc
	emitter      Emitter
	workerID     id.WorkerID
	logger       *slog.Logger

	tickInterval time.Duration
	lockTTL      time.Duration
	leaderTTL    time.Duration

	// parsed caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	store Store,
	clusterStore cluster.Store,
	start StartFunc,
	emitter Emitter,
	workerID id.WorkerID,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		clusterStore: clusterStore,
		start:        start,
		emitter:      emitter,
		workerID:     workerID,
		logger:       logger,
		tickInterval: 1 * time.Second,
		lockTTL:      30 * time.Second,
		leaderTTL:    15 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the leader election and tick goroutines.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(2)
	go s.leaderLoop()
	go s.tickLoop()
	s.logger.Info("scheduler started",
		slog.String("worker_id", s.workerID.String()),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for goroutines to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// leaderLoop continuously attempts to acquire or renew leadership.
func (s *Scheduler) leaderLoop() {
	defer s.wg.Done()

	renewInterval := s.leaderTTL / 2
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	// Try once immediately at start.
	s.tryLeadership()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tryLeadership()
		}
	}
}

func (s *Scheduler) tryLeadership() {
	ctx := context.Background()

	// Try to renew first (cheap if already leader).
	renewed, err := s.clusterStore.RenewLeadership(ctx, s.workerID, s.leaderTTL)
	if err != nil {
		s.logger.Warn("leadership renew error", slog.String("error", err.Error()))
		return
	}
	if renewed {
		return
	}

	// Not leader yet; try to acquire.
	acquired, err := s.clusterStore.AcquireLeadership(ctx, s.workerID, s.leaderTTL)
	if err != nil {
		s.logger.Warn("leadership acquire error", slog.String("error", err.Error()))
		return
	}
	if acquired {
		s.logger.Info("acquired scheduler leadership", slog.String("worker_id", s.workerID.String()))
	}
}

// tickLoop fires on each tick interval and processes due schedules.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	leader, err := s.clusterStore.GetLeader(ctx)
	if err != nil {
		s.logger.Warn("get leader error", slog.String("error", err.Error()))
		return
	}
	if leader == nil || leader.ID.String() != s.workerID.String() {
		return // Not the leader; skip.
	}

	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		s.logger.Error("list schedules error", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, sc := range schedules {
		if !sc.Enabled {
			continue
		}
		if sc.NextFireAt == nil || sc.NextFireAt.After(now) {
			continue
		}
		s.fire(ctx, sc, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, sc *Schedule, now time.Time) {
	acquired, err := s.store.AcquireScheduleLock(ctx, sc.ID, s.workerID, s.lockTTL)
	if err != nil {
		s.logger.Error("acquire schedule lock error",
			slog.String("schedule_id", sc.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another worker got it.
	}

	execID, startErr := s.start(ctx, sc.Workflow, sc.Input, sc.TaskQueue)
	if startErr != nil {
		s.logger.Error("schedule start error",
			slog.String("schedule_name", sc.Name),
			slog.String("workflow", sc.Workflow),
			slog.String("error", startErr.Error()),
		)
		if relErr := s.store.ReleaseScheduleLock(ctx, sc.ID, s.workerID); relErr != nil {
			s.logger.Error("release schedule lock error",
				slog.String("schedule_id", sc.ID.String()),
				slog.String("error", relErr.Error()),
			)
		}
		return
	}

	if updateErr := s.store.UpdateScheduleLastFired(ctx, sc.ID, now); updateErr != nil {
		s.logger.Error("update schedule last fired error",
			slog.String("schedule_id", sc.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}

	// Compute and persist NextFireAt.
	parsed, parseErr := s.getOrParseSpec(sc.Spec)
	if parseErr != nil {
		s.logger.Error("parse schedule spec error",
			slog.String("schedule_name", sc.Name),
			slog.String("spec", sc.Spec),
			slog.String("error", parseErr.Error()),
		)
	} else {
		next := parsed.Next(now)
		sc.NextFireAt = &next
		if updateErr := s.store.UpdateSchedule(ctx, sc); updateErr != nil {
			s.logger.Error("update schedule next fire error",
				slog.String("schedule_id", sc.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
	}

	if relErr := s.store.ReleaseScheduleLock(ctx, sc.ID, s.workerID); relErr != nil {
		s.logger.Error("release schedule lock error",
			slog.String("schedule_id", sc.ID.String()),
			slog.String("error", relErr.Error()),
		)
	}

	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, sc.Name, execID)
	}

	s.logger.Info("schedule fired",
		slog.String("schedule_name", sc.Name),
		slog.String("workflow", sc.Workflow),
		slog.String("execution_id", execID.String()),
	)
}

// getOrParseSpec caches parsed cron expressions.
func (s *Scheduler) getOrParseSpec(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	parsed, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return parsed, nil
	}

	parsed, err := ParseSpec(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = parsed
	s.parsedMu.Unlock()
	return parsed, nil
}
