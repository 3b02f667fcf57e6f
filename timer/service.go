package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Firer receives due timers. The engine implements it: firing appends
// TimerFired to the owning run's history and wakes the run.
type Firer interface {
	FireTimer(ctx context.Context, t *Timer) error
}

// Service scans the timer store for due timers and hands them to the Firer.
// One service instance per process is enough; CompleteTimer is idempotent,
// so concurrent services on a shared store fire each timer once.
type Service struct {
	store      Store
	firer      Firer
	logger     *slog.Logger
	resolution time.Duration
	batchSize  int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ServiceOption configures a timer Service.
type ServiceOption func(*Service)

// WithResolution sets how often the service scans for due timers.
func WithResolution(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.resolution = d
		}
	}
}

// WithBatchSize caps how many timers one scan may fire.
func WithBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the structured logger for the service.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a timer service over the given store and firer.
func NewService(store Store, firer Firer, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		firer:      firer,
		logger:     slog.Default(),
		resolution: 250 * time.Millisecond,
		batchSize:  100,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scan loop.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop halts the scan loop and waits for it to finish.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Service) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Service) fireDue(ctx context.Context) {
	due, err := s.store.DueTimers(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		s.logger.Error("timer scan failed", slog.String("error", err.Error()))
		return
	}

	for _, t := range due {
		fired, err := s.store.CompleteTimer(ctx, t.ID)
		if err != nil {
			s.logger.Error("timer complete failed",
				slog.String("timer_id", t.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if !fired {
			// Lost the race to another service instance.
			continue
		}
		if err := s.firer.FireTimer(ctx, t); err != nil {
			s.logger.Error("timer fire failed",
				slog.String("timer_id", t.ID.String()),
				slog.String("run_id", t.RunID.String()),
				slog.String("error", err.Error()))
		}
	}
}
