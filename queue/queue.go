// Package queue enforces per-queue and per-tenant dequeue limits for the
// worker pool: token-bucket rate limits and in-flight concurrency caps.
package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config sets the limits for one task queue.
type Config struct {
	// Name matches TaskQueue on scheduled tasks.
	Name string

	// MaxConcurrency caps tasks from this queue running at once on the
	// local pool. Zero leaves only the pool-wide cap in effect.
	MaxConcurrency int

	// RateLimit is the sustained dequeue rate in tasks per second.
	// Zero disables rate limiting for the queue.
	RateLimit float64

	// RateBurst sizes the token bucket. Treated as 1 when RateLimit is
	// set and RateBurst is not.
	RateBurst int
}

// queueState holds the live limiter and in-flight count for one queue.
type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager answers whether a dequeued task may start, given the limits
// configured for its queue and tenant. Safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	queues  map[string]*queueState
	tenants map[string]*tenantState
}

// NewManager builds a Manager from the given queue configurations.
// Unconfigured queues run unrestricted.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		queues:  make(map[string]*queueState, len(configs)),
		tenants: make(map[string]*tenantState),
	}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newQueueState(cfg)
	}
	return m
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return qs
}

// Acquire reports whether a task on the given queue and tenant may start
// now. A true return counts the task as in flight; the caller must pair
// it with Release when the task finishes.
func (m *Manager) Acquire(queue, tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs != nil {
		if qs.limiter != nil && !qs.limiter.Allow() {
			return false
		}
		if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
			return false
		}
	}

	if tenantID != "" {
		if ts := m.tenants[tenantKey(queue, tenantID)]; ts != nil {
			if ts.limiter != nil && !ts.limiter.Allow() {
				return false
			}
			if ts.maxConcurrency > 0 && ts.active >= ts.maxConcurrency {
				return false
			}
			ts.active++
		}
	}

	if qs != nil {
		qs.active++
	}

	return true
}

// Release returns the in-flight slot taken by Acquire.
func (m *Manager) Release(queue, tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qs := m.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}

	if tenantID != "" {
		if ts := m.tenants[tenantKey(queue, tenantID)]; ts != nil && ts.active > 0 {
			ts.active--
		}
	}
}

// SetQueueConfig installs or replaces a queue's limits at runtime.
// The in-flight count carries over so running tasks stay accounted for.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := newQueueState(cfg)
	if existing := m.queues[cfg.Name]; existing != nil {
		qs.active = existing.active
	}
	m.queues[cfg.Name] = qs
}

// ActiveCount returns how many tasks from the queue are in flight.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
