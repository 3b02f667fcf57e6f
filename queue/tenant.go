package queue

import (
	"fmt"

	"golang.org/x/time/rate"
)

// TenantConfig sets limits for one tenant on one queue. The tenant is
// identified by the task's ScopeOrgID.
type TenantConfig struct {
	// QueueName is the queue the limits apply to.
	QueueName string

	// TenantID is the owning tenant, usually the task's ScopeOrgID.
	TenantID string

	// RateLimit is the tenant's sustained dequeue rate in tasks per second.
	RateLimit float64

	// RateBurst sizes the tenant's token bucket.
	RateBurst int

	// MaxConcurrency caps the tenant's in-flight tasks on this queue.
	// Zero means the queue-level cap alone applies.
	MaxConcurrency int
}

// tenantState holds the live limiter and in-flight count for one
// queue+tenant pair.
type tenantState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

func tenantKey(queue, tenantID string) string {
	return fmt.Sprintf("%s:%s", queue, tenantID)
}

// SetTenantConfig installs or replaces a tenant's limits on a queue.
// The in-flight count carries over so running tasks stay accounted for.
func (m *Manager) SetTenantConfig(cfg TenantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantKey(cfg.QueueName, cfg.TenantID)

	ts := &tenantState{maxConcurrency: cfg.MaxConcurrency}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if existing := m.tenants[key]; existing != nil {
		ts.active = existing.active
	}
	m.tenants[key] = ts
}

// TenantActiveCount returns how many of the tenant's tasks on the queue
// are in flight.
func (m *Manager) TenantActiveCount(queue, tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.tenants[tenantKey(queue, tenantID)]; ts != nil {
		return ts.active
	}
	return 0
}
