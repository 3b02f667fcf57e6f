// Package queue defines the task queue abstraction with per-queue and
// per-tenant rate limiting and concurrency caps.
//
// Queues are named channels that group related activity tasks. Tasks carry
// a TaskQueue field that determines which queue they belong to; the worker
// pool polls the queues it was configured with.
//
// # Per-Queue Configuration
//
// Use [Config] to set per-queue rate limits and concurrency caps:
//
//	queue.Config{
//	    Name:           "email",
//	    MaxConcurrency: 5,      // max 5 concurrent email tasks
//	    RateLimit:      10,     // max 10 tasks/s dequeued from this queue
//	    RateBurst:      20,
//	}
//
// # Per-Tenant Limits
//
// [TenantConfig] layers tenant-scoped limits on top of a queue, keyed by
// the task's ScopeOrgID, so one noisy tenant cannot starve the rest of a
// shared queue:
//
//	queue.TenantConfig{
//	    Queue:          "email",
//	    TenantID:       "org_acme",
//	    RateLimit:      2,
//	    MaxConcurrency: 1,
//	}
//
// The worker pool calls [Manager.Acquire] before executing a leased task
// and [Manager.Release] when it finishes:
//
//	if mgr.Acquire(t.TaskQueue, t.ScopeOrgID) {
//	    defer mgr.Release(t.TaskQueue, t.ScopeOrgID)
//	    // execute the task
//	}
package queue
