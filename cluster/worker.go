package cluster

import (
	"time"

	"github.com/xraph/replay/id"
)

// WorkerState is the lifecycle phase of a cluster worker.
type WorkerState string

const (
	// WorkerActive: heartbeating and pulling activity tasks.
	WorkerActive WorkerState = "active"
	// WorkerDraining: shutting down gracefully, finishing in-flight
	// tasks without dequeuing new ones.
	WorkerDraining WorkerState = "draining"
	// WorkerDead: heartbeats stopped; its leased tasks are eligible
	// for reassignment.
	WorkerDead WorkerState = "dead"
)

// Worker is one runtime process participating in the cluster.
type Worker struct {
	ID          id.WorkerID       `json:"id"`
	Hostname    string            `json:"hostname"`
	Queues      []string          `json:"queues"`
	Concurrency int               `json:"concurrency"`
	State       WorkerState       `json:"state"`
	IsLeader    bool              `json:"is_leader"`
	LeaderUntil *time.Time        `json:"leader_until,omitempty"`
	LastSeen    time.Time         `json:"last_seen"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
