// Package cluster provides distributed worker coordination, leader election,
// worker registration, and recovery of work stranded on dead workers.
//
// When running multiple runtime instances, the cluster package coordinates
// which instance is the leader (responsible for schedule firing, timer
// dispatch, and stale-task recovery) and which are followers.
//
// # Worker Entity
//
// Each running instance registers itself as a [Worker] with:
//   - a unique [id.WorkerID]
//   - its hostname
//   - the list of task queues it polls
//   - its concurrency limit
//   - a state: [WorkerActive], [WorkerDraining], or [WorkerDead]
//
// Workers send periodic heartbeats. If a heartbeat is not received within
// the configured threshold, the worker is considered dead and its in-flight
// activity tasks are eligible for reassignment.
//
// # Leader Election
//
// One worker at a time holds leadership. The leader:
//   - fires schedule entries
//   - drives the durable timer service
//   - reclaims stale activity tasks from dead workers
//
// Leadership is managed by [Store.AcquireLeadership] using optimistic locking.
// If leadership is lost mid-operation, [replay.ErrLeadershipLost] is returned.
//
// # Kubernetes Consensus
//
// For K8s deployments use the cluster/k8s sub-package which implements the
// Store contract on Pod annotations and the coordination/v1 Lease API.
package cluster
