package redis

// Redis key naming conventions for replay data.
// All keys are prefixed with "replay:" to avoid collisions.

const keyPrefix = "replay:"

// ── Run keys ──

// runKey returns the key for a run entity: replay:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// runIDsKey is the Set tracking all run IDs for enumeration.
const runIDsKey = keyPrefix + "run_ids"

// executionRunsKey returns the Sorted Set of run IDs for an execution,
// scored by start time: replay:exec_runs:{executionID}
func executionRunsKey(executionID string) string {
	return keyPrefix + "exec_runs:" + executionID
}

// ── History keys ──

// historyKey returns the List holding a run's journal: replay:history:{runID}
// Event seq N lives at list index N-1, so LLEN doubles as the latest seq.
func historyKey(runID string) string { return keyPrefix + "history:" + runID }

// ── Task keys ──

// taskKey returns the key for a task entity: replay:task:{id}
func taskKey(id string) string { return keyPrefix + "task:" + id }

// taskQueueKey returns the Sorted Set for a queue's ready tasks, scored by
// run_at: replay:taskq:{name}
func taskQueueKey(name string) string { return keyPrefix + "taskq:" + name }

// taskIDsKey is the Set tracking all task IDs for enumeration.
const taskIDsKey = keyPrefix + "task_ids"

// taskQueuesKey is the Set tracking all known queue names.
const taskQueuesKey = keyPrefix + "task_queues"

// runningTasksKey is the Set of task IDs currently leased by workers.
const runningTasksKey = keyPrefix + "tasks_running"

// runTasksKey returns the Set of task IDs belonging to a run.
func runTasksKey(runID string) string { return keyPrefix + "run_tasks:" + runID }

// ── Timer keys ──

// timerKey returns the key for a timer entity: replay:timer:{id}
func timerKey(id string) string { return keyPrefix + "timer:" + id }

// dueTimersKey is the Sorted Set of pending timer IDs scored by fire_at.
const dueTimersKey = keyPrefix + "timers_due"

// runTimersKey returns the Set of timer IDs belonging to a run.
func runTimersKey(runID string) string { return keyPrefix + "run_timers:" + runID }

// ── Signal keys ──

// signalKey returns the key for a signal entity: replay:signal:{id}
func signalKey(id string) string { return keyPrefix + "signal:" + id }

// runSignalsKey returns the Sorted Set of signal IDs buffered for a run,
// scored by history seq so consumption follows delivery order.
func runSignalsKey(runID string) string { return keyPrefix + "run_signals:" + runID }

// ── Schedule keys ──

// scheduleKey returns the key for a schedule entity: replay:schedule:{id}
func scheduleKey(id string) string { return keyPrefix + "schedule:" + id }

// scheduleIDsKey is the Set tracking all schedule IDs for enumeration.
const scheduleIDsKey = keyPrefix + "schedule_ids"

// scheduleNamesKey maps schedule names to IDs for duplicate detection.
const scheduleNamesKey = keyPrefix + "schedule_names"

// ── DLQ keys ──

// dlqKey returns the key for a DLQ entry entity: replay:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqByTimeKey is the Sorted Set of DLQ entry IDs scored by failed_at.
const dlqByTimeKey = keyPrefix + "dlq_by_time"

// ── Cluster keys ──

// workerKey returns the key for a worker entity: replay:worker:{id}
func workerKey(id string) string { return keyPrefix + "worker:" + id }

// workerIDsKey is the Set tracking all worker IDs for enumeration.
const workerIDsKey = keyPrefix + "worker_ids"

// leaderKey stores the current leader worker ID with a TTL lease.
const leaderKey = keyPrefix + "leader"
