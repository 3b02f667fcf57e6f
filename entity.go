package replay

import "time"

// Entity carries the common persistence timestamps embedded by all Replay
// entity types (runs, activity tasks, timers, schedule entries, workers).
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity stamped with the current time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch updates the UpdatedAt timestamp to the current time.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
