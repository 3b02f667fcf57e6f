// Package postgres provides a PostgreSQL-backed store for the replay
// runtime, built on pgx/v5. Task dequeue uses FOR UPDATE SKIP LOCKED,
// history appends run in a transaction guarded by a (run_id, seq) unique
// constraint, and leader election uses a singleton lease row.
package postgres
