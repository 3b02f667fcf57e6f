// Package sqlite provides a SQLite-backed store for the replay runtime,
// built on the CGO-free modernc driver. Timestamps are stored as unix
// nanoseconds. Suited to single-node deployments, embedded use, and
// tests that need durable state without a database server.
package sqlite
