package audit

import (
	"context"
	"sync"
)

// Log is an in-memory Recorder. It keeps every entry in order of
// arrival and is safe for concurrent use. Useful for tests and for
// single-node deployments that expose the trail over the API.
type Log struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewLog creates an empty in-memory audit log.
func NewLog() *Log {
	return &Log{}
}

// Record implements Recorder.
func (l *Log) Record(_ context.Context, entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a snapshot of all recorded entries.
func (l *Log) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
