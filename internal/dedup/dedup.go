// Package dedup implements the fingerprint store that gives at-most-once
// notification delivery.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Store records fingerprints of sent notifications.
type Store interface {
	// CheckAndInsert atomically records fp. Exactly one caller for a given
	// fingerprint gets true; every other caller, concurrent or later, gets
	// false until the fingerprint is evicted.
	CheckAndInsert(ctx context.Context, fp string, at time.Time) (bool, error)
	// EvictBefore removes fingerprints first sent before cutoff
	EvictBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Memory is a process-local Store
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory fingerprint store
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time)}
}

// CheckAndInsert records fp if it is not already present
func (m *Memory) CheckAndInsert(ctx context.Context, fp string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[fp]; ok {
		return false, nil
	}
	m.entries[fp] = at
	return true, nil
}

// EvictBefore removes entries older than cutoff
func (m *Memory) EvictBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for fp, at := range m.entries {
		if at.Before(cutoff) {
			delete(m.entries, fp)
			n++
		}
	}
	return n, nil
}

// Len returns the number of recorded fingerprints
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
