package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store remembers the last accepted submission per key.
//
// A zero time.Time means "no entry": Get returns it for unknown keys,
// CompareAndSwap with a zero old requires the key to be absent and a zero
// next deletes the key.
type Store interface {
	Get(ctx context.Context, key string) (time.Time, error)
	// CompareAndSwap sets key to next only if its current value is old.
	// ttl is a hint for stores that can expire entries on their own.
	CompareAndSwap(ctx context.Context, key string, old, next time.Time, ttl time.Duration) (bool, error)
	// Prune drops entries last set before cutoff and reports how many.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore keeps entries in process memory. It is the default for a
// single instance; entries only disappear through Prune.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, key string, old, next time.Time, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.entries[key]
	if ok != !old.IsZero() || (ok && !cur.Equal(old)) {
		return false, nil
	}
	if next.IsZero() {
		delete(m.entries, key)
	} else {
		m.entries[key] = next
	}
	return true, nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, t := range m.entries {
		if t.Before(cutoff) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
