package cache

import (
	"sync"
	"time"
)

// Memory is an in-process cache backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

// Get tries a read lock first; it only takes the write lock to evict a stale
// entry.
func (m *Memory) Get(key string, ttl time.Duration) ([]byte, bool, error) {
	t := now()
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if e.fresh(t, ttl) {
		return e.Value, true, nil
	}

	m.mu.Lock()
	// Another writer may have replaced the entry in the meantime.
	if cur, ok := m.entries[key]; ok && !cur.fresh(t, ttl) {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	return nil, false, nil
}

// Put stores a copy of value.
func (m *Memory) Put(key string, value []byte, _ time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.entries[key] = Entry{Key: key, Value: v, Created: now()}
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close drops every entry.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
	return nil
}
