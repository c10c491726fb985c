package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory constructs an in-memory Store implementation for tests and development.
// Expired entries are dropped lazily on access.
func NewMemory() Store {
	return &memoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *memoryStore) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if m.expired(entry) {
		m.evict(key)
		return false, nil
	}
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if m.expired(entry) {
		m.evict(key)
		return nil, false, nil
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt)
}

func (m *memoryStore) evict(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}
