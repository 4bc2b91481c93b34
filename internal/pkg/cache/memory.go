package cache

import (
	"strings"
	"sync"
	"time"
)

// TTL tiers for entitlement lookups. Short TTLs trade a little staleness for
// load reduction; entitlement changes are already delayed by asynchronous
// webhooks, so the staleness window is acceptable.
const (
	TTLShort    = 30 * time.Second
	TTLMedium   = 2 * time.Minute
	TTLLong     = 10 * time.Minute
	TTLVeryLong = 30 * time.Minute
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Memory is a process-local key/value store with per-entry expiry. Entries
// are never returned past their expiry and are evicted lazily on read.
// All operations are safe for concurrent use; last writer wins.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewMemory creates an empty in-process TTL cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

// Set stores a value under key for the given TTL.
func (m *Memory) Set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Invalidate removes a single key regardless of remaining TTL.
func (m *Memory) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Clear drops every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
}

// InvalidatePrefix removes every key with the given prefix. Used to drop a
// user's whole entitlement group without touching other users.
func (m *Memory) InvalidatePrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
}

// InvalidateUser drops the full entitlement cache group for one user.
func (m *Memory) InvalidateUser(userID uint) {
	m.InvalidatePrefix(UserKeyPrefix(userID))
}

func (m *Memory) lookup(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

// Len returns the number of live entries (expired entries may still count
// until their next read).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Get retrieves a typed value from the cache. The second return is false when
// the key is absent, expired, or holds a value of a different type.
func Get[T any](m *Memory, key string) (T, bool) {
	var zero T
	v, ok := m.lookup(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
