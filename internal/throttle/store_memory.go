// Package throttle provides an in-memory counter store.
package throttle

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore implements Store with a mutex-guarded map. It honors per-key
// expiry against an injectable clock, which makes it usable both as the
// single-process backend and as a test double.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore constructs a MemoryStore. A nil now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:     now,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the value for key, or (nil, nil) when absent or expired.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	return entry.value, nil
}

// Set stores value under key with the given ttl.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// IncrBy adds delta to the integer at key. The ttl applies only when the
// increment creates the key, so steady increments cannot keep a counter
// alive past its original expiry.
func (s *MemoryStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, live := s.entries[key]
	if live && !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		live = false
	}
	var current int64
	if live {
		parsed, err := strconv.ParseInt(string(entry.value), 10, 64)
		if err == nil {
			current = parsed
		}
	}
	current += delta
	next := memoryEntry{value: []byte(strconv.FormatInt(current, 10))}
	if live {
		next.expiresAt = entry.expiresAt
	} else if ttl > 0 {
		next.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = next
	return current, nil
}

// Len reports the number of live entries. Intended for tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, entry := range s.entries {
		if entry.expiresAt.IsZero() || s.now().Before(entry.expiresAt) {
			count++
		}
	}
	return count
}
