package eventlog

import (
	"context"
	"sync"
)

// DefaultCapacity is the MemStore capacity used when none is given.
const DefaultCapacity = 256

// MemStore is a bounded in-memory [Store]. Once full, each new entry evicts
// the oldest one.
type MemStore struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a MemStore holding at most capacity entries. A
// non-positive capacity selects [DefaultCapacity].
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemStore{entries: make([]Entry, capacity)}
}

// Record implements [Store].
func (s *MemStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.next] = e
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.next
	if s.full {
		n = len(s.entries)
	}
	limit = min(limit, n)
	out := make([]Entry, 0, limit)
	for i := range limit {
		idx := (s.next - 1 - i + len(s.entries)) % len(s.entries)
		out = append(out, s.entries[idx])
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return len(s.entries)
	}
	return s.next
}

// Ping implements [Store]. It always succeeds.
func (s *MemStore) Ping(context.Context) error { return nil }

// Close implements [Store]. It is a no-op.
func (s *MemStore) Close() {}
