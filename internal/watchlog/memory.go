package watchlog

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store used by simulations and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore(initial ...Entry) *MemoryStore {
	return &MemoryStore{entries: cloneEntries(initial)}
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.entries), nil
}

func (s *MemoryStore) SaveAll(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	s.entries = cloneEntries(entries)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, cloneEntries([]Entry{e})...)
	s.mu.Unlock()
	return nil
}
