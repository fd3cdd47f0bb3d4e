package persistence

import (
	"context"
	"sync"
)

// MemoryEventStore keeps run history in process memory. Best for tests and
// development; nothing survives a restart.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]StoredEvent
}

var _ EventStore = (*MemoryEventStore)(nil)

// NewMemoryEventStore returns an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events: make(map[string][]StoredEvent),
	}
}

func (s *MemoryEventStore) AppendEvent(ctx context.Context, ev StoredEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *MemoryEventStore) ListEvents(ctx context.Context, runID string) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[runID]
	out := make([]StoredEvent, len(events))
	copy(out, events)
	return out, nil
}
