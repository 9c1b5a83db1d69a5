package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps audit events in memory for demo mode and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByTarget(_ context.Context, targetType, targetID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Event
	for _, event := range s.events {
		if event.TargetType == targetType && event.TargetID == targetID {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...), nil
}

// Record implements Recorder synchronously; handy in tests that assert on the
// trail immediately after a mutation.
func (s *InMemoryStore) Record(ctx context.Context, event Event) {
	_ = s.Append(ctx, event)
}
