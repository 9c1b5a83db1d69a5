package consent

import (
	"context"
	"sync"
	"time"

	id "civicdesk/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.UserID][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.UserID][]Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = append(s.records[record.UserID], record)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record{}, s.records[userID]...), nil
}

func (s *InMemoryStore) Revoke(_ context.Context, userID id.UserID, reqType RequirementType, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[userID]
	for i := range records {
		if records[i].Type == reqType && records[i].RevokedAt == nil {
			at := revokedAt
			records[i].RevokedAt = &at
		}
	}
	s.records[userID] = records
	return nil
}
