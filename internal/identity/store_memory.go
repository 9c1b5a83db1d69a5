package identity

import (
	"context"
	"sync"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// InMemoryStore backs demo mode and unit tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[id.UserID]Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[id.UserID]Profile)}
}

func (s *InMemoryStore) Get(_ context.Context, userID id.UserID) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return Profile{}, sentinel.ErrNotFound
	}
	return profile, nil
}

func (s *InMemoryStore) Save(_ context.Context, profile Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile
	return nil
}

func (s *InMemoryStore) SetVerification(_ context.Context, userID id.UserID, status id.VerificationStatus) (id.VerificationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	if profile.Role != id.RoleOfficial {
		return "", sentinel.ErrInvalidState
	}
	previous := profile.Verification
	profile.Verification = status
	s.profiles[userID] = profile
	return previous, nil
}

func (s *InMemoryStore) ListPendingOfficials(_ context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []Profile
	for _, profile := range s.profiles {
		if profile.Role == id.RoleOfficial && profile.Verification == id.VerificationPending {
			pending = append(pending, profile)
		}
	}
	return pending, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]Profile, 0, len(s.profiles))
	for _, profile := range s.profiles {
		all = append(all, profile)
	}
	return all, nil
}
