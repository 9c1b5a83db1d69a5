package consent

import (
	"context"
	"sync"
)

// StaticRegistry holds the required consent set in memory. Versions can be
// bumped at runtime (e.g. when legal publishes a new policy revision), which
// immediately turns "complete" users into "pending" on the next computation.
type StaticRegistry struct {
	mu       sync.RWMutex
	required []Requirement
}

// DefaultRegistry returns the portal's standard requirement set at version 1.
func DefaultRegistry() *StaticRegistry {
	return NewStaticRegistry([]Requirement{
		{Type: RequirementTermsOfService, Version: 1},
		{Type: RequirementPrivacyPolicy, Version: 1},
		{Type: RequirementDataProcessing, Version: 1},
	})
}

func NewStaticRegistry(required []Requirement) *StaticRegistry {
	return &StaticRegistry{required: append([]Requirement{}, required...)}
}

func (r *StaticRegistry) Required(_ context.Context) ([]Requirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Requirement{}, r.required...), nil
}

// BumpVersion raises the required version of one requirement type.
func (r *StaticRegistry) BumpVersion(reqType RequirementType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.required {
		if r.required[i].Type == reqType {
			r.required[i].Version++
		}
	}
}
