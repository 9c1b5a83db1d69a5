package consent

import (
	"time"

	id "civicdesk/pkg/domain"
)

// RequirementType labels a legal agreement the portal requires.
type RequirementType string

const (
	RequirementTermsOfService RequirementType = "terms_of_service"
	RequirementPrivacyPolicy  RequirementType = "privacy_policy"
	RequirementDataProcessing RequirementType = "data_processing"
)

// Requirement is one consent the portal currently demands, at a specific
// version. Bumping the version forces re-acceptance.
type Requirement struct {
	Type    RequirementType `json:"type"`
	Version int             `json:"version"`
}

// Record captures a user's decision on one requirement. Declines are stored
// too: a recorded refusal is how onboarding surfaces "failed".
type Record struct {
	UserID    id.UserID       `json:"user_id"`
	Type      RequirementType `json:"type"`
	Version   int             `json:"version"`
	Accepted  bool            `json:"accepted"`
	DecidedAt time.Time       `json:"decided_at"`
	RevokedAt *time.Time      `json:"revoked_at,omitempty"`
}

// Active reports whether the record still stands.
func (r Record) Active(now time.Time) bool {
	return r.RevokedAt == nil || r.RevokedAt.After(now)
}

// Status classifies a user's overall consent completeness. It is always
// derived, never stored, because the required set may change between calls.
type Status string

const (
	// StatusComplete: every requirement accepted at its current version.
	StatusComplete Status = "complete"
	// StatusPending: everything accepted, but at least one acceptance is for
	// an outdated version and needs renewal.
	StatusPending Status = "pending"
	// StatusIncomplete: at least one requirement has no decision yet.
	StatusIncomplete Status = "incomplete"
	// StatusFailed: at least one requirement was declined or revoked.
	StatusFailed Status = "failed"
)

// Report is the full derived consent state for one user.
type Report struct {
	UserID   id.UserID         `json:"user_id"`
	Status   Status            `json:"status"`
	Percent  int               `json:"percent"`
	Missing  []RequirementType `json:"missing,omitempty"`
	Outdated []RequirementType `json:"outdated,omitempty"`
	Declined []RequirementType `json:"declined,omitempty"`
}
