package identity

import (
	"time"

	id "civicdesk/pkg/domain"
)

// Actor is the resolved identity driving a request: who they are, what role
// they hold, and whether an admin has verified them. It is always derived from
// the validated token plus the profile store, never from client input.
type Actor struct {
	ID           id.UserID
	Role         id.Role
	Verification id.VerificationStatus
}

// IsVerifiedOfficial reports whether the actor may exercise official-only
// privileges. Admins count: they hold every official privilege implicitly.
func (a Actor) IsVerifiedOfficial() bool {
	if a.Role == id.RoleAdmin {
		return true
	}
	return a.Role == id.RoleOfficial && a.Verification == id.VerificationVerified
}

// IsAuthenticated reports whether the actor was resolved from a valid token.
func (a Actor) IsAuthenticated() bool {
	return !a.ID.IsNil()
}

// Profile is the stored account record backing an actor.
type Profile struct {
	ID           id.UserID             `json:"id"`
	DisplayName  string                `json:"display_name"`
	Email        string                `json:"email"`
	Role         id.Role               `json:"role"`
	Verification id.VerificationStatus `json:"verification_status,omitempty"`
	DepartmentID string                `json:"department_id,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// Actor projects the profile into its permission-relevant shape.
func (p Profile) Actor() Actor {
	return Actor{ID: p.ID, Role: p.Role, Verification: p.Verification}
}
