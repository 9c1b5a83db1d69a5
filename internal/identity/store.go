package identity

import (
	"context"

	id "civicdesk/pkg/domain"
)

// Store persists profiles. Implementations return sentinel.ErrNotFound for
// missing users.
type Store interface {
	Get(ctx context.Context, userID id.UserID) (Profile, error)
	Save(ctx context.Context, profile Profile) error
	// SetVerification updates an official's verification status and returns
	// the previous value for audit trails.
	SetVerification(ctx context.Context, userID id.UserID, status id.VerificationStatus) (id.VerificationStatus, error)
	// ListPendingOfficials returns officials awaiting verification review.
	ListPendingOfficials(ctx context.Context) ([]Profile, error)
	// ListAll returns every profile; used by admin consent listings.
	ListAll(ctx context.Context) ([]Profile, error)
}
