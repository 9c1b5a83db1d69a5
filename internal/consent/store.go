package consent

import (
	"context"
	"time"

	id "civicdesk/pkg/domain"
)

// Store persists consent decisions.
type Store interface {
	Save(ctx context.Context, record Record) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Record, error)
	Revoke(ctx context.Context, userID id.UserID, reqType RequirementType, revokedAt time.Time) error
}

// Registry supplies the currently required consents. The required set is read
// on every computation, never cached beyond one response, because versions may
// change between calls.
type Registry interface {
	Required(ctx context.Context) ([]Requirement, error)
}
