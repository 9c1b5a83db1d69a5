package consent

import (
	"context"
	"time"

	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

// Service persists consent decisions and derives per-user status. It keeps
// orchestration out of handlers and the computation in one place.
type Service struct {
	store    Store
	registry Registry
	now      func() time.Time
}

func NewService(store Store, registry Registry) *Service {
	return &Service{store: store, registry: registry, now: time.Now}
}

// Decide records an acceptance or a decline for one requirement at the
// version presented to the user.
func (s *Service) Decide(ctx context.Context, userID id.UserID, reqType RequirementType, version int, accepted bool) (Record, error) {
	if version <= 0 {
		return Record{}, dErrors.New(dErrors.CodeInvalidInput, "consent version must be positive")
	}
	record := Record{
		UserID:    userID,
		Type:      reqType,
		Version:   version,
		Accepted:  accepted,
		DecidedAt: s.now(),
	}
	if err := s.store.Save(ctx, record); err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent decision")
	}
	return record, nil
}

// Revoke withdraws all standing decisions for a requirement type. The
// requirement counts as undecided again until the user makes a new decision.
func (s *Service) Revoke(ctx context.Context, userID id.UserID, reqType RequirementType) error {
	if err := s.store.Revoke(ctx, userID, reqType, s.now()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
	}
	return nil
}

// Status derives the current consent report for one user. Required versions
// are re-read on every call.
func (s *Service) Status(ctx context.Context, userID id.UserID) (Report, error) {
	required, err := s.registry.Required(ctx)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent registry unavailable")
	}
	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent records")
	}
	return ComputeStatus(userID, records, required, s.now()), nil
}
