package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"civicdesk/internal/consent"
	"civicdesk/internal/feed"
	"civicdesk/internal/identity"
	"civicdesk/internal/notify"
	"civicdesk/internal/permission"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/platform/middleware"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/audit"
	"civicdesk/pkg/platform/sentinel"
)

// Service runs admin workflows. All operations require an admin actor; every
// individual outcome lands in the audit trail.
type Service struct {
	profiles identity.Store
	consent  *consent.Service
	notifier notify.Notifier
	audit    audit.Recorder
	feed     feed.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock. Test-only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(profiles identity.Store, consentSvc *consent.Service, notifier notify.Notifier, recorder audit.Recorder, publisher feed.Publisher, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		profiles: profiles,
		consent:  consentSvc,
		notifier: notifier,
		audit:    recorder,
		feed:     publisher,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConsentEntry pairs a profile with its computed consent status.
type ConsentEntry struct {
	Profile identity.Profile `json:"profile"`
	Report  consent.Report   `json:"report"`
}

// SendConsentReminders notifies each target whose consent status is not
// complete. Targets already complete are counted as successful no-ops.
func (s *Service) SendConsentReminders(ctx context.Context, actor identity.Actor, targets []string) (BulkResult, error) {
	if err := permission.CanAdministrate(actor).Err(); err != nil {
		return BulkResult{}, err
	}

	result := RunBulk(ctx, targets, func(ctx context.Context, target string) error {
		err := s.remindOne(ctx, target)
		s.recordItem(ctx, actor, audit.ActionConsentReminderSent, audit.ActionConsentReminderFailed,
			"user", target, err)
		s.countItem("consent_reminder", err)
		return err
	})
	return result, nil
}

func (s *Service) remindOne(ctx context.Context, target string) error {
	userID, err := id.ParseUserID(target)
	if err != nil {
		return err
	}
	profile, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return err
	}
	report, err := s.consent.Status(ctx, userID)
	if err != nil {
		return err
	}
	if report.Status == consent.StatusComplete {
		return nil
	}

	var missing []string
	for _, reqType := range report.Missing {
		missing = append(missing, string(reqType))
	}
	for _, reqType := range report.Outdated {
		missing = append(missing, string(reqType))
	}
	for _, reqType := range report.Declined {
		missing = append(missing, string(reqType))
	}
	return s.notifier.Notify(ctx, notify.ComposeConsentReminder(profile, missing))
}

// ApproveVerification marks each target official as verified. The state
// change is authoritative even when the follow-up notification fails.
func (s *Service) ApproveVerification(ctx context.Context, actor identity.Actor, targets []string) (BulkResult, error) {
	return s.decideVerification(ctx, actor, targets, id.VerificationVerified)
}

// RejectVerification marks each target official as rejected.
func (s *Service) RejectVerification(ctx context.Context, actor identity.Actor, targets []string) (BulkResult, error) {
	return s.decideVerification(ctx, actor, targets, id.VerificationRejected)
}

func (s *Service) decideVerification(ctx context.Context, actor identity.Actor, targets []string, status id.VerificationStatus) (BulkResult, error) {
	if err := permission.CanAdministrate(actor).Err(); err != nil {
		return BulkResult{}, err
	}

	approved := status == id.VerificationVerified
	action := audit.ActionVerificationApproved
	operation := "verification_approve"
	if !approved {
		action = audit.ActionVerificationRejected
		operation = "verification_reject"
	}

	result := RunBulk(ctx, targets, func(ctx context.Context, target string) error {
		err := func() error {
			userID, err := id.ParseUserID(target)
			if err != nil {
				return err
			}
			return s.decideOne(ctx, actor, userID, status, approved, action)
		}()
		if err != nil {
			s.audit.Record(ctx, audit.Event{
				Timestamp:  s.now().UTC(),
				ActorID:    actor.ID,
				Action:     action,
				TargetType: "user",
				TargetID:   target,
				Outcome:    "failure",
				Reason:     err.Error(),
				RequestID:  middleware.GetRequestID(ctx),
			})
		}
		s.countItem(operation, err)
		return err
	})
	return result, nil
}

func (s *Service) decideOne(ctx context.Context, actor identity.Actor, userID id.UserID, status id.VerificationStatus, approved bool, action audit.Action) error {
	previous, err := s.profiles.SetVerification(ctx, userID, status)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, "user is not an official")
	case err != nil:
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Timestamp:  s.now().UTC(),
		ActorID:    actor.ID,
		Action:     action,
		TargetType: "user",
		TargetID:   userID.String(),
		Before:     rawJSON(map[string]string{"verification_status": string(previous)}),
		After:      rawJSON(map[string]string{"verification_status": string(status)}),
		Outcome:    "success",
		RequestID:  middleware.GetRequestID(ctx),
	})

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "profile reload after verification decision failed",
			"user_id", userID.String(), "error", err)
		return nil
	}
	s.publishProfile(profile)

	// Best effort: the decision stands whether or not the user hears about it.
	if err := s.notifier.Notify(ctx, notify.ComposeVerificationResult(profile, approved)); err != nil {
		s.logger.WarnContext(ctx, "verification notification failed",
			"user_id", userID.String(), "error", err)
	}
	return nil
}

// ListPendingOfficials returns officials awaiting review.
func (s *Service) ListPendingOfficials(ctx context.Context, actor identity.Actor) ([]identity.Profile, error) {
	if err := permission.CanAdministrate(actor).Err(); err != nil {
		return nil, err
	}
	return s.profiles.ListPendingOfficials(ctx)
}

// ConsentOverview computes consent status for every profile on demand. The
// statuses are never cached: required versions may have changed since the
// last call.
func (s *Service) ConsentOverview(ctx context.Context, actor identity.Actor) ([]ConsentEntry, error) {
	if err := permission.CanAdministrate(actor).Err(); err != nil {
		return nil, err
	}
	profiles, err := s.profiles.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]ConsentEntry, 0, len(profiles))
	for _, profile := range profiles {
		report, err := s.consent.Status(ctx, profile.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ConsentEntry{Profile: profile, Report: report})
	}
	return entries, nil
}

func (s *Service) recordItem(ctx context.Context, actor identity.Actor, success, failure audit.Action, targetType, targetID string, err error) {
	event := audit.Event{
		Timestamp:  s.now().UTC(),
		ActorID:    actor.ID,
		Action:     success,
		TargetType: targetType,
		TargetID:   targetID,
		Outcome:    "success",
		RequestID:  middleware.GetRequestID(ctx),
	}
	if err != nil {
		event.Action = failure
		event.Outcome = "failure"
		event.Reason = err.Error()
	}
	s.audit.Record(ctx, event)
}

func (s *Service) countItem(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.BulkItems.WithLabelValues(operation, outcome).Inc()
}

func (s *Service) publishProfile(profile identity.Profile) {
	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	s.feed.Publish(feed.Event{
		Table: feed.TableProfiles,
		Op:    feed.OpUpdate,
		Key:   profile.ID.String(),
		Row:   raw,
	})
	s.metrics.FeedEventsPublished.WithLabelValues(string(feed.TableProfiles), string(feed.OpUpdate)).Inc()
}


func rawJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
