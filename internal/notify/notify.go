// Package notify delivers user-facing notifications: consent reminders and
// verification outcomes. Delivery is best effort; callers that must not fail
// on a broken channel log the error and move on.
package notify

//go:generate mockgen -source=notify.go -destination=mocks/mocks.go -package=mocks Notifier

import (
	"context"
	"log/slog"

	id "civicdesk/pkg/domain"
)

// Kind names a notification template.
type Kind string

const (
	KindConsentReminder      Kind = "consent_reminder"
	KindVerificationApproved Kind = "verification_approved"
	KindVerificationRejected Kind = "verification_rejected"
)

// Message is one notification ready for delivery.
type Message struct {
	UserID  id.UserID
	Email   string
	Kind    Kind
	Subject string
	Body    string
}

// Notifier delivers a message over some channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the log. It backs demo mode and any
// deployment without a mail relay.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notification delivered",
		"user_id", msg.UserID.String(),
		"kind", string(msg.Kind),
		"subject", msg.Subject,
	)
	return nil
}
