package audit

import (
	"context"
	"encoding/json"
	"time"

	id "civicdesk/pkg/domain"
)

// Action names a privileged mutation.
type Action string

const (
	ActionIssueStatusChanged    Action = "issue_status_changed"
	ActionIssueDeleted          Action = "issue_deleted"
	ActionSolutionSelected      Action = "solution_selected"
	ActionUpdatePosted          Action = "update_posted"
	ActionVerificationApproved  Action = "verification_approved"
	ActionVerificationRejected  Action = "verification_rejected"
	ActionConsentReminderSent   Action = "consent_reminder_sent"
	ActionConsentReminderFailed Action = "consent_reminder_failed"
)

// Event is one append-only audit record: who did what to which target, with
// the before/after snapshots where they exist. Events are never deleted.
type Event struct {
	Timestamp  time.Time
	ActorID    id.UserID
	Action     Action
	TargetType string
	TargetID   string
	Before     json.RawMessage
	After      json.RawMessage
	Outcome    string
	Reason     string
	RequestID  string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByTarget(ctx context.Context, targetType, targetID string) ([]Event, error)
	ListAll(ctx context.Context) ([]Event, error)
}

// Recorder is the write-side seam services depend on. The channel-backed
// Trail implements it; tests use an in-memory store directly.
type Recorder interface {
	Record(ctx context.Context, event Event)
}
