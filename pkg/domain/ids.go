package domain

import (
	"github.com/google/uuid"

	dErrors "civicdesk/pkg/domain-errors"
)

// Typed IDs keep issue, solution, and user identifiers from being mixed up at
// compile time. They are plain UUIDs on the wire.

type UserID uuid.UUID

type IssueID uuid.UUID

type SolutionID uuid.UUID

type CommentID uuid.UUID

type UpdateID uuid.UUID

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

func NewIssueID() IssueID { return IssueID(uuid.New()) }

func NewSolutionID() SolutionID { return SolutionID(uuid.New()) }

func NewCommentID() CommentID { return CommentID(uuid.New()) }

func NewUpdateID() UpdateID { return UpdateID(uuid.New()) }

func (id UserID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id IssueID) String() string { return uuid.UUID(id).String() }

func (id IssueID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id SolutionID) String() string { return uuid.UUID(id).String() }

func (id SolutionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id CommentID) String() string { return uuid.UUID(id).String() }

func (id UpdateID) String() string { return uuid.UUID(id).String() }

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be nil")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID("user", s)
	return UserID(parsed), err
}

func ParseIssueID(s string) (IssueID, error) {
	parsed, err := parseUUID("issue", s)
	return IssueID(parsed), err
}

func ParseSolutionID(s string) (SolutionID, error) {
	parsed, err := parseUUID("solution", s)
	return SolutionID(parsed), err
}

func ParseCommentID(s string) (CommentID, error) {
	parsed, err := parseUUID("comment", s)
	return CommentID(parsed), err
}

func ParseUpdateID(s string) (UpdateID, error) {
	parsed, err := parseUUID("update", s)
	return UpdateID(parsed), err
}
