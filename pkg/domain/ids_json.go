package domain

import "github.com/google/uuid"

// Text marshaling keeps the typed IDs rendering as canonical UUID strings in
// JSON; a defined type does not inherit uuid.UUID's methods.

func (id UserID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(id).String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = UserID(parsed)
	return nil
}

func (id IssueID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(id).String()), nil }

func (id *IssueID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = IssueID(parsed)
	return nil
}

func (id SolutionID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(id).String()), nil }

func (id *SolutionID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = SolutionID(parsed)
	return nil
}

func (id CommentID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(id).String()), nil }

func (id *CommentID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = CommentID(parsed)
	return nil
}

func (id UpdateID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(id).String()), nil }

func (id *UpdateID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = UpdateID(parsed)
	return nil
}
