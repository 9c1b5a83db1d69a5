package issue

import (
	"time"

	id "civicdesk/pkg/domain"
)

// Status is an issue's lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// CanTransition reports whether a status change is legal. Officials walk the
// forward chain only; admins may override to any state, including closing
// from anywhere and reopening a closed issue.
func CanTransition(from, to Status, isAdmin bool) bool {
	if isAdmin {
		return from != to
	}
	switch {
	case from == StatusOpen && to == StatusInProgress:
		return true
	case from == StatusInProgress && to == StatusResolved:
		return true
	case from == StatusResolved && to == StatusClosed:
		return true
	}
	return false
}

// Category buckets issues for routing to departments.
type Category string

const (
	CategoryRoads       Category = "roads"
	CategoryWater       Category = "water"
	CategorySanitation  Category = "sanitation"
	CategoryElectricity Category = "electricity"
	CategorySafety      Category = "safety"
	CategoryOther       Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryRoads, CategoryWater, CategorySanitation, CategoryElectricity, CategorySafety, CategoryOther:
		return true
	}
	return false
}

// Issue is a citizen-filed report. VoteCount and WatcherCount always equal
// the number of active vote/watcher rows; they are maintained by the store's
// atomic toggles and never computed client-side.
type Issue struct {
	ID           id.IssueID  `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Category     Category    `json:"category"`
	Status       Status      `json:"status"`
	VoteCount    int         `json:"vote_count"`
	WatcherCount int         `json:"watcher_count"`
	AuthorID     id.UserID   `json:"author_id"`
	DepartmentID string      `json:"department_id,omitempty"`
	Location     string      `json:"location,omitempty"`
	ImageURL     string      `json:"image_url,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy   *id.UserID  `json:"resolved_by,omitempty"`
}

// Comment is append-only; editing is out of scope for the engagement core.
type Comment struct {
	ID        id.CommentID `json:"id"`
	IssueID   id.IssueID   `json:"issue_id"`
	AuthorID  id.UserID    `json:"author_id"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

// UpdateType classifies official progress updates.
type UpdateType string

const (
	UpdateTypeStatusChange UpdateType = "status_change"
	UpdateTypeProgress     UpdateType = "progress"
	UpdateTypeInfo         UpdateType = "info"
)

// Update is an official communication on an issue. Write-restricted to
// verified officials and admins.
type Update struct {
	ID        id.UpdateID `json:"id"`
	IssueID   id.IssueID  `json:"issue_id"`
	AuthorID  id.UserID   `json:"author_id"`
	Content   string      `json:"content"`
	Type      UpdateType  `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// SolutionStatus is a solution's lifecycle state. At most one solution per
// issue is ever approved.
type SolutionStatus string

const (
	SolutionProposed   SolutionStatus = "proposed"
	SolutionApproved   SolutionStatus = "approved"
	SolutionInProgress SolutionStatus = "in_progress"
	SolutionCompleted  SolutionStatus = "completed"
)

// Solution is a proposed fix for an issue. EstimatedCost is in cents.
type Solution struct {
	ID            id.SolutionID  `json:"id"`
	IssueID       id.IssueID     `json:"issue_id"`
	ProposedBy    id.UserID      `json:"proposed_by"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	EstimatedCost int64          `json:"estimated_cost"`
	Status        SolutionStatus `json:"status"`
	VoteCount     int            `json:"vote_count"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ToggleResult is the canonical outcome of a membership toggle: whether the
// actor's row now exists, and the authoritative count after the change.
type ToggleResult struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

// ListFilter narrows and orders issue listings for the initial view fetch.
type ListFilter struct {
	Status      Status
	Category    Category
	SortByVotes bool
}
