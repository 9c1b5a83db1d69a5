package issue

import (
	"context"
	"sort"
	"sync"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// InMemoryStore mirrors the postgres semantics exactly: one mutex plays the
// role of row-level locking, so every toggle and transition is atomic. Backs
// demo mode and unit tests.
type InMemoryStore struct {
	mu            sync.RWMutex
	issues        map[id.IssueID]Issue
	votes         map[id.IssueID]map[id.UserID]struct{}
	watchers      map[id.IssueID]map[id.UserID]struct{}
	comments      map[id.IssueID][]Comment
	updates       map[id.IssueID][]Update
	solutions     map[id.SolutionID]Solution
	solutionVotes map[id.SolutionID]map[id.UserID]struct{}
	issueOrder    []id.IssueID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		issues:        make(map[id.IssueID]Issue),
		votes:         make(map[id.IssueID]map[id.UserID]struct{}),
		watchers:      make(map[id.IssueID]map[id.UserID]struct{}),
		comments:      make(map[id.IssueID][]Comment),
		updates:       make(map[id.IssueID][]Update),
		solutions:     make(map[id.SolutionID]Solution),
		solutionVotes: make(map[id.SolutionID]map[id.UserID]struct{}),
	}
}

func (s *InMemoryStore) CreateIssue(_ context.Context, issue Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.issues[issue.ID]; exists {
		return sentinel.ErrConflict
	}
	// The author watches their own issue from the start.
	s.watchers[issue.ID] = map[id.UserID]struct{}{issue.AuthorID: {}}
	issue.WatcherCount = 1
	issue.VoteCount = 0
	s.issues[issue.ID] = issue
	s.issueOrder = append(s.issueOrder, issue.ID)
	return nil
}

func (s *InMemoryStore) GetIssue(_ context.Context, issueID id.IssueID) (Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[issueID]
	if !ok {
		return Issue{}, sentinel.ErrNotFound
	}
	return issue, nil
}

func (s *InMemoryStore) ListIssues(_ context.Context, filter ListFilter) ([]Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issues := make([]Issue, 0, len(s.issueOrder))
	for _, issueID := range s.issueOrder {
		issue, ok := s.issues[issueID]
		if !ok {
			continue
		}
		if filter.Status != "" && issue.Status != filter.Status {
			continue
		}
		if filter.Category != "" && issue.Category != filter.Category {
			continue
		}
		issues = append(issues, issue)
	}
	if filter.SortByVotes {
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].VoteCount > issues[j].VoteCount
		})
	} else {
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].CreatedAt.After(issues[j].CreatedAt)
		})
	}
	return issues, nil
}

func (s *InMemoryStore) DeleteIssue(_ context.Context, issueID id.IssueID) (Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok {
		return Issue{}, sentinel.ErrNotFound
	}
	delete(s.issues, issueID)
	delete(s.votes, issueID)
	delete(s.watchers, issueID)
	delete(s.comments, issueID)
	delete(s.updates, issueID)
	for solutionID, solution := range s.solutions {
		if solution.IssueID == issueID {
			delete(s.solutions, solutionID)
			delete(s.solutionVotes, solutionID)
		}
	}
	return issue, nil
}

func (s *InMemoryStore) ToggleVote(_ context.Context, issueID id.IssueID, userID id.UserID) (ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok {
		return ToggleResult{}, sentinel.ErrNotFound
	}
	members := s.votes[issueID]
	if members == nil {
		members = make(map[id.UserID]struct{})
		s.votes[issueID] = members
	}
	var active bool
	if _, voted := members[userID]; voted {
		delete(members, userID)
	} else {
		members[userID] = struct{}{}
		active = true
	}
	issue.VoteCount = len(members)
	s.issues[issueID] = issue
	return ToggleResult{Active: active, Count: issue.VoteCount}, nil
}

func (s *InMemoryStore) ToggleWatch(_ context.Context, issueID id.IssueID, userID id.UserID) (ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok {
		return ToggleResult{}, sentinel.ErrNotFound
	}
	members := s.watchers[issueID]
	if members == nil {
		members = make(map[id.UserID]struct{})
		s.watchers[issueID] = members
	}
	var active bool
	if _, watching := members[userID]; watching {
		delete(members, userID)
	} else {
		members[userID] = struct{}{}
		active = true
	}
	issue.WatcherCount = len(members)
	s.issues[issueID] = issue
	return ToggleResult{Active: active, Count: issue.WatcherCount}, nil
}

func (s *InMemoryStore) TransitionStatus(_ context.Context, issueID id.IssueID, expected, next Status, update Update) (Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok {
		return Issue{}, sentinel.ErrNotFound
	}
	if issue.Status != expected {
		return Issue{}, sentinel.ErrInvalidState
	}
	issue.Status = next
	if next == StatusResolved {
		at := update.CreatedAt
		issue.ResolvedAt = &at
		by := update.AuthorID
		issue.ResolvedBy = &by
	}
	s.issues[issueID] = issue
	s.updates[issueID] = append(s.updates[issueID], update)
	return issue, nil
}

func (s *InMemoryStore) AddComment(_ context.Context, comment Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[comment.IssueID]; !ok {
		return sentinel.ErrNotFound
	}
	s.comments[comment.IssueID] = append(s.comments[comment.IssueID], comment)
	return nil
}

func (s *InMemoryStore) ListComments(_ context.Context, issueID id.IssueID) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Comment{}, s.comments[issueID]...), nil
}

func (s *InMemoryStore) AddUpdate(_ context.Context, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[update.IssueID]; !ok {
		return sentinel.ErrNotFound
	}
	s.updates[update.IssueID] = append(s.updates[update.IssueID], update)
	return nil
}

func (s *InMemoryStore) ListUpdates(_ context.Context, issueID id.IssueID) ([]Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Update{}, s.updates[issueID]...), nil
}

func (s *InMemoryStore) AddSolution(_ context.Context, solution Solution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[solution.IssueID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, exists := s.solutions[solution.ID]; exists {
		return sentinel.ErrConflict
	}
	s.solutions[solution.ID] = solution
	return nil
}

func (s *InMemoryStore) GetSolution(_ context.Context, solutionID id.SolutionID) (Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	solution, ok := s.solutions[solutionID]
	if !ok {
		return Solution{}, sentinel.ErrNotFound
	}
	return solution, nil
}

func (s *InMemoryStore) ListSolutions(_ context.Context, issueID id.IssueID) ([]Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var solutions []Solution
	for _, solution := range s.solutions {
		if solution.IssueID == issueID {
			solutions = append(solutions, solution)
		}
	}
	sort.Slice(solutions, func(i, j int) bool {
		return solutions[i].CreatedAt.Before(solutions[j].CreatedAt)
	})
	return solutions, nil
}

func (s *InMemoryStore) ToggleSolutionVote(_ context.Context, solutionID id.SolutionID, userID id.UserID) (ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	solution, ok := s.solutions[solutionID]
	if !ok {
		return ToggleResult{}, sentinel.ErrNotFound
	}
	members := s.solutionVotes[solutionID]
	if members == nil {
		members = make(map[id.UserID]struct{})
		s.solutionVotes[solutionID] = members
	}
	var active bool
	if _, voted := members[userID]; voted {
		delete(members, userID)
	} else {
		members[userID] = struct{}{}
		active = true
	}
	solution.VoteCount = len(members)
	s.solutions[solutionID] = solution
	return ToggleResult{Active: active, Count: solution.VoteCount}, nil
}

func (s *InMemoryStore) ApproveSolution(_ context.Context, issueID id.IssueID, solutionID id.SolutionID) (Solution, *Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chosen, ok := s.solutions[solutionID]
	if !ok || chosen.IssueID != issueID {
		return Solution{}, nil, sentinel.ErrNotFound
	}

	var superseded *Solution
	for otherID, other := range s.solutions {
		if other.IssueID == issueID && other.Status == SolutionApproved && otherID != solutionID {
			other.Status = SolutionProposed
			s.solutions[otherID] = other
			copied := other
			superseded = &copied
		}
	}

	chosen.Status = SolutionApproved
	s.solutions[solutionID] = chosen
	return chosen, superseded, nil
}
