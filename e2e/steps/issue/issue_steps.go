// Package issue holds step definitions for the issue engagement features:
// reporting, voting, watching, and the status lifecycle.
package issue

import (
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the main test context these steps need.
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	DELETE(path string) error
	LastStatus() int
	LastBody() []byte
	ResponseField(field string) (any, error)
	ResponseStringField(field string) (string, error)
	ResponseIntField(field string) (int, error)
	Remember(name, value string)
	Recall(name string) (string, error)
}

// RegisterSteps registers issue-related step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &issueSteps{tc: tc}

	ctx.Step(`^I report an issue titled "([^"]*)"$`, steps.reportIssue)
	ctx.Step(`^the issue should be created$`, steps.issueCreated)
	ctx.Step(`^I vote on the issue$`, steps.voteOnIssue)
	ctx.Step(`^I watch the issue$`, steps.watchIssue)
	ctx.Step(`^the vote count should be (\d+)$`, steps.voteCountShouldBe)
	ctx.Step(`^my vote should be (on|off)$`, steps.voteShouldBe)
	ctx.Step(`^I change the issue status to "([^"]*)"$`, steps.changeStatus)
	ctx.Step(`^the issue status should be "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^I comment "([^"]*)" on the issue$`, steps.commentOnIssue)
	ctx.Step(`^I delete the issue$`, steps.deleteIssue)
	ctx.Step(`^the issue should no longer exist$`, steps.issueGone)
}

type issueSteps struct {
	tc TestContext
}

func (s *issueSteps) reportIssue(title string) error {
	if err := s.tc.POST("/issues", map[string]any{
		"title":       title,
		"description": "reported by the end-to-end suite",
		"category":    "other",
	}); err != nil {
		return err
	}
	if s.tc.LastStatus() == 201 {
		issueID, err := s.tc.ResponseStringField("id")
		if err != nil {
			return err
		}
		s.tc.Remember("issue_id", issueID)
	}
	return nil
}

func (s *issueSteps) issueCreated() error {
	if s.tc.LastStatus() != 201 {
		return fmt.Errorf("expected 201, got %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	_, err := s.tc.Recall("issue_id")
	return err
}

func (s *issueSteps) voteOnIssue() error {
	issueID, err := s.tc.Recall("issue_id")
	if err != nil {
		return err
	}
	return s.tc.POST("/issues/"+issueID+"/vote", map[string]any{})
}

func (s *issueSteps) watchIssue() error {
	issueID, err := s.tc.Recall("issue_id")
	if err != nil {
		return err
	}
	return s.tc.POST("/issues/"+issueID+"/watch", map[string]any{})
}

func (s *issueSteps) voteCountShouldBe(expected int) error {
	count, err := s.tc.ResponseIntField("count")
	if err != nil {
		return err
	}
	if count != expected {
		return fmt.Errorf("expected vote count %d, got %d", expected, count)
	}
	return nil
}

func (s *issueSteps) voteShouldBe(state string) error {
	active, err := s.tc.ResponseField("active")
	if err != nil {
		return err
	}
	want := state == "on"
	if active != want {
		return fmt.Errorf("expected vote active=%v, got %v", want, active)
	}
	return nil
}

func (s *issueSteps) changeStatus(next string) error {
	issueID, err := s.tc.Recall("issue_id")
	if err != nil {
		return err
	}
	return s.tc.POST("/issues/"+issueID+"/status", map[string]any{"status": next})
}

func (s *issueSteps) statusShouldBe(expected string) error {
	issueID, err := s.tc.Recall("issue_id")
	if err != nil {
		return err
	}
	if err := s.tc.GET("/issues/" + issueID); err != nil {
		return err
	}
	status, err := s.tc.ResponseStringField("status")
	if err != nil {
		return err
	}
	if status != expected {
		return fmt.Errorf("expected status %q, got %q", expected, status)
	}
	return nil
}

func (s *issueSteps) commentOnIssue(content string) error {
	issueID, err := s.tc.Recall("issue_id")
	if err != nil {
		return err
	}
	return s.tc.POST("/issues/"+issueID+"/comments", map[string]any{"content": content})
}

func (s *issueSteps) deleteIssue() error {
	issueID, err := s.tc.Recall("issue_id")
	if err != nil {
		return err
	}
	return s.tc.DELETE("/issues/" + issueID)
}

func (s *issueSteps) issueGone() error {
	issueID, err := s.tc.Recall("issue_id")
	if err != nil {
		return err
	}
	if err := s.tc.GET("/issues/" + issueID); err != nil {
		return err
	}
	if s.tc.LastStatus() != 404 {
		return fmt.Errorf("expected 404 for deleted issue, got %d", s.tc.LastStatus())
	}
	return nil
}
