// Package admin holds step definitions for the admin bulk workflows.
package admin

import (
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
	"github.com/gofrs/uuid"
)

// TestContext is the slice of the main test context these steps need.
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	LastStatus() int
	LastBody() []byte
}

// RegisterSteps registers admin-related step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &adminSteps{tc: tc}

	ctx.Step(`^I approve verification for an unknown user$`, steps.approveUnknownUser)
	ctx.Step(`^I send consent reminders to an unknown user and a malformed id$`, steps.remindersWithBadTargets)
	ctx.Step(`^the batch result should report (\d+) successes? and (\d+) failures?$`, steps.batchResultShouldReport)
	ctx.Step(`^I list pending official verifications$`, steps.listPending)
	ctx.Step(`^the response should be a list$`, steps.responseShouldBeList)
}

type adminSteps struct {
	tc TestContext
}

type batchResult struct {
	Successful []string `json:"successful"`
	Failed     []struct {
		Target string `json:"target"`
		Reason string `json:"reason"`
	} `json:"failed"`
}

func (s *adminSteps) approveUnknownUser() error {
	unknown, err := uuid.NewV4()
	if err != nil {
		return err
	}
	return s.tc.POST("/admin/verification/approve", map[string]any{
		"user_ids": []string{unknown.String()},
	})
}

func (s *adminSteps) remindersWithBadTargets() error {
	unknown, err := uuid.NewV4()
	if err != nil {
		return err
	}
	return s.tc.POST("/admin/consent/reminders", map[string]any{
		"user_ids": []string{unknown.String(), "definitely-not-a-uuid"},
	})
}

func (s *adminSteps) batchResultShouldReport(successes, failures int) error {
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("batch request returned %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	var result batchResult
	if err := json.Unmarshal(s.tc.LastBody(), &result); err != nil {
		return fmt.Errorf("decode batch result: %w", err)
	}
	if len(result.Successful) != successes || len(result.Failed) != failures {
		return fmt.Errorf("expected %d successes and %d failures, got %d and %d: %s",
			successes, failures, len(result.Successful), len(result.Failed), s.tc.LastBody())
	}
	for _, failure := range result.Failed {
		if failure.Target == "" || failure.Reason == "" {
			return fmt.Errorf("failure entry missing target or reason: %s", s.tc.LastBody())
		}
	}
	return nil
}

func (s *adminSteps) listPending() error {
	return s.tc.GET("/admin/verification/pending")
}

func (s *adminSteps) responseShouldBeList() error {
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("expected 200, got %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	var list []json.RawMessage
	if err := json.Unmarshal(s.tc.LastBody(), &list); err != nil {
		return fmt.Errorf("response is not a JSON list: %w", err)
	}
	return nil
}
