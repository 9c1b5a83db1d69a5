// Package consent holds step definitions for the consent onboarding flow.
package consent

import (
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the main test context these steps need.
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	LastStatus() int
	LastBody() []byte
	ResponseStringField(field string) (string, error)
	ResponseIntField(field string) (int, error)
}

// RegisterSteps registers consent-related step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &consentSteps{tc: tc}

	ctx.Step(`^I accept every current consent requirement$`, steps.acceptEverything)
	ctx.Step(`^I decline the "([^"]*)" requirement at version (\d+)$`, steps.declineRequirement)
	ctx.Step(`^I revoke the "([^"]*)" requirement$`, steps.revokeRequirement)
	ctx.Step(`^my consent status should be "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^my consent completion should be (\d+) percent$`, steps.percentShouldBe)
}

type consentSteps struct {
	tc TestContext
}

type requirement struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
}

// acceptEverything reads the live requirement list first, so the scenario
// keeps passing when the portal adds requirements or bumps versions.
func (s *consentSteps) acceptEverything() error {
	if err := s.tc.GET("/consent/requirements"); err != nil {
		return err
	}
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("requirements fetch returned %d", s.tc.LastStatus())
	}
	var required []requirement
	if err := json.Unmarshal(s.tc.LastBody(), &required); err != nil {
		return fmt.Errorf("decode requirements: %w", err)
	}

	for _, req := range required {
		if err := s.tc.POST("/consent/decisions", map[string]any{
			"type":     req.Type,
			"version":  req.Version,
			"accepted": true,
		}); err != nil {
			return err
		}
		if s.tc.LastStatus() != 201 {
			return fmt.Errorf("accepting %q returned %d: %s", req.Type, s.tc.LastStatus(), s.tc.LastBody())
		}
	}
	return nil
}

func (s *consentSteps) declineRequirement(reqType string, version int) error {
	return s.tc.POST("/consent/decisions", map[string]any{
		"type":     reqType,
		"version":  version,
		"accepted": false,
	})
}

func (s *consentSteps) revokeRequirement(reqType string) error {
	return s.tc.POST("/consent/revoke", map[string]any{"type": reqType})
}

func (s *consentSteps) statusShouldBe(expected string) error {
	if err := s.tc.GET("/consent/status"); err != nil {
		return err
	}
	status, err := s.tc.ResponseStringField("status")
	if err != nil {
		return err
	}
	if status != expected {
		return fmt.Errorf("expected consent status %q, got %q", expected, status)
	}
	return nil
}

func (s *consentSteps) percentShouldBe(expected int) error {
	if err := s.tc.GET("/consent/status"); err != nil {
		return err
	}
	percent, err := s.tc.ResponseIntField("percent")
	if err != nil {
		return err
	}
	if percent != expected {
		return fmt.Errorf("expected consent completion %d%%, got %d%%", expected, percent)
	}
	return nil
}
