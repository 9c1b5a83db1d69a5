package e2e

import (
	"fmt"

	"github.com/cucumber/godog"

	"civicdesk/e2e/steps/admin"
	"civicdesk/e2e/steps/consent"
	"civicdesk/e2e/steps/issue"
)

// RegisterSteps registers all step definitions from the modular step packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	registerCommonSteps(ctx, tc)
	issue.RegisterSteps(ctx, tc)
	consent.RegisterSteps(ctx, tc)
	admin.RegisterSteps(ctx, tc)
}

// registerCommonSteps covers authentication and generic response assertions
// shared by every feature.
func registerCommonSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^the portal is running$`, func() error {
		if err := tc.GET("/health"); err != nil {
			return err
		}
		if tc.LastStatus() != 200 {
			return fmt.Errorf("health check returned %d", tc.LastStatus())
		}
		return nil
	})

	ctx.Step(`^I am signed in as an? (citizen|official|admin)$`, func(role string) error {
		return tc.UseRole(role)
	})

	ctx.Step(`^I am not signed in$`, func() error {
		tc.ClearAuth()
		return nil
	})

	ctx.Step(`^the response status should be (\d+)$`, func(expected int) error {
		if tc.LastStatus() != expected {
			return fmt.Errorf("expected status %d, got %d: %s", expected, tc.LastStatus(), tc.LastBody())
		}
		return nil
	})
}
