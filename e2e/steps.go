package e2e

import (
	"github.com/cucumber/godog"

	"dsar/e2e/steps/auth"
	"dsar/e2e/steps/common"
	"dsar/e2e/steps/ratelimit"
	"dsar/e2e/steps/runs"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register operator token steps
	auth.RegisterSteps(ctx, tc)

	// Register run and package steps
	runs.RegisterSteps(ctx, tc)

	ratelimit.RegisterSteps(ctx, tc)
}
