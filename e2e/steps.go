package e2e

import (
	"github.com/cucumber/godog"

	"taxlens/e2e/steps/common"
	"taxlens/e2e/steps/profile"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, status and field assertions)
	common.RegisterSteps(ctx, tc)

	// Register profile lifecycle steps (encrypt, submit, analyze, stats)
	profile.RegisterSteps(ctx, tc)
}
