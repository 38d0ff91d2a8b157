package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"explorer/e2e/steps/common"
	"explorer/e2e/steps/provenance"
	"explorer/e2e/steps/query"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return ctx, nil
	})

	// Health, status codes, error codes and field assertions
	common.RegisterSteps(ctx, tc)

	// Sources, data points and contradictions
	provenance.RegisterSteps(ctx, tc)

	// Catalog, queries and exports
	query.RegisterSteps(ctx, tc)
}
