package e2e

import (
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs features/ against EXPLORER_E2E_URL. The server must be
// started with the same EXPLORER_SERVER_ADMIN_TOKEN.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("EXPLORER_E2E_URL")
	if baseURL == "" {
		t.Skip("EXPLORER_E2E_URL not set")
	}
	tc := NewTestContext(baseURL, os.Getenv("EXPLORER_SERVER_ADMIN_TOKEN"))

	suite := godog.TestSuite{
		Name: "explorer",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			RegisterSteps(sc, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("e2e features failed")
	}
}
