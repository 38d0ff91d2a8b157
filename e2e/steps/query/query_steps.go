package query

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	GetResponseField(field string) (any, error)
}

// RegisterSteps registers catalog, query and export steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &querySteps{tc: tc}

	ctx.Step(`^I describe the table "([^"]*)"$`, steps.describeTable)
	ctx.Step(`^I query "([^"]*)"$`, steps.queryTable)
	ctx.Step(`^I query "([^"]*)" with limit (\d+)$`, steps.queryWithLimit)
	ctx.Step(`^I query "([^"]*)" sorted by "([^"]*)" "([^"]*)"$`, steps.querySorted)
	ctx.Step(`^I export "([^"]*)" as "([^"]*)"$`, steps.export)
	ctx.Step(`^row (\d+) should have "([^"]*)" "([^"]*)"$`, steps.rowShouldHave)
}

type querySteps struct {
	tc TestContext
}

func (s *querySteps) describeTable(ctx context.Context, table string) error {
	return s.tc.GET("/catalog/" + table)
}

func (s *querySteps) queryTable(ctx context.Context, table string) error {
	return s.tc.POST("/query", map[string]any{"table": table})
}

func (s *querySteps) queryWithLimit(ctx context.Context, table string, limit int) error {
	return s.tc.POST("/query", map[string]any{"table": table, "limit": limit})
}

func (s *querySteps) querySorted(ctx context.Context, table, column, direction string) error {
	return s.tc.POST("/query", map[string]any{
		"table": table,
		"sort":  map[string]any{"column": column, "direction": direction},
	})
}

func (s *querySteps) export(ctx context.Context, table, format string) error {
	return s.tc.POST("/export/"+format, map[string]any{"table": table})
}

func (s *querySteps) rowShouldHave(ctx context.Context, n int, column, want string) error {
	v, err := s.tc.GetResponseField(fmt.Sprintf("rows.%d.%s", n-1, column))
	if err != nil {
		return err
	}
	if got, ok := v.(string); !ok || got != want {
		return fmt.Errorf("expected row %d %s to be %q, got %v", n, column, want, v)
	}
	return nil
}
