package provenance

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	AdminDo(method, path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Scoped(name string) string
	RememberSource(name string, id int64)
	SourceID(name string) (int64, error)
}

// RegisterSteps registers source, data point and contradiction steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &provenanceSteps{tc: tc}

	ctx.Step(`^an? "([^"]*)" source "([^"]*)" with trust tier "([^"]*)"$`, steps.registerSource)
	ctx.Step(`^I record the metric "([^"]*)" with value "([^"]*)" from "([^"]*)" citing "([^"]*)" with government figure "([^"]*)" and independent figure "([^"]*)"$`, steps.recordDualFigures)
	ctx.Step(`^the metric "([^"]*)" with value "([^"]*)" from "([^"]*)" citing "([^"]*)" has been recorded$`, steps.metricRecorded)
	ctx.Step(`^I delete the source "([^"]*)"$`, steps.deleteSource)
	ctx.Step(`^I query "data_points" where "metric_name" equals the metric "([^"]*)"$`, steps.queryMetric)
	ctx.Step(`^an open contradiction should exist for the metric "([^"]*)"$`, steps.openContradictionExists)
}

type provenanceSteps struct {
	tc TestContext
}

func (s *provenanceSteps) registerSource(ctx context.Context, category, name, tier string) error {
	err := s.tc.AdminDo(http.MethodPost, "/admin/sources", map[string]any{
		"name":       s.tc.Scoped(name),
		"category":   category,
		"trust_tier": tier,
		"url":        "https://example.org/" + category,
	})
	if err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != http.StatusCreated {
		return fmt.Errorf("register source %q: status %d: %s", name, got, s.tc.GetLastResponseBody())
	}
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.RememberSource(name, int64(id.(float64)))
	return nil
}

func (s *provenanceSteps) record(metric, value, primary, citing string, extra map[string]any) error {
	primaryID, err := s.tc.SourceID(primary)
	if err != nil {
		return err
	}
	citingID, err := s.tc.SourceID(citing)
	if err != nil {
		return err
	}
	body := map[string]any{
		"metric_name":       s.tc.Scoped(metric),
		"value":             value,
		"primary_source_id": primaryID,
		"cross_references":  []int64{citingID},
	}
	for k, v := range extra {
		body[k] = v
	}
	return s.tc.AdminDo(http.MethodPost, "/admin/data-points", body)
}

func (s *provenanceSteps) recordDualFigures(ctx context.Context, metric, value, primary, citing, gov, indep string) error {
	return s.record(metric, value, primary, citing, map[string]any{
		"government_figure":  gov,
		"independent_figure": indep,
	})
}

func (s *provenanceSteps) metricRecorded(ctx context.Context, metric, value, primary, citing string) error {
	if err := s.record(metric, value, primary, citing, nil); err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != http.StatusCreated {
		return fmt.Errorf("record %q: status %d: %s", metric, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *provenanceSteps) deleteSource(ctx context.Context, name string) error {
	id, err := s.tc.SourceID(name)
	if err != nil {
		return err
	}
	return s.tc.AdminDo(http.MethodDelete, fmt.Sprintf("/admin/sources/%d", id), nil)
}

func (s *provenanceSteps) queryMetric(ctx context.Context, metric string) error {
	return s.tc.POST("/query", map[string]any{
		"table": "data_points",
		"filters": []map[string]any{
			{"column": "metric_name", "operator": "equals", "value": s.tc.Scoped(metric)},
		},
	})
}

func (s *provenanceSteps) openContradictionExists(ctx context.Context, metric string) error {
	err := s.tc.POST("/query", map[string]any{
		"table": "contradictions",
		"filters": []map[string]any{
			{"column": "metric_name", "value": s.tc.Scoped(metric)},
			{"column": "status", "value": "open"},
		},
	})
	if err != nil {
		return err
	}
	total, err := s.tc.GetResponseField("total_matched")
	if err != nil {
		return err
	}
	if total != float64(1) {
		return fmt.Errorf("expected one open contradiction for %q, got %v", metric, total)
	}
	return nil
}
