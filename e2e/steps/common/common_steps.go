package common

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastHeader(name string) string
}

// RegisterSteps registers generic request and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the explorer is healthy$`, steps.explorerIsHealthy)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBeString)
	ctx.Step(`^the response field "([^"]*)" should be (-?\d+(?:\.\d+)?)$`, steps.fieldShouldBeNumber)
	ctx.Step(`^the "([^"]*)" header should contain "([^"]*)"$`, steps.headerShouldContain)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) explorerIsHealthy(ctx context.Context) error {
	if err := s.tc.GET("/healthz"); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, 200)
}

func (s *commonSteps) statusShouldBe(ctx context.Context, want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) errorCodeShouldBe(ctx context.Context, code string) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return fmt.Errorf("error body is not JSON: %w", err)
	}
	if body.Error != code {
		return fmt.Errorf("expected error code %q, got %q", code, body.Error)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeString(ctx context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got, ok := v.(string); !ok || got != want {
		return fmt.Errorf("expected %s to be %q, got %v", field, want, v)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeNumber(ctx context.Context, field string, want float64) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got, ok := v.(float64); !ok || got != want {
		return fmt.Errorf("expected %s to be %v, got %v", field, want, v)
	}
	return nil
}

func (s *commonSteps) headerShouldContain(ctx context.Context, header, want string) error {
	if got := s.tc.GetLastHeader(header); !strings.Contains(got, want) {
		return fmt.Errorf("expected header %s to contain %q, got %q", header, want, got)
	}
	return nil
}
