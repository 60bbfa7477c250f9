package ratelimit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
}

// maxAttempts stays above the default DSAR_RATE_LIMIT_REQUESTS.
const maxAttempts = 100

// RegisterSteps registers rate-limiting step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I keep requesting packages for "([^"]*)" until limited$`, steps.requestUntilLimited)
	ctx.Step(`^the request should have been limited$`, steps.shouldBeLimited)
}

type ratelimitSteps struct {
	tc       TestContext
	attempts int
}

// requestUntilLimited uses package requests for an unknown subject: they are
// counted against the limit but do no work on the server.
func (s *ratelimitSteps) requestUntilLimited(ctx context.Context, subject string) error {
	body := map[string]any{"subject": map[string]string{"name": subject}}
	for s.attempts = 1; s.attempts <= maxAttempts; s.attempts++ {
		if err := s.tc.POST("/v1/packages", body); err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() == http.StatusTooManyRequests {
			return nil
		}
	}
	return nil
}

func (s *ratelimitSteps) shouldBeLimited(ctx context.Context) error {
	if s.tc.GetLastResponseStatus() != http.StatusTooManyRequests {
		return fmt.Errorf("no 429 after %d requests (last status %d)", maxAttempts, s.tc.GetLastResponseStatus())
	}
	if s.tc.GetLastResponseHeader("Retry-After") == "" {
		return fmt.Errorf("429 without Retry-After")
	}
	return nil
}
