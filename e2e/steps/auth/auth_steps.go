package auth

import (
	"context"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	GetToken() string
	SetToken(token string)
}

// RegisterSteps registers operator token steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I am an authenticated operator$`, steps.authenticated)
	ctx.Step(`^I send no token$`, steps.noToken)
	ctx.Step(`^I GET "([^"]*)" with invalid token "([^"]*)"$`, steps.getWithInvalidToken)
}

type authSteps struct {
	tc TestContext
}

// authenticated relies on E2E_TOKEN, minted with `dsar token` and holding
// every scope. A server without a signing key accepts requests without one.
func (s *authSteps) authenticated(ctx context.Context) error {
	return nil
}

// noToken drops the token. Scenarios using it only make sense against a
// server that validates tokens, so they are skipped when none is configured.
func (s *authSteps) noToken(ctx context.Context) error {
	if s.tc.GetToken() == "" {
		return godog.ErrSkip
	}
	s.tc.SetToken("")
	return nil
}

func (s *authSteps) getWithInvalidToken(ctx context.Context, path, token string) error {
	if s.tc.GetToken() == "" {
		return godog.ErrSkip
	}
	s.tc.SetToken("")
	return s.tc.GET(path, map[string]string{
		"Authorization": "Bearer " + token,
	})
}
