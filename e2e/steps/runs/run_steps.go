package runs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetResponseField(field string) (any, error)
	GetExportDir() string
}

const crmExport = `{
  "members": [
    {"id": 7, "firstName": "Jane", "lastName": "Doe", "email": "jane@co.com"},
    {"id": 8, "name": "Bob Smith", "email": "bob@co.com"}
  ],
  "notes": [
    {"body": "Spoke with Jane Doe about Carol White", "created": "2024-01-05", "author": {"name": "Bob Smith", "email": "bob@co.com"}}
  ]
}`

// RegisterSteps registers run and package step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &runSteps{tc: tc}

	ctx.Step(`^a generic JSON export "([^"]*)" mentioning "([^"]*)"$`, steps.writeExport)
	ctx.Step(`^I run a DSAR for "([^"]*)" over "([^"]*)" as "([^"]*)"$`, steps.run)
	ctx.Step(`^I run and compile a DSAR for "([^"]*)" over "([^"]*)" as "([^"]*)" redacting "([^"]*)"$`, steps.runAndCompile)
	ctx.Step(`^I request a package for "([^"]*)"$`, steps.requestPackage)
	ctx.Step(`^the first outcome should have status "([^"]*)"$`, steps.firstOutcomeStatus)
	ctx.Step(`^the first outcome should have failure "([^"]*)"$`, steps.firstOutcomeFailure)
}

type runSteps struct {
	tc TestContext
}

// writeExport places a fixture in E2E_EXPORT_DIR, which must be the server's
// DSAR_EXPORT_DIR (or a directory it can read when that is unset).
func (s *runSteps) writeExport(ctx context.Context, name, _ string) error {
	dir := s.tc.GetExportDir()
	if dir == "" {
		return errors.New("E2E_EXPORT_DIR must name a directory shared with the server")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(crmExport), 0o600)
}

func (s *runSteps) path(name string) string {
	return filepath.Join(s.tc.GetExportDir(), name)
}

func (s *runSteps) run(ctx context.Context, subject, export, vendor string) error {
	return s.tc.POST("/v1/runs", map[string]any{
		"subject": map[string]string{"name": subject},
		"sources": []map[string]string{{"vendor": vendor, "path": s.path(export)}},
	})
}

func (s *runSteps) runAndCompile(ctx context.Context, subject, export, vendor, redact string) error {
	return s.tc.POST("/v1/runs", map[string]any{
		"subject": map[string]string{"name": subject},
		"sources": []map[string]string{{"vendor": vendor, "path": s.path(export)}},
		"redact":  []string{redact},
		"compile": true,
	})
}

func (s *runSteps) requestPackage(ctx context.Context, subject string) error {
	return s.tc.POST("/v1/packages", map[string]any{
		"subject": map[string]string{"name": subject},
	})
}

func (s *runSteps) firstOutcome() (map[string]any, error) {
	v, err := s.tc.GetResponseField("outcomes")
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("no outcomes in response")
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected outcome shape %T", list[0])
	}
	return first, nil
}

func (s *runSteps) firstOutcomeStatus(ctx context.Context, want string) error {
	o, err := s.firstOutcome()
	if err != nil {
		return err
	}
	if got := fmt.Sprint(o["status"]); got != want {
		return fmt.Errorf("expected status %q, got %q (%v)", want, got, o["error"])
	}
	return nil
}

func (s *runSteps) firstOutcomeFailure(ctx context.Context, want string) error {
	o, err := s.firstOutcome()
	if err != nil {
		return err
	}
	if got := fmt.Sprint(o["failure"]); got != want {
		return fmt.Errorf("expected failure %q, got %q", want, got)
	}
	return nil
}
