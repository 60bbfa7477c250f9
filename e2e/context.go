package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TestContext carries one scenario's HTTP state against a running dsar serve.
type TestContext struct {
	baseURL   string
	exportDir string
	token     string
	client    *http.Client

	lastStatus int
	lastHeader http.Header
	lastBody   []byte
}

// NewTestContext reads E2E_BASE_URL, E2E_EXPORT_DIR and E2E_TOKEN.
func NewTestContext() *TestContext {
	base := os.Getenv("E2E_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return &TestContext{
		baseURL:   strings.TrimRight(base, "/"),
		exportDir: os.Getenv("E2E_EXPORT_DIR"),
		token:     os.Getenv("E2E_TOKEN"),
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Reset clears response state between scenarios. The token is restored from
// the environment.
func (tc *TestContext) Reset() {
	tc.token = os.Getenv("E2E_TOKEN")
	tc.lastStatus = 0
	tc.lastHeader = nil
	tc.lastBody = nil
}

func (tc *TestContext) POST(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(data), nil)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	return nil
}

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) GetLastResponseStatus() int  { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }
func (tc *TestContext) GetLastResponseHeader(name string) string {
	return tc.lastHeader.Get(name)
}

func (tc *TestContext) GetExportDir() string  { return tc.exportDir }
func (tc *TestContext) GetToken() string      { return tc.token }
func (tc *TestContext) SetToken(token string) { tc.token = token }
