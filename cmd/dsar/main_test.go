package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsar/internal/pipeline"
	"dsar/pkg/platform/sentinel"
)

const genericExport = `{
  "members": [
    {"id": 7, "firstName": "Jane", "lastName": "Doe", "email": "jane@co.com"},
    {"id": 8, "name": "Bob Smith", "email": "bob@co.com"}
  ],
  "notes": [
    {"body": "Spoke with Jane Doe about Carol White", "created": "2024-01-05", "author": {"name": "Bob Smith", "email": "bob@co.com"}}
  ]
}`

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DSAR_OUTPUT_DIR", filepath.Join(dir, "output"))
	t.Setenv("DSAR_ACTIVITY_BACKEND", "memory")
	t.Setenv("DSAR_LOG_LEVEL", "error")
	t.Setenv("DSAR_COMPANY_NAME", "Acme Ltd")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCompilesPackage(t *testing.T) {
	dir := setupEnv(t)
	export := filepath.Join(dir, "crm.json")
	require.NoError(t, os.WriteFile(export, []byte(genericExport), 0o600))

	out, err := execute(t, "run", "--json",
		"--name", "Jane Doe",
		"--source", "generic_json="+export,
		"--source", "Teams="+export,
		"--redact", "Carol White",
		"--compile",
		"--request-date", "2024-03-01",
	)
	require.NoError(t, err)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Outcomes, 2)
	assert.True(t, res.Outcomes[0].OK())
	assert.Equal(t, "Generic_JSON", res.Outcomes[0].Vendor)
	assert.False(t, res.Outcomes[1].OK())

	require.NotNil(t, res.Manifest)
	assert.Equal(t, 1, res.Manifest.Summary.VendorsIncluded)
	require.Len(t, res.Manifest.Excluded, 1)
	assert.Equal(t, "Teams", res.Manifest.Excluded[0].Vendor)
	assert.FileExists(t, res.Archive)
	assert.Equal(t, filepath.Join(dir, "output"), filepath.Dir(res.Archive))

	t.Run("keys land beside the output directory", func(t *testing.T) {
		keys, err := filepath.Glob(filepath.Join(dir, "output_internal", "Generic_JSON_REDACTION_KEY_Jane_Doe_*.json"))
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("report is redacted", func(t *testing.T) {
		data, err := os.ReadFile(res.Outcomes[0].Artifacts.JSON)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Spoke with Jane Doe about [External 1]")
		assert.NotContains(t, string(data), "Bob Smith")
	})
}

func TestProcessReportsFailure(t *testing.T) {
	setupEnv(t)
	out, err := execute(t, "process", "--name", "Jane Doe", "--vendor", "Slack", "--export", "missing.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 sources failed: Slack")
	assert.Contains(t, out, "missing_export")
}

func TestCompileWithoutReports(t *testing.T) {
	dir := setupEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "output"), 0o750))
	_, err := execute(t, "compile", "--name", "Jane Doe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source reports")
}

func TestVendorsLists(t *testing.T) {
	setupEnv(t)
	out, err := execute(t, "vendors")
	require.NoError(t, err)
	for _, v := range []string{"Slack", "Jira", "Zendesk", "Generic_JSON", "Generic_CSV"} {
		assert.Contains(t, out, v)
	}
}

func TestToken(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "token", "--operator", "alice")
	require.Error(t, err, "no signing key")

	t.Setenv("DSAR_JWT_SIGNING_KEY", "k")
	out, err := execute(t, "token", "--operator", "alice", "--scopes", "dsar:read")
	require.NoError(t, err)
	assert.Regexp(t, `^[\w-]+\.[\w-]+\.[\w-]+\n$`, out)
}

func TestParseSources(t *testing.T) {
	jobs, err := parseSources([]string{"Slack=./a.zip", " Jira = b.json "})
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Job{{Vendor: "Slack", Path: "./a.zip"}, {Vendor: "Jira", Path: "b.json"}}, jobs)

	for _, bad := range []string{"Slack", "=a.zip", "Slack="} {
		_, err := parseSources([]string{bad})
		assert.ErrorIs(t, err, sentinel.ErrInvalidInput, bad)
	}
}

func TestParseRequestDate(t *testing.T) {
	got, err := parseRequestDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got.UTC())

	got, err = parseRequestDate("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseRequestDate("soon")
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}

func TestActivityShowAndImport(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("DSAR_ACTIVITY_BACKEND", "jsonl")
	export := filepath.Join(dir, "crm.json")
	require.NoError(t, os.WriteFile(export, []byte(genericExport), 0o600))

	_, err := execute(t, "run", "--name", "Jane Doe", "--source", "generic_json="+export)
	require.NoError(t, err)

	out, err := execute(t, "activity", "show", "--json", "--name", "jane doe")
	require.NoError(t, err)
	var shown struct {
		Events  []map[string]any `json:"events"`
		Summary struct {
			VendorsProcessed []string `json:"vendors_processed"`
			TotalRecords     int      `json:"total_records"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.NotEmpty(t, shown.Events)
	assert.Equal(t, []string{"Generic_JSON"}, shown.Summary.VendorsProcessed)
	assert.Positive(t, shown.Summary.TotalRecords)

	t.Run("import into the active trail is refused", func(t *testing.T) {
		_, err := execute(t, "activity", "import", "--from", filepath.Join(dir, "output"))
		assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
	})

	t.Run("import into another trail", func(t *testing.T) {
		out, err := execute(t, "--output", filepath.Join(dir, "other"), "activity", "import", "--from", filepath.Join(dir, "output"))
		require.NoError(t, err)
		assert.Contains(t, out, "imported")

		out, err = execute(t, "--output", filepath.Join(dir, "other"), "activity", "show", "--json", "--name", "Jane Doe")
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal([]byte(out), &shown))
		assert.Equal(t, []string{"Generic_JSON"}, shown.Summary.VendorsProcessed)
	})
}
