package assembler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsar/pkg/platform/sentinel"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Slack_DSAR_Jane_Doe_20240301_090000.json"))
	touch(t, filepath.Join(dir, "Slack_DSAR_Jane_Doe_20240305_090000.json"))
	touch(t, filepath.Join(dir, "Slack_DSAR_Jane_Doe_20240305_090000.md"))
	touch(t, filepath.Join(dir, "Generic_CSV_DSAR_Jane_Doe_20240302_120000.json"))
	// Other subjects, including one whose name starts with the same tokens.
	touch(t, filepath.Join(dir, "Slack_DSAR_Jane_Doe_Smith_20240306_090000.json"))
	touch(t, filepath.Join(dir, "Slack_DSAR_John_Roe_20240306_090000.json"))
	// Not reports.
	touch(t, filepath.Join(dir, "dsar_activity.jsonl"))
	touch(t, filepath.Join(dir, "DSAR_Jane_Doe_20240306_090000.zip"))
	// Keys in a nested directory must never be picked up.
	touch(t, filepath.Join(dir, "internal", "Slack_DSAR_Jane_Doe_20240309_090000.json"))

	refs, err := Discover(dir, "Jane Doe")
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "Generic_CSV", refs[0].Vendor)
	assert.Empty(t, refs[0].MarkdownPath)

	assert.Equal(t, "Slack", refs[1].Vendor)
	assert.Equal(t, filepath.Join(dir, "Slack_DSAR_Jane_Doe_20240305_090000.json"), refs[1].JSONPath)
	assert.Equal(t, filepath.Join(dir, "Slack_DSAR_Jane_Doe_20240305_090000.md"), refs[1].MarkdownPath)
	assert.Equal(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), refs[1].Generated)
}

func TestDiscoverErrors(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), "Jane Doe")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = Discover(t.TempDir(), "  ")
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}

func TestParseReportName(t *testing.T) {
	cases := []struct {
		name   string
		vendor string
		ok     bool
	}{
		{"Slack_DSAR_Jane_Doe_20240305_090000.json", "Slack", true},
		{"Generic_JSON_DSAR_Jane_Doe_20240305_090000.json", "Generic_JSON", true},
		{"Slack_DSAR_Jane_Doe_20240305_090000.md", "", false},
		{"_DSAR_Jane_Doe_20240305_090000.json", "", false},
		{"Slack_DSAR_Jane_Doe_2024030_090000.json", "", false},
		{"Slack_REDACTION_KEY_Jane_Doe_20240305_090000.json", "", false},
	}
	for _, tc := range cases {
		vendor, _, ok := parseReportName(tc.name, "Jane_Doe")
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.vendor, vendor, tc.name)
	}
}
