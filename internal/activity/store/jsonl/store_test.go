package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsar/internal/activity"
)

func TestStoreAppendAndList(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ts := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, activity.Event{ID: "1", Type: activity.EventProcessingStarted, Timestamp: ts, Vendor: "Slack", SubjectName: "Jane Doe"}))
	require.NoError(t, s.Append(ctx, activity.Event{ID: "2", Type: activity.EventProcessingStarted, Timestamp: ts, Vendor: "Slack", SubjectName: "John Roe"}))
	require.NoError(t, s.Append(ctx, activity.Event{ID: "3", Type: activity.EventProcessingComplete, Timestamp: ts, Vendor: "Slack", SubjectName: "jane doe", Records: 7}))

	assert.Equal(t, filepath.Join(dir, FileName), s.Path())

	t.Run("by subject", func(t *testing.T) {
		events, err := s.ListBySubject(ctx, "Jane Doe")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "1", events[0].ID)
		assert.Equal(t, 7, events[1].Records)
		assert.Equal(t, ts, events[0].Timestamp)
	})

	t.Run("recent", func(t *testing.T) {
		events, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "2", events[0].ID)
		assert.Equal(t, "3", events[1].ID)
	})

	t.Run("one json object per line", func(t *testing.T) {
		data, err := os.ReadFile(s.Path())
		require.NoError(t, err)
		assert.Contains(t, string(data), `"event_type":"processing_started"`)
		assert.Contains(t, string(data), `"data_subject_name":"Jane Doe"`)
	})
}

func TestStoreSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	content := `{"event_type":"processing_started","data_subject_name":"Jane Doe"}
{"event_type":"processing_comp
{"event_type":"processing_complete","data_subject_name":"Jane Doe"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600))

	s, err := New(dir)
	require.NoError(t, err)
	events, err := s.ListBySubject(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	events, err := s.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
