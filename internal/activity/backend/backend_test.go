package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsar/internal/activity"
	"dsar/internal/activity/store/jsonl"
	"dsar/internal/platform/config"
	"dsar/internal/platform/logger"
)

func TestOpenJSONL(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output")
	cfg := &config.Config{OutputDir: out, Activity: config.Activity{Backend: config.BackendJSONL}}

	b, err := Open(context.Background(), cfg, logger.Discard(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Emit(ctx, activity.Event{Type: activity.EventProcessingStarted, SubjectName: "Jane Doe"}))
	require.NoError(t, b.Close())

	s, err := jsonl.New(out)
	require.NoError(t, err)
	events, err := s.ListBySubject(ctx, "Jane Doe")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestOpenMemoryAsync(t *testing.T) {
	cfg := &config.Config{Activity: config.Activity{Backend: config.BackendMemory, AsyncBuffer: 8}}

	b, err := Open(context.Background(), cfg, logger.Discard(), nil)
	require.NoError(t, err)
	require.NoError(t, b.Emit(context.Background(), activity.Event{Type: activity.EventProcessingStarted, SubjectName: "Jane Doe"}))
	require.NoError(t, b.Close())
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{Activity: config.Activity{Backend: "mongo"}}
	_, err := Open(context.Background(), cfg, logger.Discard(), nil)
	assert.ErrorContains(t, err, "unknown activity backend")
}

func TestOpenRedisWithoutURL(t *testing.T) {
	cfg := &config.Config{Activity: config.Activity{Backend: config.BackendRedis}}
	_, err := Open(context.Background(), cfg, logger.Discard(), nil)
	assert.ErrorContains(t, err, "DSAR_REDIS_URL")
}
