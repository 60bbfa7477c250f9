//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"dsar/internal/activity"
	"dsar/internal/activity/sink/kafka"
	"dsar/internal/platform/logger"
	"dsar/pkg/testutil/containers"
)

func TestSinkPublishes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink, err := kafka.New(ctx, rp.Brokers, "dsar.activity.test", kafka.WithLogger(logger.Discard()))
	require.NoError(t, err)
	defer sink.Close()

	// A second sink on the same topic must tolerate the existing topic.
	again, err := kafka.New(ctx, rp.Brokers, "dsar.activity.test", kafka.WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, again.Close())

	event := activity.Event{ID: "evt-1", Type: activity.EventProcessingComplete, RunID: "run-1", Vendor: "Slack", SubjectName: "Jane Doe", Records: 3}
	require.NoError(t, sink.Publish(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(sink.Topic()),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)

	assert.Equal(t, "run-1", string(records[0].Key))
	var got activity.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, 3, got.Records)
}
