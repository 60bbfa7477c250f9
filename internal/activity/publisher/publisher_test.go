package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsar/internal/activity"
	"dsar/internal/activity/store/memory"
	"dsar/internal/platform/logger"
	"dsar/internal/platform/metrics"
)

const subject = "Jane Doe"

func started(vendor string) activity.Event {
	return activity.Event{Type: activity.EventProcessingStarted, Vendor: vendor, SubjectName: subject}
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := metrics.New()
	pub := NewPublisher(store, WithLogger(logger.Discard()), WithMetrics(m))
	defer pub.Close()

	err := pub.Emit(context.Background(), started("Slack"))
	require.NoError(t, err)

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, activity.EventProcessingStarted, events[0].Type)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActivityEvents.WithLabelValues("processing_started")))
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10), WithLogger(logger.Discard()))
	defer pub.Close()

	err := pub.Emit(context.Background(), started("Jira"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		events, err := pub.List(context.Background(), subject)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100), WithLogger(logger.Discard()))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), started("Slack")))
	}

	require.NoError(t, pub.Close())

	events, err := store.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close(), "close is idempotent")

	err := pub.Emit(context.Background(), started("Slack"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := &blockingStore{InMemoryStore: memory.NewInMemoryStore(), release: make(chan struct{})}
	m := metrics.New()
	pub := NewPublisher(store, WithAsyncBuffer(1), WithMetrics(m), WithLogger(logger.Discard()))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		dropped int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(pub.Emit(context.Background(), started("Slack")), ErrBufferFull) {
				mu.Lock()
				dropped++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(store.release)
	require.NoError(t, pub.Close())

	// The worker holds at most one event and the buffer one more.
	assert.GreaterOrEqual(t, dropped, 8)
	assert.Equal(t, float64(dropped), testutil.ToFloat64(m.ActivityDropped))
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	fixed := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	pub := NewPublisher(memory.NewInMemoryStore(), WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), started("Slack")))

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	event := started("Slack")
	event.Timestamp = customTime
	event.ID = "evt-1"
	require.NoError(t, pub.Emit(context.Background(), event))

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
	assert.Equal(t, "evt-1", events[0].ID)
}

func TestPublisher_SyncStoreFailure(t *testing.T) {
	m := metrics.New()
	pub := NewPublisher(failingStore{memory.NewInMemoryStore()}, WithMetrics(m), WithLogger(logger.Discard()))
	defer pub.Close()

	err := pub.Emit(context.Background(), started("Slack"))
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActivityFailures))
}

func TestPublisher_SinkFailureDoesNotFailEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	good := &recordingSink{}
	pub := NewPublisher(store,
		WithLogger(logger.Discard()),
		WithSink(&recordingSink{err: errors.New("broker down")}),
		WithSink(good),
	)
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), started("Slack")))

	events, err := store.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Len(t, good.events, 1, "later sinks still receive the event")
}

func TestPublisher_Summary(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	defer pub.Close()
	ctx := context.Background()

	require.NoError(t, pub.Emit(ctx, activity.Event{Type: activity.EventProcessingComplete, Vendor: "Slack", SubjectName: subject, Records: 4}))
	require.NoError(t, pub.Emit(ctx, activity.Event{Type: activity.EventProcessingFailed, Vendor: "Jira", SubjectName: subject}))

	s, err := pub.Summary(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"Slack"}, s.VendorsProcessed)
	assert.Equal(t, []string{"Jira"}, s.VendorsFailed)
	assert.Equal(t, 4, s.TotalRecords)
}

func TestPublisher_MultipleEvents(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	defer pub.Close()

	types := []activity.EventType{
		activity.EventProcessingStarted,
		activity.EventDataSubjectFound,
		activity.EventProcessingComplete,
	}
	for _, typ := range types {
		require.NoError(t, pub.Emit(context.Background(), activity.Event{Type: typ, SubjectName: subject}))
	}

	result, err := pub.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, activity.EventDataSubjectFound, result[0].Type)
	assert.Equal(t, activity.EventProcessingComplete, result[1].Type)
}

type blockingStore struct {
	*memory.InMemoryStore
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, e activity.Event) error {
	<-s.release
	return s.InMemoryStore.Append(ctx, e)
}

type failingStore struct{ *memory.InMemoryStore }

func (failingStore) Append(context.Context, activity.Event) error {
	return errors.New("disk full")
}

type recordingSink struct {
	err    error
	events []activity.Event
}

func (s *recordingSink) Publish(_ context.Context, e activity.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func TestPublisher_ImportKeepsEventsAndSkipsSinks(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &recordingSink{}
	pub := NewPublisher(store, WithLogger(logger.Discard()), WithSink(sink))
	defer pub.Close()

	at := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	imported := []activity.Event{
		{ID: "e-1", Type: activity.EventProcessingStarted, Timestamp: at, Vendor: "Slack", SubjectName: subject},
		{Type: activity.EventProcessingComplete, Timestamp: at.Add(time.Second), Vendor: "Slack", SubjectName: subject, Records: 4},
	}
	require.NoError(t, pub.Import(context.Background(), imported))

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e-1", events[0].ID)
	assert.Equal(t, at, events[0].Timestamp)
	assert.NotEmpty(t, events[1].ID)
	assert.Empty(t, sink.events)
}
