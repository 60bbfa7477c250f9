// Package publisher emits activity events to a store, either synchronously
// or through a bounded buffer drained by a background goroutine.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dsar/internal/activity"
	"dsar/internal/platform/metrics"
)

// ErrBufferFull is returned by Emit in async mode when the buffer has no room.
var ErrBufferFull = errors.New("activity buffer full")

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("activity publisher closed")

// Publisher writes events to the store and fans them out to sinks. Sink
// failures are logged and counted but never fail the caller.
type Publisher struct {
	store   activity.Store
	sinks   []activity.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	bufSize int
	buffer  chan activity.Event
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n
// events. n <= 0 keeps sync mode.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) { p.bufSize = n }
}

// WithLogger sets a logger for persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithSink adds a fan-out destination.
func WithSink(s activity.Sink) Option {
	return func(p *Publisher) {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher creates a publisher over store.
func NewPublisher(store activity.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize > 0 {
		p.buffer = make(chan activity.Event, p.bufSize)
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. A missing ID or timestamp is filled in.
func (p *Publisher) Emit(ctx context.Context, event activity.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if p.buffer == nil {
		return p.persist(ctx, event)
	}

	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.metrics.IncActivityDropped()
		p.logger.WarnContext(ctx, "activity buffer full, event dropped",
			"event", event.Type,
			"vendor", event.Vendor,
			"run_id", event.RunID,
		)
		return ErrBufferFull
	}
}

// Import copies events already recorded elsewhere into the store. They keep
// their IDs and timestamps and are not fanned out to sinks.
func (p *Publisher) Import(ctx context.Context, events []activity.Event) error {
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
	}
	if b, ok := p.store.(activity.BatchAppender); ok {
		return b.AppendAll(ctx, events)
	}
	for _, e := range events {
		if err := p.store.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// List returns the trail for one subject.
func (p *Publisher) List(ctx context.Context, subjectName string) ([]activity.Event, error) {
	return p.store.ListBySubject(ctx, subjectName)
}

// Recent returns the newest events across all subjects, oldest first.
func (p *Publisher) Recent(ctx context.Context, limit int) ([]activity.Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// Summary summarizes the trail for one subject.
func (p *Publisher) Summary(ctx context.Context, subjectName string) (activity.Summary, error) {
	events, err := p.List(ctx, subjectName)
	if err != nil {
		return activity.Summary{}, err
	}
	return activity.Summarize(events, subjectName), nil
}

// Close stops accepting events and, in async mode, drains the buffer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		// The emitting request may be gone by now.
		_ = p.persist(context.Background(), event)
	}
}

func (p *Publisher) persist(ctx context.Context, event activity.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncActivityFailures()
		p.logger.ErrorContext(ctx, "activity event not persisted",
			"event", event.Type,
			"vendor", event.Vendor,
			"run_id", event.RunID,
			"error", err,
		)
		return err
	}
	p.metrics.IncActivityEvents(string(event.Type))

	for _, s := range p.sinks {
		if err := s.Publish(ctx, event); err != nil {
			p.metrics.IncActivityFailures()
			p.logger.WarnContext(ctx, "activity sink publish failed",
				"event", event.Type,
				"run_id", event.RunID,
				"error", err,
			)
		}
	}
	return nil
}
