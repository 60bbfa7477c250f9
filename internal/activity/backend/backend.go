// Package backend builds the activity publisher selected by configuration.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"dsar/internal/activity"
	"dsar/internal/activity/publisher"
	"dsar/internal/activity/sink/kafka"
	"dsar/internal/activity/store/jsonl"
	"dsar/internal/activity/store/memory"
	"dsar/internal/activity/store/postgres"
	redisstore "dsar/internal/activity/store/redis"
	"dsar/internal/platform/config"
	"dsar/internal/platform/metrics"
	platformredis "dsar/internal/platform/redis"
)

// Backend owns the publisher and every connection opened for it.
type Backend struct {
	*publisher.Publisher
	closers []func() error
}

// Close drains the publisher, then releases connections in reverse order.
func (b *Backend) Close() error {
	errs := []error{b.Publisher.Close()}
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// Open connects the configured store and, when brokers are set, the Kafka
// sink.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Backend, error) {
	b := &Backend{}
	fail := func(err error) (*Backend, error) {
		for i := len(b.closers) - 1; i >= 0; i-- {
			_ = b.closers[i]()
		}
		return nil, err
	}

	var store activity.Store
	switch cfg.Activity.Backend {
	case config.BackendMemory:
		store = memory.NewInMemoryStore()
	case config.BackendJSONL, "":
		s, err := jsonl.New(cfg.OutputDir)
		if err != nil {
			return fail(err)
		}
		store = s
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.Activity.PostgresURL)
		if err != nil {
			return fail(fmt.Errorf("open postgres: %w", err))
		}
		b.closers = append(b.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return fail(fmt.Errorf("ping postgres: %w", err))
		}
		s := postgres.New(db)
		if err := s.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		store = s
	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		if client == nil {
			return fail(errors.New("redis activity backend selected without DSAR_REDIS_URL"))
		}
		b.closers = append(b.closers, client.Close)
		store = redisstore.New(client)
	default:
		return fail(fmt.Errorf("unknown activity backend %q", cfg.Activity.Backend))
	}

	opts := []publisher.Option{
		publisher.WithLogger(logger),
		publisher.WithMetrics(m),
		publisher.WithAsyncBuffer(cfg.Activity.AsyncBuffer),
	}
	if len(cfg.Activity.KafkaBrokers) > 0 {
		sink, err := kafka.New(ctx, cfg.Activity.KafkaBrokers, cfg.Activity.KafkaTopic, kafka.WithLogger(logger))
		if err != nil {
			return fail(err)
		}
		b.closers = append(b.closers, sink.Close)
		opts = append(opts, publisher.WithSink(sink))
	}

	b.Publisher = publisher.NewPublisher(store, opts...)
	logger.DebugContext(ctx, "activity backend opened", "backend", cfg.Activity.Backend)
	return b, nil
}
