package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"dsar/internal/activity"
)

const (
	// Every event, in arrival order.
	logKey = "dsar:activity:log"
	// Per-subject list; suffix is activity.SubjectKey.
	subjectKeyPrefix = "dsar:activity:subject:"
)

// Store keeps the trail in redis lists so several operator instances share it.
type Store struct {
	client redis.Cmdable
}

// New creates a store over any go-redis client.
func New(client redis.Cmdable) *Store {
	return &Store{client: client}
}

// Append pushes the event onto the global and the subject list atomically.
func (s *Store) Append(ctx context.Context, event activity.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal activity event: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, logKey, payload)
		pipe.RPush(ctx, subjectKeyPrefix+activity.SubjectKey(event.SubjectName), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append activity event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subjectName string) ([]activity.Event, error) {
	return s.rangeList(ctx, subjectKeyPrefix+activity.SubjectKey(subjectName), 0, -1)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]activity.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.rangeList(ctx, logKey, int64(-limit), -1)
}

func (s *Store) rangeList(ctx context.Context, key string, start, stop int64) ([]activity.Event, error) {
	raw, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read activity events: %w", err)
	}
	events := make([]activity.Event, 0, len(raw))
	for _, item := range raw {
		var e activity.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode activity event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}
