package memory

import (
	"context"
	"sync"

	"dsar/internal/activity"
)

// InMemoryStore keeps events for the lifetime of the process.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []activity.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event activity.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectName string) ([]activity.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []activity.Event
	for _, e := range s.events {
		if activity.SameSubject(e.SubjectName, subjectName) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns the last limit events in insertion order.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]activity.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.events)-limit, 0)
	return append([]activity.Event{}, s.events[start:]...), nil
}
