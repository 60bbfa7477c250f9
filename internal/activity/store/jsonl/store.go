// Package jsonl keeps the activity trail as JSON Lines next to the reports,
// one event per line, append only.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dsar/internal/activity"
)

// FileName is the trail file inside the output directory.
const FileName = "dsar_activity.jsonl"

const maxLine = 1 << 20

// Store appends to {dir}/dsar_activity.jsonl.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create activity dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, FileName)}, nil
}

// Path is the trail file.
func (s *Store) Path() string { return s.path }

func (s *Store) Append(ctx context.Context, event activity.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal activity event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append activity event: %w", err)
	}
	return f.Close()
}

func (s *Store) ListBySubject(ctx context.Context, subjectName string) ([]activity.Event, error) {
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []activity.Event
	for _, e := range all {
		if activity.SameSubject(e.SubjectName, subjectName) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]activity.Event, error) {
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return all[max(len(all)-limit, 0):], nil
}

// readAll skips lines that do not decode, e.g. a line cut short by a crash.
func (s *Store) readAll(ctx context.Context) ([]activity.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	defer f.Close()

	var events []activity.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var e activity.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read activity log: %w", err)
	}
	return events, nil
}
