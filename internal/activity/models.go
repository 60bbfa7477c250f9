// Package activity records what the toolkit did for each data subject: which
// sources were processed, with what outcome, and when packages were compiled.
// The trail backs the processing_activity section of the package manifest.
package activity

import (
	"context"
	"time"
)

// EventType names one step of a DSAR run.
type EventType string

const (
	EventProcessingStarted          EventType = "processing_started"
	EventDataSubjectFound           EventType = "data_subject_found"
	EventProcessingComplete         EventType = "processing_complete"
	EventProcessingFailed           EventType = "processing_failed"
	EventPackageCompilationStarted  EventType = "package_compilation_started"
	EventPackageCompilationComplete EventType = "package_compilation_complete"
	EventPackageCompilationFailed   EventType = "package_compilation_failed"
	EventSourceExcluded             EventType = "source_excluded"
)

// Statuses carried by terminal events.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Event is one line of the activity trail. It never carries redacted
// content or key material, only the subject the run was for.
type Event struct {
	ID               string    `json:"id,omitempty"`
	Type             EventType `json:"event_type"`
	Timestamp        time.Time `json:"timestamp"`
	RunID            string    `json:"run_id,omitempty"`
	Vendor           string    `json:"vendor,omitempty"`
	SubjectName      string    `json:"data_subject_name,omitempty"`
	SubjectEmail     string    `json:"data_subject_email,omitempty"`
	Status           string    `json:"status,omitempty"`
	Records          int       `json:"records_processed,omitempty"`
	ExecutionSeconds float64   `json:"execution_time_seconds,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Store persists activity events. Lists are oldest first.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectName string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// BatchAppender is implemented by stores that can append many events
// atomically.
type BatchAppender interface {
	AppendAll(ctx context.Context, events []Event) error
}

// Sink receives a copy of every persisted event, e.g. a Kafka topic.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
