package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"dsar/internal/activity"
	txcontext "dsar/pkg/platform/tx"
)

// Schema creates the activity table. Applied by EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS dsar_activity (
	id                TEXT PRIMARY KEY,
	event_type        TEXT NOT NULL,
	timestamp         TIMESTAMPTZ NOT NULL,
	run_id            TEXT NOT NULL DEFAULT '',
	vendor            TEXT NOT NULL DEFAULT '',
	subject_name      TEXT NOT NULL DEFAULT '',
	subject_key       TEXT NOT NULL DEFAULT '',
	subject_email     TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT '',
	records           INTEGER NOT NULL DEFAULT 0,
	execution_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason            TEXT NOT NULL DEFAULT '',
	error             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS dsar_activity_subject_idx ON dsar_activity (subject_key, timestamp);
`

// Store implements activity.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a store over an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the table and index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create activity schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an event. Replays of the same ID are ignored.
func (s *Store) Append(ctx context.Context, event activity.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	query := `
		INSERT INTO dsar_activity (
			id, event_type, timestamp, run_id, vendor,
			subject_name, subject_key, subject_email, status,
			records, execution_seconds, reason, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		event.Timestamp,
		event.RunID,
		event.Vendor,
		event.SubjectName,
		activity.SubjectKey(event.SubjectName),
		event.SubjectEmail,
		event.Status,
		event.Records,
		event.ExecutionSeconds,
		event.Reason,
		event.Error,
	)
	if err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}

// AppendAll inserts events in one transaction, so an import either lands
// whole or not at all.
func (s *Store) AppendAll(ctx context.Context, events []activity.Event) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		for _, e := range events {
			if err := s.Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

const selectColumns = `
	SELECT id, event_type, timestamp, run_id, vendor,
		   subject_name, subject_email, status,
		   records, execution_seconds, reason, error
	FROM dsar_activity
`

// ListBySubject returns a subject's events oldest first.
func (s *Store) ListBySubject(ctx context.Context, subjectName string) ([]activity.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE subject_key = $1
		ORDER BY timestamp ASC, id ASC
	`, activity.SubjectKey(subjectName))
	if err != nil {
		return nil, fmt.Errorf("query activity events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the newest limit events, oldest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]activity.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (`+selectColumns+`
			ORDER BY timestamp DESC, id DESC
			LIMIT $1
		) recent
		ORDER BY timestamp ASC, id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]activity.Event, error) {
	var events []activity.Event
	for rows.Next() {
		var (
			e         activity.Event
			eventType string
		)
		err := rows.Scan(
			&e.ID,
			&eventType,
			&e.Timestamp,
			&e.RunID,
			&e.Vendor,
			&e.SubjectName,
			&e.SubjectEmail,
			&e.Status,
			&e.Records,
			&e.ExecutionSeconds,
			&e.Reason,
			&e.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		e.Type = activity.EventType(eventType)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity events: %w", err)
	}
	return events, nil
}
