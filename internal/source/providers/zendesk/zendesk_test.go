package zendesk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsar/internal/domain"
	"dsar/internal/platform/logger"
	"dsar/internal/source"
)

const exportJSON = `{
  "users": [
    {"id": 101, "name": "Jane Doe", "email": "jane@co.com", "phone": "555-0100-22", "role": "end-user", "created_at": "2023-01-02T03:04:05Z", "active": true, "tags": ["vip", "emea"]},
    {"id": 202, "name": "Agent Smith", "email": "agent@support.com", "role": "agent"},
    {"id": "303", "name": "Other Customer", "email": "other@x.com"}
  ],
  "tickets": [
    {"id": 1, "subject": "Login broken", "description": "<p>I cannot log in</p>", "status": "open", "priority": "high", "requester_id": 101, "submitter_id": 101, "assignee_id": 202, "created_at": "2024-01-01T10:00:00Z"},
    {"id": 2, "subject": "Refund", "description": "Customer Jane Doe called about a refund", "status": "solved", "requester_id": 303, "submitter_id": 202, "created_at": "2024-02-01T10:00:00Z"},
    {"id": 3, "subject": "Unrelated", "description": "nothing here", "status": "closed", "requester_id": 303, "created_at": "2024-03-01T10:00:00Z"}
  ],
  "comments": [
    {"ticket_id": 1, "author_id": 101, "body": "Still broken!", "public": true, "created_at": "2024-01-02T10:00:00Z"},
    {"ticket_id": 1, "author_id": 202, "body": "Sent a reset link to jane@co.com", "created_at": "2024-01-03T10:00:00Z"},
    {"ticket_id": 3, "author_id": 202, "body": "closing", "created_at": "2024-03-02T10:00:00Z"}
  ],
  "ticket_events": [
    {"ticket_id": 1, "updater_id": 101, "event_type": "Change", "timestamp": "2024-01-04T10:00:00Z"},
    {"ticket_id": 3, "updater_id": 202, "event_type": "Change", "timestamp": "2024-03-03T10:00:00Z"}
  ]
}`

func writeExport(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "zendesk.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestExtract(t *testing.T) {
	a := New(logger.Discard())
	exp, err := a.Extract(context.Background(), writeExport(t, exportJSON), source.SubjectQuery{Name: "Jane Doe"})
	require.NoError(t, err)

	assert.Equal(t, "101", exp.Subject.ID)
	assert.Len(t, exp.Identities, 3)

	created, ok := exp.Profile.Get("Created At")
	require.True(t, ok)
	assert.Equal(t, "2023-01-02 03:04:05", created)
	tags, _ := exp.Profile.Get("Tags")
	assert.Equal(t, "vip, emea", tags)

	require.Len(t, exp.Records, 5)

	byKind := map[string][]domain.Record{}
	for _, r := range exp.Records {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}

	require.Len(t, byKind["ticket_created"], 2)
	named := byKind["ticket_created"][0]
	assert.Equal(t, "Ticket #2", named.Category)
	assert.Equal(t, []domain.Relationship{domain.RelationshipNamed}, named.Relationships)

	own := byKind["ticket_created"][1]
	assert.Equal(t, []domain.Relationship{domain.RelationshipRequester}, own.Relationships)
	assert.Contains(t, own.Content, "Description: I cannot log in")
	assert.NotContains(t, own.Content, "<p>")

	require.Len(t, byKind["comment"], 2)
	assert.Equal(t, "Ticket #1 - Login broken", byKind["comment"][0].Category)
	assert.Equal(t, []domain.Relationship{domain.RelationshipEmailReferenced}, byKind["comment"][0].Relationships)
	assert.Equal(t, "true", byKind["comment"][1].Fields["public"])

	require.Len(t, byKind["ticket_update"], 1)
	assert.Equal(t, "Event: Change", byKind["ticket_update"][0].Content)

	assert.True(t, exp.Records[0].Timestamp.After(exp.Records[len(exp.Records)-1].Timestamp))
}

func TestExtractErrors(t *testing.T) {
	a := New(logger.Discard())
	ctx := context.Background()

	t.Run("invalid json", func(t *testing.T) {
		_, err := a.Extract(ctx, writeExport(t, `{"users": [`), source.SubjectQuery{Name: "Jane Doe"})
		assert.ErrorIs(t, err, source.ErrMalformedSource)
	})

	t.Run("no users", func(t *testing.T) {
		_, err := a.Extract(ctx, writeExport(t, `{"tickets": []}`), source.SubjectQuery{Name: "Jane Doe"})
		assert.ErrorIs(t, err, source.ErrMalformedSource)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := a.Extract(ctx, filepath.Join(t.TempDir(), "none.json"), source.SubjectQuery{Name: "Jane Doe"})
		assert.Equal(t, source.FailureMissingExport, source.Classify(err))
	})

	t.Run("subject absent", func(t *testing.T) {
		_, err := a.Extract(ctx, writeExport(t, exportJSON), source.SubjectQuery{Name: "Nobody Here"})
		assert.ErrorIs(t, err, source.ErrSubjectNotFound)
	})
}
