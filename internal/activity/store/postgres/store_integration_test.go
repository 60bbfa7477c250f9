//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dsar/internal/activity"
	"dsar/internal/activity/store/postgres"
	"dsar/pkg/platform/tx"
	"dsar/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "dsar_activity"))
}

func event(typ activity.EventType, subject string, minute int) activity.Event {
	return activity.Event{
		ID:          uuid.NewString(),
		Type:        typ,
		Timestamp:   time.Date(2024, 3, 5, 9, minute, 0, 0, time.UTC),
		RunID:       "run-1",
		Vendor:      "Slack",
		SubjectName: subject,
	}
}

func (s *PostgresStoreSuite) TestAppendAndListBySubject() {
	ctx := context.Background()
	done := event(activity.EventProcessingComplete, "Jane Doe", 2)
	done.Records = 12
	done.ExecutionSeconds = 1.5

	s.Require().NoError(s.store.Append(ctx, done))
	s.Require().NoError(s.store.Append(ctx, event(activity.EventProcessingStarted, "jane  doe", 1)))
	s.Require().NoError(s.store.Append(ctx, event(activity.EventProcessingStarted, "John Roe", 3)))

	events, err := s.store.ListBySubject(ctx, "Jane Doe")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(activity.EventProcessingStarted, events[0].Type)
	s.Equal(12, events[1].Records)
	s.Equal(1.5, events[1].ExecutionSeconds)
}

func (s *PostgresStoreSuite) TestAppendIsIdempotentByID() {
	ctx := context.Background()
	e := event(activity.EventProcessingStarted, "Jane Doe", 1)
	s.Require().NoError(s.store.Append(ctx, e))
	s.Require().NoError(s.store.Append(ctx, e))

	events, err := s.store.ListBySubject(ctx, "Jane Doe")
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *PostgresStoreSuite) TestListRecentIsOldestFirst() {
	ctx := context.Background()
	for minute := range 5 {
		s.Require().NoError(s.store.Append(ctx, event(activity.EventProcessingStarted, "Jane Doe", minute)))
	}

	events, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(3, events[0].Timestamp.Minute())
	s.Equal(4, events[1].Timestamp.Minute())
}

func (s *PostgresStoreSuite) TestAppendJoinsContextTransaction() {
	ctx := context.Background()
	sqlTx, err := s.pg.DB.BeginTx(ctx, &sql.TxOptions{})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Append(tx.WithTx(ctx, sqlTx), event(activity.EventProcessingStarted, "Jane Doe", 1)))
	s.Require().NoError(sqlTx.Rollback())

	events, err := s.store.ListBySubject(ctx, "Jane Doe")
	s.Require().NoError(err)
	s.Empty(events, "rolled back with the transaction")
}

func (s *PostgresStoreSuite) TestAppendAll() {
	ctx := context.Background()
	events := []activity.Event{
		event(activity.EventProcessingStarted, "Jane Doe", 1),
		event(activity.EventProcessingComplete, "Jane Doe", 2),
	}
	s.Require().NoError(s.store.AppendAll(ctx, events))

	got, err := s.store.ListBySubject(ctx, "Jane Doe")
	s.Require().NoError(err)
	s.Len(got, 2)
}

func (s *PostgresStoreSuite) TestAppendAllRollsBackOnFailure() {
	ctx := context.Background()
	bad := event(activity.EventProcessingFailed, "Jane Doe", 2)
	bad.Error = "broken\x00value" // postgres rejects NUL in text

	err := s.store.AppendAll(ctx, []activity.Event{event(activity.EventProcessingStarted, "Jane Doe", 1), bad})
	s.Require().Error(err)

	got, err := s.store.ListBySubject(ctx, "Jane Doe")
	s.Require().NoError(err)
	s.Empty(got, "the first insert is rolled back with the second")
}
