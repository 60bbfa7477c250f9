//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dsar/internal/activity"
	redisstore "dsar/internal/activity/store/redis"
	"dsar/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *redisstore.Store
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = redisstore.New(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	ts := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Append(ctx, activity.Event{ID: "1", Type: activity.EventProcessingStarted, Timestamp: ts, SubjectName: "Jane Doe"}))
	s.Require().NoError(s.store.Append(ctx, activity.Event{ID: "2", Type: activity.EventProcessingStarted, Timestamp: ts, SubjectName: "John Roe"}))
	s.Require().NoError(s.store.Append(ctx, activity.Event{ID: "3", Type: activity.EventProcessingComplete, Timestamp: ts, SubjectName: "JANE DOE", Records: 4}))

	mine, err := s.store.ListBySubject(ctx, "jane doe")
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal("1", mine[0].ID)
	s.Equal(4, mine[1].Records)

	recent, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal("2", recent[0].ID)
	s.Equal("3", recent[1].ID)
}

func (s *RedisStoreSuite) TestListRecentZeroLimit() {
	events, err := s.store.ListRecent(context.Background(), 0)
	s.Require().NoError(err)
	s.Empty(events)
}
