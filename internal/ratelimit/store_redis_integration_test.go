//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dsar/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.store = NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) TestWindowIsShared() {
	ctx := context.Background()
	other := NewRedisStore(s.redis.Client)

	res, err := s.store.Allow(ctx, Key("runs", "operator:alice"), 2, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(1, res.Remaining)

	res, err = other.Allow(ctx, Key("runs", "operator:alice"), 2, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(0, res.Remaining)

	res, err = s.store.Allow(ctx, Key("runs", "operator:alice"), 2, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)

	n, err := s.redis.Client.ZCard(ctx, Key("runs", "operator:alice")).Result()
	s.Require().NoError(err)
	s.EqualValues(2, n, "denied requests are not counted")
}

func (s *RedisStoreSuite) TestEntriesExpire() {
	ctx := context.Background()
	key := Key("packages", "addr:10.0.0.7")

	res, err := s.store.Allow(ctx, key, 1, 100*time.Millisecond)
	s.Require().NoError(err)
	s.True(res.Allowed)

	time.Sleep(150 * time.Millisecond)
	res, err = s.store.Allow(ctx, key, 1, 100*time.Millisecond)
	s.Require().NoError(err)
	s.True(res.Allowed)

	ttl, err := s.redis.Client.PTTL(ctx, key).Result()
	s.Require().NoError(err)
	s.Positive(ttl)
}
