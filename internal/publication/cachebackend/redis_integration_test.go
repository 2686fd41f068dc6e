//go:build integration

package cachebackend_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"herald/internal/publication/cachebackend"
	"herald/pkg/testutil/containers"
)

type RedisBackendSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	backend *cachebackend.Redis
}

func TestRedisBackendSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBackendSuite))
}

func (s *RedisBackendSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.backend = cachebackend.NewRedis(s.redis.Client)
}

func (s *RedisBackendSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBackendSuite) TestDeleteManyRemovesEveryKey() {
	ctx := context.Background()
	for _, k := range []string{"front_page", "sidebar", "keep"} {
		s.Require().NoError(s.backend.Set(ctx, k, []byte(k), time.Minute))
	}

	s.Require().NoError(s.backend.DeleteMany(ctx, "front_page", "sidebar", "absent"))

	n, err := s.redis.Client.Exists(ctx, "front_page", "sidebar").Result()
	s.Require().NoError(err)
	s.Zero(n)

	val, ok, err := s.backend.Get(ctx, "keep")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal([]byte("keep"), val)
}

func (s *RedisBackendSuite) TestMissAndTTL() {
	ctx := context.Background()
	_, ok, err := s.backend.Get(ctx, "nothing")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.backend.Set(ctx, "ttl", []byte("x"), time.Minute))
	ttl, err := s.redis.Client.TTL(ctx, "ttl").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisBackendSuite) TestDeleteSingleKey() {
	ctx := context.Background()
	s.Require().NoError(s.backend.Set(ctx, "one", []byte("1"), 0))
	s.Require().NoError(s.backend.Delete(ctx, "one"))
	_, ok, err := s.backend.Get(ctx, "one")
	s.Require().NoError(err)
	s.False(ok)
}
