//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"growth_tracker/internal/domain"
)

type RedisIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	rdb       *redis.Client
	cache     *AnalyticsCache
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	endpoint, err := container.Endpoint(s.ctx, "")
	s.Require().NoError(err)

	rdb, err := NewClient(s.ctx, Config{Addr: endpoint})
	s.Require().NoError(err)
	s.rdb = rdb
	s.cache = NewAnalyticsCache(rdb)
}

func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *RedisIntegrationSuite) SetupTest() {
	s.cache.now = func() time.Time { return time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC) }
	s.Require().NoError(s.rdb.FlushDB(s.ctx).Err())
}

func TestRedisIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) TestGetGrowth_Miss() {
	growth, err := s.cache.GetGrowth(s.ctx, "nobody", "1:0")

	s.NoError(err)
	s.Nil(growth)
}

func (s *RedisIntegrationSuite) TestSetAndGetGrowth() {
	growth := &domain.GrowthAnalytics{
		Weekly: &domain.PeriodGrowth{
			Period:              domain.PeriodWeekly,
			FollowersChange:     50,
			FollowersGrowthRate: 5,
		},
		IsRealData: true,
	}

	s.Require().NoError(s.cache.SetGrowth(s.ctx, "user-1", "7:100", growth))

	got, err := s.cache.GetGrowth(s.ctx, "user-1", "7:100")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.True(got.IsRealData)
	s.Require().NotNil(got.Weekly)
	s.Equal(int64(50), got.Weekly.FollowersChange)
	s.Nil(got.Daily)

	ttl, err := s.rdb.TTL(s.ctx, growthKey("user-1")).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, 12*time.Hour-expiryMargin)
}

func (s *RedisIntegrationSuite) TestInvalidate() {
	s.Require().NoError(s.cache.SetGrowth(s.ctx, "user-2", "8:0", &domain.GrowthAnalytics{IsRealData: true}))
	s.Require().NoError(s.cache.Invalidate(s.ctx, "user-2"))

	got, err := s.cache.GetGrowth(s.ctx, "user-2", "8:0")
	s.NoError(err)
	s.Nil(got)
}

func (s *RedisIntegrationSuite) TestGetGrowth_OtherVersionIsMiss() {
	s.Require().NoError(s.cache.SetGrowth(s.ctx, "user-3", "9:100", &domain.GrowthAnalytics{IsRealData: true}))

	got, err := s.cache.GetGrowth(s.ctx, "user-3", "9:200")
	s.NoError(err)
	s.Nil(got)

	got, err = s.cache.GetGrowth(s.ctx, "user-3", "9:100")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.True(got.IsRealData)
}
