package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"growth_tracker/internal/domain"
	"growth_tracker/internal/service/mocks"
)

type HistoryServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	accounts  *mocks.MockAccountStore
	snapshots *mocks.MockSnapshotStore
	posts     *mocks.MockPostSnapshotStore
	cache     *mocks.MockAnalyticsCache

	service *HistoryService
	account *domain.Account
	today   time.Time
}

func (s *HistoryServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.accounts = mocks.NewMockAccountStore(s.ctrl)
	s.snapshots = mocks.NewMockSnapshotStore(s.ctrl)
	s.posts = mocks.NewMockPostSnapshotStore(s.ctrl)
	s.cache = mocks.NewMockAnalyticsCache(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = NewHistoryService(s.accounts, s.snapshots, s.posts, nil, logger)
	s.today = time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	s.service.now = func() time.Time { return s.today.Add(9 * time.Hour) }

	s.account = &domain.Account{ID: 42, UserID: "user-1", Username: "studio", IsActive: true}
}

func (s *HistoryServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestHistoryServiceTestSuite(t *testing.T) {
	suite.Run(t, new(HistoryServiceTestSuite))
}

func (s *HistoryServiceTestSuite) day(offset int) time.Time {
	return s.today.AddDate(0, 0, offset)
}

func snapshotOn(date time.Time, followers int64) domain.DailySnapshot {
	return domain.DailySnapshot{AccountID: 42, SnapshotDate: date, FollowersCount: followers}
}

func notFound(op string) error {
	return &domain.StoreError{Op: op, Err: domain.ErrNotFound}
}

func (s *HistoryServiceTestSuite) TestGetGrowthAnalytics_WeeklyGrowth() {
	ctx := context.Background()
	current := snapshotOn(s.day(0), 1050)
	weekAgo := snapshotOn(s.day(-7), 1000)

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.snapshots.EXPECT().Latest(ctx, int64(42)).Return(&current, nil)
	s.snapshots.EXPECT().Count(ctx, int64(42)).Return(2, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-1)).Return(&weekAgo, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-7)).Return(&weekAgo, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-30)).Return(nil, notFound("on or before"))
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-365)).Return(nil, notFound("on or before"))

	growth, err := s.service.GetGrowthAnalytics(ctx, "user-1")

	s.Require().NoError(err)
	s.True(growth.IsRealData)
	s.Require().NotNil(growth.Weekly)
	s.InDelta(5.0, growth.Weekly.FollowersGrowthRate, 1e-9)
	s.Equal(int64(50), growth.Weekly.FollowersChange)
	s.Equal(s.day(-7), growth.Weekly.FromDate)
	s.Equal(s.day(0), growth.Weekly.ToDate)
	s.NotNil(growth.Daily)
	s.Nil(growth.Monthly)
	s.Nil(growth.Annual)
}

func (s *HistoryServiceTestSuite) TestGetGrowthAnalytics_NeverComparesWithCurrentSnapshot() {
	ctx := context.Background()
	// The newest snapshot is ten days old, so every target lies after it.
	current := snapshotOn(s.day(-10), 900)
	older := snapshotOn(s.day(-12), 880)

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.snapshots.EXPECT().Latest(ctx, int64(42)).Return(&current, nil)
	s.snapshots.EXPECT().Count(ctx, int64(42)).Return(2, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-11)).Return(&older, nil).Times(2)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-30)).Return(nil, notFound("on or before"))
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-365)).Return(nil, notFound("on or before"))

	growth, err := s.service.GetGrowthAnalytics(ctx, "user-1")

	s.Require().NoError(err)
	s.Require().NotNil(growth.Daily)
	s.Equal(int64(20), growth.Daily.FollowersChange)
	s.Equal(s.day(-1), growth.Daily.TargetDate)
}

func (s *HistoryServiceTestSuite) TestGetGrowthAnalytics_SingleSnapshotIsNotReal() {
	ctx := context.Background()
	current := snapshotOn(s.day(0), 100)

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.snapshots.EXPECT().Latest(ctx, int64(42)).Return(&current, nil)
	s.snapshots.EXPECT().Count(ctx, int64(42)).Return(1, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), gomock.Any()).Return(nil, notFound("on or before")).Times(4)

	growth, err := s.service.GetGrowthAnalytics(ctx, "user-1")

	s.Require().NoError(err)
	s.False(growth.IsRealData)
	s.Nil(growth.Daily)
	s.Nil(growth.Weekly)
}

func (s *HistoryServiceTestSuite) TestGetGrowthAnalytics_NoAccount() {
	ctx := context.Background()
	s.accounts.EXPECT().GetPrimaryByUser(ctx, "ghost").Return(nil, notFound("get primary account"))

	growth, err := s.service.GetGrowthAnalytics(ctx, "ghost")

	s.Require().NoError(err)
	s.False(growth.IsRealData)
}

func (s *HistoryServiceTestSuite) TestGetGrowthAnalytics_UsesCache() {
	ctx := context.Background()
	s.service.cache = s.cache
	synced := s.today.Add(2 * time.Hour)
	s.account.LastSyncAt = &synced
	cached := &domain.GrowthAnalytics{IsRealData: true, Weekly: &domain.PeriodGrowth{FollowersGrowthRate: 3}}

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.cache.EXPECT().GetGrowth(ctx, "user-1", growthVersion(s.account)).Return(cached, nil)

	growth, err := s.service.GetGrowthAnalytics(ctx, "user-1")

	s.Require().NoError(err)
	s.Same(cached, growth)
}

func (s *HistoryServiceTestSuite) TestGetGrowthAnalytics_CacheFailureFallsBack() {
	ctx := context.Background()
	s.service.cache = s.cache
	current := snapshotOn(s.day(0), 100)

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.cache.EXPECT().GetGrowth(ctx, "user-1", gomock.Any()).Return(nil, errors.New("redis down"))
	s.snapshots.EXPECT().Latest(ctx, int64(42)).Return(&current, nil)
	s.snapshots.EXPECT().Count(ctx, int64(42)).Return(1, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), gomock.Any()).Return(nil, notFound("on or before")).Times(4)
	s.cache.EXPECT().SetGrowth(ctx, "user-1", gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	growth, err := s.service.GetGrowthAnalytics(ctx, "user-1")

	s.Require().NoError(err)
	s.False(growth.IsRealData)
}

func (s *HistoryServiceTestSuite) TestGetGrowthAnalytics_NoAccountSkipsCache() {
	ctx := context.Background()
	s.service.cache = s.cache

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "ghost").Return(nil, notFound("get primary account"))

	growth, err := s.service.GetGrowthAnalytics(ctx, "ghost")

	s.Require().NoError(err)
	s.False(growth.IsRealData)
}

// A result computed from data read before a sync committed must not be
// served once the account reflects that sync, even if it was stored after
// the invalidation ran.
func (s *HistoryServiceTestSuite) TestGetGrowthAnalytics_StaleEntryAfterSyncIsRecomputed() {
	ctx := context.Background()
	s.service.cache = s.cache

	before := s.today.Add(1 * time.Hour)
	after := s.today.Add(3 * time.Hour)
	stale := *s.account
	stale.LastSyncAt = &before
	fresh := *s.account
	fresh.LastSyncAt = &after
	staleVersion := growthVersion(&stale)
	freshVersion := growthVersion(&fresh)
	s.Require().NotEqual(staleVersion, freshVersion)

	entries := map[string]*domain.GrowthAnalytics{
		staleVersion: {IsRealData: true, Weekly: &domain.PeriodGrowth{FollowersChange: 1}},
	}
	s.cache.EXPECT().GetGrowth(ctx, "user-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, version string) (*domain.GrowthAnalytics, error) {
			return entries[version], nil
		})

	current := snapshotOn(s.day(0), 1050)
	weekAgo := snapshotOn(s.day(-7), 1000)
	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(&fresh, nil)
	s.snapshots.EXPECT().Latest(ctx, int64(42)).Return(&current, nil)
	s.snapshots.EXPECT().Count(ctx, int64(42)).Return(2, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-1)).Return(&weekAgo, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-7)).Return(&weekAgo, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), gomock.Any()).Return(nil, notFound("on or before")).Times(2)
	s.cache.EXPECT().SetGrowth(ctx, "user-1", freshVersion, gomock.Any()).Return(nil)

	growth, err := s.service.GetGrowthAnalytics(ctx, "user-1")

	s.Require().NoError(err)
	s.Require().NotNil(growth.Weekly)
	s.Equal(int64(50), growth.Weekly.FollowersChange)
}

func (s *HistoryServiceTestSuite) TestGetHistoricalSnapshots() {
	ctx := context.Background()
	snaps := []domain.DailySnapshot{snapshotOn(s.day(0), 10), snapshotOn(s.day(-1), 9)}

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.snapshots.EXPECT().ListSince(ctx, int64(42), s.day(-6)).Return(snaps, nil)

	result, err := s.service.GetHistoricalSnapshots(ctx, "user-1", 7)

	s.Require().NoError(err)
	s.Equal(snaps, result)
}

func (s *HistoryServiceTestSuite) TestGetFollowerGrowthChart() {
	ctx := context.Background()
	// Newest first, as the store returns them. day(-3) is the predecessor only.
	snaps := []domain.DailySnapshot{
		{SnapshotDate: s.day(0), FollowersCount: 130, PostsToday: 2},
		{SnapshotDate: s.day(-1), FollowersCount: 120},
		{SnapshotDate: s.day(-3), FollowersCount: 100},
	}

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.snapshots.EXPECT().ListSince(ctx, int64(42), s.day(-3)).Return(snaps, nil)

	points, err := s.service.GetFollowerGrowthChart(ctx, "user-1", 3)

	s.Require().NoError(err)
	s.Equal([]domain.ChartPoint{
		{Date: s.day(-1), Followers: 120, Growth: 20},
		{Date: s.day(0), Followers: 130, Growth: 10, Posts: 2},
	}, points)
}

func (s *HistoryServiceTestSuite) TestGetTopPerformingPosts() {
	ctx := context.Background()
	top := []domain.PostSnapshot{{PostID: "a", LikesCount: 90}, {PostID: "b", LikesCount: 40}}

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.posts.EXPECT().TopByLikes(ctx, int64(42), 10).Return(top, nil)

	result, err := s.service.GetTopPerformingPosts(ctx, "user-1", 0)

	s.Require().NoError(err)
	s.Equal(top, result)
}

func (s *HistoryServiceTestSuite) TestGetAccountSummary_NilWithoutSnapshots() {
	ctx := context.Background()
	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.snapshots.EXPECT().Latest(ctx, int64(42)).Return(nil, notFound("latest"))

	summary, err := s.service.GetAccountSummary(ctx, "user-1")

	s.Require().NoError(err)
	s.Nil(summary)
}

func (s *HistoryServiceTestSuite) TestGetAccountSummary_Composite() {
	ctx := context.Background()
	current := domain.DailySnapshot{AccountID: 42, SnapshotDate: s.day(0), FollowersCount: 500, EngagementRate: 2.5}
	yesterday := domain.DailySnapshot{AccountID: 42, SnapshotDate: s.day(-1), FollowersCount: 490, EngagementRate: 2.0}
	top := []domain.PostSnapshot{{PostID: "a"}}

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil).Times(2)
	s.snapshots.EXPECT().Latest(ctx, int64(42)).Return(&current, nil).Times(2)
	s.snapshots.EXPECT().Count(ctx, int64(42)).Return(2, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), s.day(-1)).Return(&yesterday, nil)
	s.snapshots.EXPECT().LatestOnOrBefore(ctx, int64(42), gomock.Any()).Return(nil, notFound("on or before")).Times(3)
	s.posts.EXPECT().TopByLikes(ctx, int64(42), 5).Return(top, nil)
	s.snapshots.EXPECT().ListSince(ctx, int64(42), s.day(-6)).Return([]domain.DailySnapshot{current, yesterday}, nil)

	summary, err := s.service.GetAccountSummary(ctx, "user-1")

	s.Require().NoError(err)
	s.Require().NotNil(summary)
	s.Equal(int64(500), summary.Latest.FollowersCount)
	s.True(summary.Growth.IsRealData)
	s.Equal(top, summary.TopPosts)
	s.Equal([]domain.EngagementPoint{
		{Date: s.day(-1), EngagementRate: 2.0},
		{Date: s.day(0), EngagementRate: 2.5},
	}, summary.EngagementTrend)
}

func (s *HistoryServiceTestSuite) TestHasHistoricalData() {
	ctx := context.Background()

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.snapshots.EXPECT().CountSince(ctx, int64(42), s.day(-6)).Return(1, nil)
	has, err := s.service.HasHistoricalData(ctx, "user-1")
	s.Require().NoError(err)
	s.False(has)

	s.accounts.EXPECT().GetPrimaryByUser(ctx, "user-1").Return(s.account, nil)
	s.snapshots.EXPECT().CountSince(ctx, int64(42), s.day(-6)).Return(2, nil)
	has, err = s.service.HasHistoricalData(ctx, "user-1")
	s.Require().NoError(err)
	s.True(has)
}
