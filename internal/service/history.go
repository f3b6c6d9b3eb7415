package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"growth_tracker/internal/domain"
	"growth_tracker/internal/metrics"
)

const (
	defaultHistoryDays = 30
	defaultTopPosts    = 10
	summaryTopPosts    = 5
	trailingWeekDays   = 7
	minRealDataPoints  = 2
)

// HistoryService answers read-only questions over the snapshot history of
// a user's primary account. A user without an account or snapshots gets
// empty results, never an error.
type HistoryService struct {
	accounts  AccountStore
	snapshots SnapshotStore
	posts     PostSnapshotStore
	cache     AnalyticsCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewHistoryService accepts a nil cache.
func NewHistoryService(
	accounts AccountStore,
	snapshots SnapshotStore,
	posts PostSnapshotStore,
	cache AnalyticsCache,
	logger *slog.Logger,
) *HistoryService {
	return &HistoryService{
		accounts:  accounts,
		snapshots: snapshots,
		posts:     posts,
		cache:     cache,
		logger:    logger.With("component", "history"),
		now:       time.Now,
	}
}

// GetHistoricalSnapshots returns the snapshots of the last days calendar
// days, newest first.
func (h *HistoryService) GetHistoricalSnapshots(ctx context.Context, userID string, days int) ([]domain.DailySnapshot, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	account, err := h.primaryAccount(ctx, userID)
	if err != nil || account == nil {
		return []domain.DailySnapshot{}, err
	}

	snaps, err := h.snapshots.ListSince(ctx, account.ID, h.today().AddDate(0, 0, -(days-1)))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if snaps == nil {
		snaps = []domain.DailySnapshot{}
	}
	return snaps, nil
}

// GetGrowthAnalytics compares the latest snapshot with, per period, the most
// recent snapshot dated on or before today minus the period length.
func (h *HistoryService) GetGrowthAnalytics(ctx context.Context, userID string) (*domain.GrowthAnalytics, error) {
	account, err := h.primaryAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return &domain.GrowthAnalytics{}, nil
	}

	version := growthVersion(account)
	if cached := h.cachedGrowth(ctx, userID, version); cached != nil {
		return cached, nil
	}

	growth, err := h.computeGrowth(ctx, account)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetGrowth(ctx, userID, version, growth); err != nil {
			h.logger.Warn("failed to cache growth analytics", "user_id", userID, "error", err)
		}
	}
	return growth, nil
}

// growthVersion changes whenever a snapshot commits for the account, since
// the last sync timestamp is written in the same transaction.
func growthVersion(account *domain.Account) string {
	var synced int64
	if account.LastSyncAt != nil {
		synced = account.LastSyncAt.UnixNano()
	}
	return fmt.Sprintf("%d:%d", account.ID, synced)
}

func (h *HistoryService) computeGrowth(ctx context.Context, account *domain.Account) (*domain.GrowthAnalytics, error) {
	growth := &domain.GrowthAnalytics{}

	current, err := h.snapshots.Latest(ctx, account.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return growth, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	total, err := h.snapshots.Count(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}
	growth.IsRealData = total >= minRealDataPoints

	today := h.today()
	for _, period := range domain.Periods {
		target := today.AddDate(0, 0, -period.Days())
		previous, err := h.snapshots.LatestOnOrBefore(ctx, account.ID, comparatorDate(target, current.SnapshotDate))
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s comparator snapshot: %w", period, err)
		}
		growth.Set(period, periodGrowth(period, target, current, previous))
	}

	return growth, nil
}

// GetFollowerGrowthChart returns one point per snapshot over the last days
// days, with growth relative to the previous snapshot.
func (h *HistoryService) GetFollowerGrowthChart(ctx context.Context, userID string, days int) ([]domain.ChartPoint, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	account, err := h.primaryAccount(ctx, userID)
	if err != nil || account == nil {
		return []domain.ChartPoint{}, err
	}

	// One extra day so the first point in range has a predecessor.
	windowStart := h.today().AddDate(0, 0, -(days - 1))
	snaps, err := h.snapshots.ListSince(ctx, account.ID, windowStart.AddDate(0, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return growthChart(chronological(snaps), windowStart), nil
}

func (h *HistoryService) GetTopPerformingPosts(ctx context.Context, userID string, limit int) ([]domain.PostSnapshot, error) {
	if limit <= 0 {
		limit = defaultTopPosts
	}
	account, err := h.primaryAccount(ctx, userID)
	if err != nil || account == nil {
		return []domain.PostSnapshot{}, err
	}

	posts, err := h.posts.TopByLikes(ctx, account.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("top posts: %w", err)
	}
	if posts == nil {
		posts = []domain.PostSnapshot{}
	}
	return posts, nil
}

// GetAccountSummary returns nil when the user has no snapshots yet.
func (h *HistoryService) GetAccountSummary(ctx context.Context, userID string) (*domain.AccountSummary, error) {
	account, err := h.primaryAccount(ctx, userID)
	if err != nil || account == nil {
		return nil, err
	}

	latest, err := h.snapshots.Latest(ctx, account.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	growth, err := h.GetGrowthAnalytics(ctx, userID)
	if err != nil {
		return nil, err
	}

	top, err := h.posts.TopByLikes(ctx, account.ID, summaryTopPosts)
	if err != nil {
		return nil, fmt.Errorf("top posts: %w", err)
	}
	if top == nil {
		top = []domain.PostSnapshot{}
	}

	week, err := h.snapshots.ListSince(ctx, account.ID, h.today().AddDate(0, 0, -(trailingWeekDays-1)))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	trend := make([]domain.EngagementPoint, 0, len(week))
	for _, snap := range chronological(week) {
		trend = append(trend, domain.EngagementPoint{Date: snap.SnapshotDate, EngagementRate: snap.EngagementRate})
	}

	return &domain.AccountSummary{
		Latest:          *latest,
		Growth:          growth,
		TopPosts:        top,
		EngagementTrend: trend,
	}, nil
}

// HasHistoricalData reports whether at least two snapshots exist in the
// trailing seven days.
func (h *HistoryService) HasHistoricalData(ctx context.Context, userID string) (bool, error) {
	account, err := h.primaryAccount(ctx, userID)
	if err != nil || account == nil {
		return false, err
	}

	n, err := h.snapshots.CountSince(ctx, account.ID, h.today().AddDate(0, 0, -(trailingWeekDays-1)))
	if err != nil {
		return false, fmt.Errorf("count recent snapshots: %w", err)
	}
	return n >= minRealDataPoints, nil
}

// primaryAccount returns nil without error when the user has no active account.
func (h *HistoryService) primaryAccount(ctx context.Context, userID string) (*domain.Account, error) {
	account, err := h.accounts.GetPrimaryByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	return account, nil
}

func (h *HistoryService) cachedGrowth(ctx context.Context, userID, version string) *domain.GrowthAnalytics {
	if h.cache == nil {
		return nil
	}
	growth, err := h.cache.GetGrowth(ctx, userID, version)
	if err != nil {
		metrics.AnalyticsCacheTotal.WithLabelValues("error").Inc()
		h.logger.Warn("analytics cache unavailable", "user_id", userID, "error", err)
		return nil
	}
	if growth == nil {
		metrics.AnalyticsCacheTotal.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.AnalyticsCacheTotal.WithLabelValues("hit").Inc()
	return growth
}

func (h *HistoryService) today() time.Time {
	return domain.DateOf(h.now())
}

// comparatorDate never lets a period compare the current snapshot with itself.
func comparatorDate(target, current time.Time) time.Time {
	if target.Before(current) {
		return target
	}
	return current.AddDate(0, 0, -1)
}

func periodGrowth(period domain.Period, target time.Time, current, previous *domain.DailySnapshot) *domain.PeriodGrowth {
	return &domain.PeriodGrowth{
		Period:               period,
		TargetDate:           target,
		FromDate:             previous.SnapshotDate,
		ToDate:               current.SnapshotDate,
		FollowersChange:      current.FollowersCount - previous.FollowersCount,
		FollowersGrowthRate:  domain.PercentChange(float64(current.FollowersCount), float64(previous.FollowersCount)),
		PostsChange:          current.MediaCount - previous.MediaCount,
		PostsGrowthRate:      domain.PercentChange(float64(current.MediaCount), float64(previous.MediaCount)),
		EngagementChange:     current.EngagementRate - previous.EngagementRate,
		EngagementGrowthRate: domain.PercentChange(current.EngagementRate, previous.EngagementRate),
	}
}

// growthChart expects snapshots oldest first. Snapshots before windowStart
// only serve as the predecessor of the first point.
func growthChart(snaps []domain.DailySnapshot, windowStart time.Time) []domain.ChartPoint {
	points := make([]domain.ChartPoint, 0, len(snaps))
	for i, snap := range snaps {
		if snap.SnapshotDate.Before(windowStart) {
			continue
		}
		var growth int64
		if i > 0 {
			growth = snap.FollowersCount - snaps[i-1].FollowersCount
		}
		points = append(points, domain.ChartPoint{
			Date:      snap.SnapshotDate,
			Followers: snap.FollowersCount,
			Growth:    growth,
			Posts:     snap.PostsToday,
		})
	}
	return points
}

func chronological(snaps []domain.DailySnapshot) []domain.DailySnapshot {
	out := make([]domain.DailySnapshot, len(snaps))
	for i, snap := range snaps {
		out[len(snaps)-1-i] = snap
	}
	return out
}
