package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"growth_tracker/internal/domain"
	"growth_tracker/internal/metrics"
)

// bookkeepingTimeout bounds sync log writes that run after the caller's
// context may already be done.
const bookkeepingTimeout = 5 * time.Second

// detached keeps the values of ctx but not its cancellation, so a run that
// was cancelled still closes its sync log row.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

type SnapshotConfig struct {
	MediaLimit    int
	FetchInsights bool
}

// SnapshotService captures one account's profile and recent posts as the
// current UTC day's snapshot.
type SnapshotService struct {
	source    Source
	accounts  AccountStore
	snapshots SnapshotStore
	posts     PostSnapshotStore
	syncLogs  SyncLogStore
	txManager TransactionManager
	publisher Publisher
	cache     AnalyticsCache
	logger    *slog.Logger
	config    SnapshotConfig
	now       func() time.Time
}

// NewSnapshotService accepts a nil publisher or cache.
func NewSnapshotService(
	source Source,
	accounts AccountStore,
	snapshots SnapshotStore,
	posts PostSnapshotStore,
	syncLogs SyncLogStore,
	txManager TransactionManager,
	publisher Publisher,
	cache AnalyticsCache,
	logger *slog.Logger,
	cfg SnapshotConfig,
) *SnapshotService {
	if cfg.MediaLimit <= 0 {
		cfg.MediaLimit = 25
	}
	return &SnapshotService{
		source:    source,
		accounts:  accounts,
		snapshots: snapshots,
		posts:     posts,
		syncLogs:  syncLogs,
		txManager: txManager,
		publisher: publisher,
		cache:     cache,
		logger:    logger.With("component", "snapshot"),
		config:    cfg,
		now:       time.Now,
	}
}

// Snapshot runs the writer for one account, bracketed by a sync log row.
// Re-running on the same UTC day overwrites that day's rows.
func (s *SnapshotService) Snapshot(ctx context.Context, account domain.Account, syncType domain.SyncType) (*domain.SnapshotResult, error) {
	startTime := s.now()
	logger := s.logger.With(
		"account_id", account.ID,
		"username", account.Username,
		"sync_type", syncType,
	)

	logID, err := s.syncLogs.Start(ctx, account.ID, syncType, startTime)
	if err != nil {
		return nil, fmt.Errorf("start sync log: %w", err)
	}

	result, err := s.capture(ctx, account, startTime, logger)
	finishedAt := s.now()
	metrics.SyncRunDuration.WithLabelValues(string(syncType)).Observe(finishedAt.Sub(startTime).Seconds())

	logCtx, cancel := detached(ctx)
	defer cancel()

	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(string(syncType), string(domain.SyncStatusFailed)).Inc()
		if logErr := s.syncLogs.Fail(logCtx, logID, err.Error(), finishedAt); logErr != nil {
			logger.Error("failed to mark sync log failed", "error", logErr)
		}
		return nil, err
	}

	metrics.SyncRunsTotal.WithLabelValues(string(syncType), string(domain.SyncStatusCompleted)).Inc()
	if err := s.syncLogs.Complete(logCtx, logID, result.RecordsProcessed, finishedAt); err != nil {
		logger.Error("failed to mark sync log completed", "error", err)
	}

	result.Duration = finishedAt.Sub(startTime)
	s.afterSnapshot(ctx, account, result, logger)

	logger.Info("snapshot completed",
		"snapshot_date", result.SnapshotDate.Format(time.DateOnly),
		"followers", result.FollowersCount,
		"posts", result.PostsCaptured,
		"insight_failures", result.InsightFailures,
		"duration", result.Duration,
	)

	return result, nil
}

func (s *SnapshotService) capture(ctx context.Context, account domain.Account, now time.Time, logger *slog.Logger) (*domain.SnapshotResult, error) {
	profile, err := s.source.FetchProfile(ctx, account.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	posts, err := s.source.FetchRecentPosts(ctx, account.AccessToken, s.config.MediaLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent posts: %w", err)
	}

	date := domain.DateOf(now)
	m := domain.ComputeMetrics(posts, profile.FollowersCount, now)

	daily := &domain.DailySnapshot{
		AccountID:          account.ID,
		SnapshotDate:       date,
		FollowersCount:     profile.FollowersCount,
		FollowingCount:     profile.FollowsCount,
		MediaCount:         profile.MediaCount,
		TotalLikes:         m.TotalLikes,
		TotalComments:      m.TotalComments,
		EngagementRate:     m.EngagementRate,
		AvgLikesPerPost:    m.AvgLikesPerPost,
		AvgCommentsPerPost: m.AvgCommentsPerPost,
		PostsToday:         m.PostsToday,
		RawProfile:         json.RawMessage(profile.Raw),
	}

	// Insight failures are tolerated; the post is stored with zero insights.
	postSnaps := make([]*domain.PostSnapshot, 0, len(posts))
	insightFailures := 0
	for _, post := range posts {
		insights := s.fetchInsights(ctx, post.ID, account.AccessToken, logger)
		if insights == nil {
			insightFailures++
			insights = &domain.PostInsights{}
		}
		postSnaps = append(postSnaps, newPostSnapshot(account.ID, date, post, insights))
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.snapshots.Upsert(txCtx, daily); err != nil {
			return fmt.Errorf("upsert daily snapshot: %w", err)
		}
		for _, ps := range postSnaps {
			if err := s.posts.Upsert(txCtx, ps); err != nil {
				return fmt.Errorf("upsert post snapshot %s: %w", ps.PostID, err)
			}
		}
		if err := s.accounts.MarkSynced(txCtx, account.ID, now); err != nil {
			return fmt.Errorf("mark account synced: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.SnapshotResult{
		AccountID:        account.ID,
		SnapshotDate:     date,
		FollowersCount:   profile.FollowersCount,
		EngagementRate:   m.EngagementRate,
		PostsCaptured:    len(postSnaps),
		InsightFailures:  insightFailures,
		RecordsProcessed: 1 + len(postSnaps),
	}, nil
}

// fetchInsights returns nil when insights were requested but failed.
func (s *SnapshotService) fetchInsights(ctx context.Context, postID, token string, logger *slog.Logger) *domain.PostInsights {
	if !s.config.FetchInsights {
		return &domain.PostInsights{}
	}
	insights, err := s.source.FetchPostInsights(ctx, postID, token)
	if err != nil {
		logger.Warn("post insights unavailable", "post_id", postID, "error", err)
		return nil
	}
	return insights
}

func (s *SnapshotService) afterSnapshot(ctx context.Context, account domain.Account, result *domain.SnapshotResult, logger *slog.Logger) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, account.UserID); err != nil {
			logger.Warn("failed to invalidate analytics cache", "error", err)
		}
	}

	if s.publisher == nil {
		return
	}
	event := &domain.SnapshotEvent{
		EventID:          uuid.NewString(),
		Action:           "snapshot.completed",
		AccountID:        account.ID,
		UserID:           account.UserID,
		Username:         account.Username,
		SnapshotDate:     result.SnapshotDate.Format(time.DateOnly),
		FollowersCount:   result.FollowersCount,
		EngagementRate:   result.EngagementRate,
		RecordsProcessed: result.RecordsProcessed,
		Timestamp:        s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish snapshot event", "error", err)
	}
}

func newPostSnapshot(accountID int64, date time.Time, post domain.Post, insights *domain.PostInsights) *domain.PostSnapshot {
	return &domain.PostSnapshot{
		AccountID:     accountID,
		PostID:        post.ID,
		SnapshotDate:  date,
		PostType:      post.Type,
		Caption:       post.Caption,
		Permalink:     post.Permalink,
		MediaURL:      post.MediaURL,
		PublishedAt:   post.PublishedAt,
		LikesCount:    post.Likes(),
		CommentsCount: post.Comments(),
		Reach:         valueOf(insights.Reach),
		Impressions:   valueOf(insights.Impressions),
		Saves:         valueOf(insights.Saves),
		RawPost:       json.RawMessage(post.Raw),
		RawInsights:   json.RawMessage(insights.Raw),
	}
}

func valueOf(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
