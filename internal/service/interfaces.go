package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"growth_tracker/internal/domain"
)

type AccountStore interface {
	ListActive(ctx context.Context) ([]domain.Account, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Account, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.Account, error)
	ListExpiring(ctx context.Context, before time.Time) ([]domain.Account, error)
	GetPrimaryByUser(ctx context.Context, userID string) (*domain.Account, error)
	UpdateCredential(ctx context.Context, accountID int64, cred domain.Credential) error
	Deactivate(ctx context.Context, accountID int64) error
	MarkSynced(ctx context.Context, accountID int64, at time.Time) error
	CountActive(ctx context.Context) (int, error)
}

type SnapshotStore interface {
	Upsert(ctx context.Context, snap *domain.DailySnapshot) error
	ListSince(ctx context.Context, accountID int64, since time.Time) ([]domain.DailySnapshot, error)
	Latest(ctx context.Context, accountID int64) (*domain.DailySnapshot, error)
	LatestOnOrBefore(ctx context.Context, accountID int64, date time.Time) (*domain.DailySnapshot, error)
	Count(ctx context.Context, accountID int64) (int, error)
	CountSince(ctx context.Context, accountID int64, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type PostSnapshotStore interface {
	Upsert(ctx context.Context, snap *domain.PostSnapshot) error
	TopByLikes(ctx context.Context, accountID int64, limit int) ([]domain.PostSnapshot, error)
}

type SyncLogStore interface {
	Start(ctx context.Context, accountID int64, syncType domain.SyncType, at time.Time) (int64, error)
	Complete(ctx context.Context, id int64, records int, at time.Time) error
	Fail(ctx context.Context, id int64, message string, at time.Time) error
	LastCompleted(ctx context.Context) (*domain.SyncLog, error)
	StatsSince(ctx context.Context, since time.Time) (*domain.SyncStatistics, error)
}

// Source is the social platform API.
type Source interface {
	FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error)
	FetchRecentPosts(ctx context.Context, accessToken string, limit int) ([]domain.Post, error)
	FetchPostInsights(ctx context.Context, postID, accessToken string) (*domain.PostInsights, error)
}

type CredentialRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.SnapshotEvent) error
	Close() error
}

// AnalyticsCache returns (nil, nil) on a miss. An entry stored under a
// different version is a miss.
type AnalyticsCache interface {
	GetGrowth(ctx context.Context, userID, version string) (*domain.GrowthAnalytics, error)
	SetGrowth(ctx context.Context, userID, version string, growth *domain.GrowthAnalytics) error
	Invalidate(ctx context.Context, userID string) error
}

// Limiter gates consecutive accounts in a batch.
type Limiter interface {
	Wait(ctx context.Context) error
}

type Snapshotter interface {
	Snapshot(ctx context.Context, account domain.Account, syncType domain.SyncType) (*domain.SnapshotResult, error)
}

type TokenRefresher interface {
	RefreshExpiring(ctx context.Context) (*domain.RefreshResult, error)
}

// HistoryReader is the read side the growth engine composes.
type HistoryReader interface {
	GetGrowthAnalytics(ctx context.Context, userID string) (*domain.GrowthAnalytics, error)
	GetAccountSummary(ctx context.Context, userID string) (*domain.AccountSummary, error)
	GetFollowerGrowthChart(ctx context.Context, userID string, days int) ([]domain.ChartPoint, error)
}
