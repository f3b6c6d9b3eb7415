package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"growth_tracker/internal/domain"
)

const snapshotColumns = `
	id, account_id, snapshot_date, followers_count, following_count, media_count,
	total_likes, total_comments, engagement_rate, avg_likes_per_post,
	avg_comments_per_post, posts_today, raw_profile, created_at, updated_at`

type SnapshotStore struct {
	db *sqlx.DB
}

func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Upsert writes the snapshot for (account_id, snapshot_date), replacing any
// row already stored for that key.
func (s *SnapshotStore) Upsert(ctx context.Context, snap *domain.DailySnapshot) error {
	query := `
		INSERT INTO daily_snapshots (
			account_id, snapshot_date, followers_count, following_count, media_count,
			total_likes, total_comments, engagement_rate, avg_likes_per_post,
			avg_comments_per_post, posts_today, raw_profile
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb
		)
		ON CONFLICT (account_id, snapshot_date) DO UPDATE SET
			followers_count = EXCLUDED.followers_count,
			following_count = EXCLUDED.following_count,
			media_count = EXCLUDED.media_count,
			total_likes = EXCLUDED.total_likes,
			total_comments = EXCLUDED.total_comments,
			engagement_rate = EXCLUDED.engagement_rate,
			avg_likes_per_post = EXCLUDED.avg_likes_per_post,
			avg_comments_per_post = EXCLUDED.avg_comments_per_post,
			posts_today = EXCLUDED.posts_today,
			raw_profile = EXCLUDED.raw_profile,
			updated_at = NOW()
		RETURNING id`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		snap.AccountID,
		domain.DateOf(snap.SnapshotDate),
		snap.FollowersCount,
		snap.FollowingCount,
		snap.MediaCount,
		snap.TotalLikes,
		snap.TotalComments,
		snap.EngagementRate,
		snap.AvgLikesPerPost,
		snap.AvgCommentsPerPost,
		snap.PostsToday,
		jsonParam(snap.RawProfile),
	).Scan(&snap.ID)
	return storeErr("upsert daily snapshot", err)
}

// ListSince returns snapshots dated on or after since, newest first.
func (s *SnapshotStore) ListSince(ctx context.Context, accountID int64, since time.Time) ([]domain.DailySnapshot, error) {
	var snaps []domain.DailySnapshot
	query := `SELECT ` + snapshotColumns + ` FROM daily_snapshots
		WHERE account_id = $1 AND snapshot_date >= $2
		ORDER BY snapshot_date DESC`
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &snaps, query, accountID, domain.DateOf(since)); err != nil {
		return nil, storeErr("list daily snapshots", err)
	}
	return snaps, nil
}

func (s *SnapshotStore) Latest(ctx context.Context, accountID int64) (*domain.DailySnapshot, error) {
	var snap domain.DailySnapshot
	query := `SELECT ` + snapshotColumns + ` FROM daily_snapshots
		WHERE account_id = $1
		ORDER BY snapshot_date DESC
		LIMIT 1`
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &snap, query, accountID); err != nil {
		return nil, storeErr("latest daily snapshot", err)
	}
	return &snap, nil
}

// LatestOnOrBefore returns the most recent snapshot dated on or before date.
func (s *SnapshotStore) LatestOnOrBefore(ctx context.Context, accountID int64, date time.Time) (*domain.DailySnapshot, error) {
	var snap domain.DailySnapshot
	query := `SELECT ` + snapshotColumns + ` FROM daily_snapshots
		WHERE account_id = $1 AND snapshot_date <= $2
		ORDER BY snapshot_date DESC
		LIMIT 1`
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &snap, query, accountID, domain.DateOf(date)); err != nil {
		return nil, storeErr("daily snapshot on or before", err)
	}
	return &snap, nil
}

func (s *SnapshotStore) Count(ctx context.Context, accountID int64) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM daily_snapshots WHERE account_id = $1`, accountID)
}

func (s *SnapshotStore) CountSince(ctx context.Context, accountID int64, since time.Time) (int, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM daily_snapshots WHERE account_id = $1 AND snapshot_date >= $2`,
		accountID, domain.DateOf(since))
}

// DeleteOlderThan removes daily and post snapshots dated before cutoff.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	exec := GetExecutor(ctx, s.db)
	date := domain.DateOf(cutoff)

	if _, err := exec.ExecContext(ctx, `DELETE FROM post_snapshots WHERE snapshot_date < $1`, date); err != nil {
		return 0, storeErr("delete old post snapshots", err)
	}

	res, err := exec.ExecContext(ctx, `DELETE FROM daily_snapshots WHERE snapshot_date < $1`, date)
	if err != nil {
		return 0, storeErr("delete old daily snapshots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("delete old daily snapshots", err)
	}
	return n, nil
}

func (s *SnapshotStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n, query, args...); err != nil {
		return 0, storeErr("count daily snapshots", err)
	}
	return n, nil
}
