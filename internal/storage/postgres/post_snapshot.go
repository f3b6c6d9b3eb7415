package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"growth_tracker/internal/domain"
)

type PostSnapshotStore struct {
	db *sqlx.DB
}

func NewPostSnapshotStore(db *sqlx.DB) *PostSnapshotStore {
	return &PostSnapshotStore{db: db}
}

func (s *PostSnapshotStore) Upsert(ctx context.Context, snap *domain.PostSnapshot) error {
	query := `
		INSERT INTO post_snapshots (
			account_id, post_id, snapshot_date, post_type, caption, permalink,
			media_url, published_at, likes_count, comments_count, reach,
			impressions, saves, raw_post, raw_insights
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15::jsonb
		)
		ON CONFLICT (account_id, post_id, snapshot_date) DO UPDATE SET
			post_type = EXCLUDED.post_type,
			caption = EXCLUDED.caption,
			permalink = EXCLUDED.permalink,
			media_url = EXCLUDED.media_url,
			published_at = EXCLUDED.published_at,
			likes_count = EXCLUDED.likes_count,
			comments_count = EXCLUDED.comments_count,
			reach = EXCLUDED.reach,
			impressions = EXCLUDED.impressions,
			saves = EXCLUDED.saves,
			raw_post = EXCLUDED.raw_post,
			raw_insights = EXCLUDED.raw_insights
		RETURNING id`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		snap.AccountID,
		snap.PostID,
		domain.DateOf(snap.SnapshotDate),
		snap.PostType,
		snap.Caption,
		snap.Permalink,
		snap.MediaURL,
		snap.PublishedAt,
		snap.LikesCount,
		snap.CommentsCount,
		snap.Reach,
		snap.Impressions,
		snap.Saves,
		jsonParam(snap.RawPost),
		jsonParam(snap.RawInsights),
	).Scan(&snap.ID)
	return storeErr("upsert post snapshot", err)
}

// TopByLikes returns each post's latest observation, ordered by likes.
func (s *PostSnapshotStore) TopByLikes(ctx context.Context, accountID int64, limit int) ([]domain.PostSnapshot, error) {
	query := `
		SELECT * FROM (
			SELECT DISTINCT ON (post_id)
				id, account_id, post_id, snapshot_date, post_type, caption, permalink,
				media_url, published_at, likes_count, comments_count, reach,
				impressions, saves, raw_post, raw_insights, created_at
			FROM post_snapshots
			WHERE account_id = $1
			ORDER BY post_id, snapshot_date DESC
		) latest
		ORDER BY likes_count DESC, published_at DESC
		LIMIT $2`

	var posts []domain.PostSnapshot
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &posts, query, accountID, limit); err != nil {
		return nil, storeErr("top posts by likes", err)
	}
	return posts, nil
}

func (s *PostSnapshotStore) CountForDate(ctx context.Context, accountID int64, date time.Time) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n,
		`SELECT COUNT(*) FROM post_snapshots WHERE account_id = $1 AND snapshot_date = $2`, accountID, domain.DateOf(date))
	if err != nil {
		return 0, storeErr("count post snapshots", err)
	}
	return n, nil
}
