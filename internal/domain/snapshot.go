package domain

import (
	"encoding/json"
	"time"
)

// DailySnapshot is the per-account, per-UTC-day capture of profile metrics.
// Unique on (AccountID, SnapshotDate).
type DailySnapshot struct {
	ID                 int64           `db:"id" json:"id"`
	AccountID          int64           `db:"account_id" json:"account_id"`
	SnapshotDate       time.Time       `db:"snapshot_date" json:"snapshot_date"`
	FollowersCount     int64           `db:"followers_count" json:"followers_count"`
	FollowingCount     int64           `db:"following_count" json:"following_count"`
	MediaCount         int64           `db:"media_count" json:"media_count"`
	TotalLikes         int64           `db:"total_likes" json:"total_likes"`
	TotalComments      int64           `db:"total_comments" json:"total_comments"`
	EngagementRate     float64         `db:"engagement_rate" json:"engagement_rate"`
	AvgLikesPerPost    float64         `db:"avg_likes_per_post" json:"avg_likes_per_post"`
	AvgCommentsPerPost float64         `db:"avg_comments_per_post" json:"avg_comments_per_post"`
	PostsToday         int             `db:"posts_today" json:"posts_today"`
	RawProfile         json.RawMessage `db:"raw_profile" json:"-"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// PostSnapshot is a post's metrics as observed on one UTC day.
// Unique on (AccountID, PostID, SnapshotDate).
type PostSnapshot struct {
	ID            int64           `db:"id" json:"id"`
	AccountID     int64           `db:"account_id" json:"account_id"`
	PostID        string          `db:"post_id" json:"post_id"`
	SnapshotDate  time.Time       `db:"snapshot_date" json:"snapshot_date"`
	PostType      string          `db:"post_type" json:"post_type"`
	Caption       *string         `db:"caption" json:"caption,omitempty"`
	Permalink     string          `db:"permalink" json:"permalink"`
	MediaURL      string          `db:"media_url" json:"media_url"`
	PublishedAt   time.Time       `db:"published_at" json:"published_at"`
	LikesCount    int64           `db:"likes_count" json:"likes_count"`
	CommentsCount int64           `db:"comments_count" json:"comments_count"`
	Reach         int64           `db:"reach" json:"reach"`
	Impressions   int64           `db:"impressions" json:"impressions"`
	Saves         int64           `db:"saves" json:"saves"`
	RawPost       json.RawMessage `db:"raw_post" json:"-"`
	RawInsights   json.RawMessage `db:"raw_insights" json:"-"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// SnapshotMetrics are the aggregates derived from a batch of fetched posts.
type SnapshotMetrics struct {
	TotalLikes         int64
	TotalComments      int64
	AvgLikesPerPost    float64
	AvgCommentsPerPost float64
	EngagementRate     float64
	PostsToday         int
}

// ComputeMetrics aggregates posts against the follower count. Posts count
// toward PostsToday when their publish time falls on the UTC day of today.
func ComputeMetrics(posts []Post, followers int64, today time.Time) SnapshotMetrics {
	var m SnapshotMetrics
	day := DateOf(today)
	for _, p := range posts {
		m.TotalLikes += p.Likes()
		m.TotalComments += p.Comments()
		if DateOf(p.PublishedAt).Equal(day) {
			m.PostsToday++
		}
	}

	n := int64(len(posts))
	if n > 0 {
		m.AvgLikesPerPost = float64(m.TotalLikes) / float64(n)
		m.AvgCommentsPerPost = float64(m.TotalComments) / float64(n)
	}
	m.EngagementRate = EngagementRate(m.TotalLikes, m.TotalComments, n, followers)
	return m
}

// EngagementRate is (likes+comments) / (posts*followers) * 100, or 0 when
// either denominator factor is zero.
func EngagementRate(likes, comments, posts, followers int64) float64 {
	if posts <= 0 || followers <= 0 {
		return 0
	}
	return float64(likes+comments) / float64(posts*followers) * 100
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SnapshotResult summarizes one Snapshot Writer run.
type SnapshotResult struct {
	AccountID        int64
	SnapshotDate     time.Time
	FollowersCount   int64
	EngagementRate   float64
	PostsCaptured    int
	InsightFailures  int
	RecordsProcessed int
	Duration         time.Duration
}

// SnapshotEvent is published after a successful snapshot run.
type SnapshotEvent struct {
	EventID          string    `json:"event_id"`
	Action           string    `json:"action"`
	AccountID        int64     `json:"account_id"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	SnapshotDate     string    `json:"snapshot_date"`
	FollowersCount   int64     `json:"followers_count"`
	EngagementRate   float64   `json:"engagement_rate"`
	RecordsProcessed int       `json:"records_processed"`
	Timestamp        time.Time `json:"timestamp"`
}
