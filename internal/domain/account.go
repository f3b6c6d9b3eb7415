package domain

import "time"

// Account is one connected Instagram identity owned by a dashboard user.
type Account struct {
	ID             int64      `db:"id"`
	UserID         string     `db:"user_id"`
	ExternalID     string     `db:"external_id"`
	Username       string     `db:"username"`
	AccessToken    string     `db:"access_token"`
	RefreshToken   *string    `db:"refresh_token"`
	TokenExpiresAt *time.Time `db:"token_expires_at"`
	IsActive       bool       `db:"is_active"`
	LastSyncAt     *time.Time `db:"last_sync_at"`
	AccountType    string     `db:"account_type"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// RefreshCredential returns the token used for the refresh grant.
// Instagram long-lived tokens are refreshed with themselves when no
// dedicated refresh token was issued.
func (a Account) RefreshCredential() string {
	if a.RefreshToken != nil && *a.RefreshToken != "" {
		return *a.RefreshToken
	}
	return a.AccessToken
}

// Credential is a renewed access credential.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Profile holds the profile fields consumed from the social API.
type Profile struct {
	ID             string
	Username       string
	AccountType    string
	MediaCount     int64
	FollowersCount int64
	FollowsCount   int64
	Raw            []byte
}

// Post is one recent media item as returned by the social API.
type Post struct {
	ID           string
	Type         string
	MediaURL     string
	Permalink    string
	Caption      *string
	PublishedAt  time.Time
	LikeCount    *int64
	CommentCount *int64
	ThumbnailURL *string
	Raw          []byte
}

func (p Post) Likes() int64 {
	if p.LikeCount == nil {
		return 0
	}
	return *p.LikeCount
}

func (p Post) Comments() int64 {
	if p.CommentCount == nil {
		return 0
	}
	return *p.CommentCount
}

// PostInsights are optional per-post metrics. A zero value means the
// insights were unavailable.
type PostInsights struct {
	Reach       *int64
	Impressions *int64
	Saves       *int64
	Raw         []byte
}
