package instagram

import "github.com/goccy/go-json"

// profileResponse is the subset of /me fields the snapshot needs.
type profileResponse struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	AccountType    string `json:"account_type"`
	MediaCount     int64  `json:"media_count"`
	FollowersCount int64  `json:"followers_count"`
	FollowsCount   int64  `json:"follows_count"`
}

type mediaResponse struct {
	Data   []json.RawMessage `json:"data"`
	Paging *paging           `json:"paging,omitempty"`
}

type paging struct {
	Next string `json:"next"`
}

type mediaItem struct {
	ID            string  `json:"id"`
	MediaType     string  `json:"media_type"`
	MediaURL      string  `json:"media_url"`
	Permalink     string  `json:"permalink"`
	Caption       *string `json:"caption"`
	Timestamp     string  `json:"timestamp"`
	LikeCount     *int64  `json:"like_count"`
	CommentsCount *int64  `json:"comments_count"`
	ThumbnailURL  *string `json:"thumbnail_url"`
}

type insightsResponse struct {
	Data []insightMetric `json:"data"`
}

type insightMetric struct {
	Name   string         `json:"name"`
	Period string         `json:"period"`
	Values []insightValue `json:"values"`
}

type insightValue struct {
	Value int64 `json:"value"`
}
