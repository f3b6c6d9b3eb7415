package instagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"growth_tracker/internal/domain"
	"growth_tracker/internal/metrics"
)

const (
	endpointProfile  = "profile"
	endpointMedia    = "media"
	endpointInsights = "insights"

	profileFields  = "id,username,account_type,media_count,followers_count,follows_count"
	mediaFields    = "id,media_type,media_url,permalink,caption,timestamp,like_count,comments_count,thumbnail_url"
	insightMetrics = "reach,impressions,saved"

	// Graph API timestamps use a numeric zone without a colon.
	graphTimeLayout = "2006-01-02T15:04:05-0700"
)

// Config holds Instagram Graph client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the Instagram Graph API. It never retries; callers decide
// how to handle failures.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// New creates a Graph API client. Every call is bounded by cfg.Timeout.
func New(cfg Config, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "GrowthTracker/1.0")

	return &Client{
		http:   httpClient,
		logger: logger.With("source", "instagram"),
	}
}

// FetchProfile returns the profile behind accessToken.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error) {
	body, err := c.get(ctx, endpointProfile, "/me", map[string]string{
		"fields":       profileFields,
		"access_token": accessToken,
	})
	if err != nil {
		return nil, err
	}

	var p profileResponse
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, decodeError(endpointProfile, err)
	}

	return &domain.Profile{
		ID:             p.ID,
		Username:       p.Username,
		AccountType:    p.AccountType,
		MediaCount:     p.MediaCount,
		FollowersCount: p.FollowersCount,
		FollowsCount:   p.FollowsCount,
		Raw:            body,
	}, nil
}

// FetchRecentPosts returns up to limit of the most recent media items.
func (c *Client) FetchRecentPosts(ctx context.Context, accessToken string, limit int) ([]domain.Post, error) {
	body, err := c.get(ctx, endpointMedia, "/me/media", map[string]string{
		"fields":       mediaFields,
		"limit":        strconv.Itoa(limit),
		"access_token": accessToken,
	})
	if err != nil {
		return nil, err
	}

	var resp mediaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(endpointMedia, err)
	}

	posts := make([]domain.Post, 0, len(resp.Data))
	for _, raw := range resp.Data {
		var item mediaItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, decodeError(endpointMedia, err)
		}

		// An undated post is still captured; it never counts as posted today.
		publishedAt, err := parseTimestamp(item.Timestamp)
		if err != nil {
			c.logger.Warn("failed to parse media timestamp",
				"post_id", item.ID,
				"timestamp", item.Timestamp,
			)
			publishedAt = time.Time{}
		}

		posts = append(posts, domain.Post{
			ID:           item.ID,
			Type:         item.MediaType,
			MediaURL:     item.MediaURL,
			Permalink:    item.Permalink,
			Caption:      item.Caption,
			PublishedAt:  publishedAt,
			LikeCount:    item.LikeCount,
			CommentCount: item.CommentsCount,
			ThumbnailURL: item.ThumbnailURL,
			Raw:          []byte(raw),
		})
	}

	return posts, nil
}

// FetchPostInsights returns reach, impressions and saves for one post.
// Metrics missing from the response stay nil.
func (c *Client) FetchPostInsights(ctx context.Context, postID, accessToken string) (*domain.PostInsights, error) {
	body, err := c.get(ctx, endpointInsights, "/"+postID+"/insights", map[string]string{
		"metric":       insightMetrics,
		"access_token": accessToken,
	})
	if err != nil {
		return nil, err
	}

	var resp insightsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(endpointInsights, err)
	}

	insights := &domain.PostInsights{Raw: body}
	for _, m := range resp.Data {
		if len(m.Values) == 0 {
			continue
		}
		v := m.Values[0].Value
		switch m.Name {
		case "reach":
			insights.Reach = &v
		case "impressions":
			insights.Impressions = &v
		case "saved":
			insights.Saves = &v
		}
	}

	return insights, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, params map[string]string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		metrics.InstagramRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, &domain.APIError{Endpoint: endpoint, Err: err}
	}

	if !resp.IsSuccess() {
		metrics.InstagramRequestsTotal.WithLabelValues(endpoint, "http_error").Inc()
		return nil, &domain.APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
			Err:        fmt.Errorf("unexpected status: %d", resp.StatusCode()),
		}
	}

	metrics.InstagramRequestsTotal.WithLabelValues(endpoint, "success").Inc()
	return resp.Body(), nil
}

func decodeError(endpoint string, err error) error {
	return &domain.APIError{Endpoint: endpoint, Err: fmt.Errorf("decode response: %w", err)}
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(graphTimeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("unrecognized timestamp format")
	}
	return t.UTC(), nil
}
