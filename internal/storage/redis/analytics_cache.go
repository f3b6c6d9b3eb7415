package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"growth_tracker/internal/domain"
)

const growthKeyPrefix = "growth:analytics:"

// expiryMargin keeps cached analytics from outliving the UTC day they
// were computed for.
const expiryMargin = 5 * time.Minute

type Config struct {
	Addr     string
	Password string
	DB       int
}

// AnalyticsCache stores per-user growth analytics until shortly before the
// next UTC midnight, when a new snapshot day begins.
type AnalyticsCache struct {
	rdb *redis.Client
	now func() time.Time
}

func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewAnalyticsCache(rdb *redis.Client) *AnalyticsCache {
	return &AnalyticsCache{rdb: rdb, now: time.Now}
}

// growthEntry pins cached analytics to the account state they were
// computed from.
type growthEntry struct {
	Version string                  `json:"version"`
	Growth  *domain.GrowthAnalytics `json:"growth"`
}

// GetGrowth returns (nil, nil) on a miss or when the stored entry was
// computed for another version.
func (c *AnalyticsCache) GetGrowth(ctx context.Context, userID, version string) (*domain.GrowthAnalytics, error) {
	data, err := c.rdb.Get(ctx, growthKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get growth analytics: %w", err)
	}

	var entry growthEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode growth analytics: %w", err)
	}
	if entry.Version != version || entry.Growth == nil {
		return nil, nil
	}
	return entry.Growth, nil
}

func (c *AnalyticsCache) SetGrowth(ctx context.Context, userID, version string, growth *domain.GrowthAnalytics) error {
	ttl := ttlUntilNextDay(c.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(growthEntry{Version: version, Growth: growth})
	if err != nil {
		return fmt.Errorf("encode growth analytics: %w", err)
	}
	if err := c.rdb.Set(ctx, growthKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("set growth analytics: %w", err)
	}
	return nil
}

func (c *AnalyticsCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, growthKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate growth analytics: %w", err)
	}
	return nil
}

func growthKey(userID string) string {
	return growthKeyPrefix + userID
}

func ttlUntilNextDay(now time.Time) time.Duration {
	next := domain.DateOf(now).AddDate(0, 0, 1)
	return next.Sub(now) - expiryMargin
}
