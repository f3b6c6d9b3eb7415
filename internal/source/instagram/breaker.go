package instagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"growth_tracker/internal/domain"
	"growth_tracker/internal/metrics"
)

// API is the Graph API surface the snapshot writer consumes.
type API interface {
	FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error)
	FetchRecentPosts(ctx context.Context, accessToken string, limit int) ([]domain.Post, error)
	FetchPostInsights(ctx context.Context, postID, accessToken string) (*domain.PostInsights, error)
}

// BreakerConfig controls when the breaker opens.
type BreakerConfig struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// BreakerClient wraps an API with a circuit breaker so that a platform
// outage fails the remaining accounts of a batch immediately. Client errors
// for a single account (4xx) do not count as failures.
type BreakerClient struct {
	api  API
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

func NewBreakerClient(api API, cfg BreakerConfig, logger *slog.Logger) *BreakerClient {
	name := cfg.Name
	if name == "" {
		name = "instagram-graph"
	}
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *domain.APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state transition",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{api: api, cb: cb, name: name}
}

func (b *BreakerClient) FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error) {
	return execute(b, endpointProfile, func() (*domain.Profile, error) {
		return b.api.FetchProfile(ctx, accessToken)
	})
}

func (b *BreakerClient) FetchRecentPosts(ctx context.Context, accessToken string, limit int) ([]domain.Post, error) {
	return execute(b, endpointMedia, func() ([]domain.Post, error) {
		return b.api.FetchRecentPosts(ctx, accessToken, limit)
	})
}

func (b *BreakerClient) FetchPostInsights(ctx context.Context, postID, accessToken string) (*domain.PostInsights, error) {
	return execute(b, endpointInsights, func() (*domain.PostInsights, error) {
		return b.api.FetchPostInsights(ctx, postID, accessToken)
	})
}

// State exposes the breaker state for health reporting.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *BreakerClient, endpoint string, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, b.wrap(endpoint, err)
	}
	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", res)
	}
	return typed, nil
}

// wrap keeps breaker rejections inside the APIError contract.
func (b *BreakerClient) wrap(endpoint string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.InstagramRequestsTotal.WithLabelValues(endpoint, "rejected").Inc()
		return &domain.APIError{Endpoint: endpoint, Err: fmt.Errorf("%s: %w", b.name, err)}
	}
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
