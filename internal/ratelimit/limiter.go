// Package ratelimit paces batch work against the social API.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Interval lets one caller through every interval. The first call passes
// immediately. A non-positive interval never blocks.
type Interval struct {
	limiter *rate.Limiter
}

func NewInterval(interval time.Duration) *Interval {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Interval{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next slot or until ctx is done.
func (i *Interval) Wait(ctx context.Context) error {
	return i.limiter.Wait(ctx)
}
