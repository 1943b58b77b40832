package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventplanner/planner/internal/core/domain"
)

const (
	defaultAttempts = 5
	defaultWindow   = time.Minute
)

// Limiter is a fixed-window attempt counter backed by Redis.
// Key format: ratelimit:<scope>:<subject>
type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewLimiter allows limit attempts per window for every key.
func NewLimiter(client *redis.Client, limit int64, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = defaultAttempts
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Limiter{client: client, limit: limit, window: window}
}

// Allow counts one attempt and returns domain.ErrRateLimited once the
// window's budget is spent.
func (l *Limiter) Allow(ctx context.Context, scope, subject string) error {
	key := l.key(scope, subject)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if incr.Val() > l.limit {
		return domain.ErrRateLimited
	}
	return nil
}

// Reset forgets the attempts recorded for subject, typically after a success.
func (l *Limiter) Reset(ctx context.Context, scope, subject string) error {
	return l.client.Del(ctx, l.key(scope, subject)).Err()
}

func (l *Limiter) key(scope, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, subject)
}
