package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// waitPollInterval is the retry interval of Wait.
const waitPollInterval = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter using a sliding window kept in
// a Redis sorted set and an atomic Lua script. The HTTP server limits
// mutating requests per principal with it.
type RateLimiter struct {
	c             *Client
	slidingWindow *redis.Script
	now           func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		c:             c,
		slidingWindow: redis.NewScript(slidingWindowLua),
		now:           time.Now,
	}
}

func (rl *RateLimiter) rateLimitKey(key string) string {
	return rl.c.key("ratelimit:" + key)
}

// Allow reports whether a request for key fits in the window, counting it
// when it does.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := rl.slidingWindow.Run(
		ctx,
		rl.c.rdb,
		[]string{rl.rateLimitKey(key)},
		rl.now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}

// Wait blocks until one request per second is allowed for key.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
