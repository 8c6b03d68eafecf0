package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "ratelimit"

// WindowCounter implements fixed-window request counting shared by all API
// replicas.
type WindowCounter struct {
	client *redis.Client
}

// NewWindowCounter returns a WindowCounter backed by client.
func NewWindowCounter(client *redis.Client) *WindowCounter {
	return &WindowCounter{client: client}
}

// Incr counts one hit for scope in the current window and returns the hit
// count and the time left until the window resets.
func (c *WindowCounter) Incr(ctx context.Context, scope string, window time.Duration) (int64, time.Duration, error) {
	key := buildKey(rateLimitPrefix, scope)
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, errors.Wrap(err, "incr")
	}
	if count == 1 {
		if err := c.client.PExpire(ctx, key, window).Err(); err != nil {
			return count, window, errors.Wrap(err, "expire")
		}
		return count, window, nil
	}

	ttl, err := c.client.PTTL(ctx, key).Result()
	if err != nil {
		return count, window, errors.Wrap(err, "ttl")
	}
	if ttl < 0 {
		// Lost the expiry, e.g. a crash between INCR and PEXPIRE.
		if err := c.client.PExpire(ctx, key, window).Err(); err != nil {
			return count, window, errors.Wrap(err, "expire")
		}
		ttl = window
	}
	return count, ttl, nil
}
