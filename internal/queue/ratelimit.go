package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript atomically checks and increments the per-second counter.
// The check happens before the increment so a denied request never consumes
// budget.
const rateLimitScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return 0
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end
return 1
`

// RateLimiter enforces a global sends-per-second budget shared by every
// worker and campaign in the process fleet. Backed by Redis so the budget
// holds across processes.
type RateLimiter struct {
	redis   *redis.Client
	script  *redis.Script
	permits int
	clock   func() time.Time
}

// NewRateLimiter creates a limiter allowing permits sends per second.
func NewRateLimiter(client *redis.Client, permits int) *RateLimiter {
	return &RateLimiter{
		redis:   client,
		script:  redis.NewScript(rateLimitScript),
		permits: permits,
		clock:   time.Now,
	}
}

// NewRateLimiterFromURL connects to Redis and creates a limiter.
func NewRateLimiterFromURL(redisURL string, permits int) (*RateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRateLimiter(client, permits), nil
}

// Allow reports whether one send fits in the current second's budget.
func (r *RateLimiter) Allow(ctx context.Context) (bool, error) {
	key := fmt.Sprintf("sendrate:%d", r.clock().Unix())
	result, err := r.script.Run(ctx, r.redis, []string{key}, r.permits, 2).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return result == 1, nil
}

// Wait blocks until a permit is granted or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		allowed, err := r.Allow(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
