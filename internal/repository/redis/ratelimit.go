package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRateLimitPrefix = "ratelimit:"

var rateLimitScript = goredis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local current = redis.call("INCR", key)
if current == 1 then
  redis.call("PEXPIRE", key, window_ms)
end

local ttl = redis.call("PTTL", key)
if ttl < 0 then
  ttl = window_ms
end

if current > limit then
  return {0, ttl}
end
return {1, ttl}
`)

// Fixed window counter shared by every process connected to the same redis
type RateLimiter struct {
	client goredis.UniversalClient
	limit  int
	window time.Duration
	prefix string
}

func NewRateLimiter(client goredis.UniversalClient, limit int, window time.Duration, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
	}
}

func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	windowMS := l.window.Milliseconds()
	if windowMS <= 0 {
		return false, 0, fmt.Errorf("invalid rate limit window %s", l.window)
	}

	vals, err := rateLimitScript.Run(ctx, l.client, []string{l.prefix + key}, l.limit, windowMS).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis error: %w", err)
	}
	if len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected redis response %v", vals)
	}

	retryAfter := max(time.Duration(vals[1])*time.Millisecond, 0)

	return vals[0] == 1, retryAfter, nil
}
