package content

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowLimiter is an in-process sliding-window limiter: at most limit
// calls per key per window. Suitable for single-instance deployments.
type WindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  map[string][]time.Time
	now    func() time.Time
}

// NewWindowLimiter creates a limiter allowing limit calls per window.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:  limit,
		window: window,
		calls:  map[string][]time.Time{},
		now:    time.Now,
	}
}

func (l *WindowLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.calls[key][:0]
	for _, t := range l.calls[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.calls[key] = kept

	if len(kept) >= l.limit {
		return false, nil
	}
	l.calls[key] = append(kept, now)
	return true, nil
}

var _ RateLimiter = (*WindowLimiter)(nil)

// Lua script for an atomic fixed-window check-and-increment. A plain
// GET then INCR races under concurrent dispatchers.
const windowLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end
return {1, newVal}
`

// RedisLimiter enforces the generation cap across instances with a
// pre-compiled Lua script.
type RedisLimiter struct {
	redis       *redis.Client
	limit       int
	window      time.Duration
	limitScript *redis.Script
}

// NewRedisLimiter creates a Redis-backed limiter allowing limit calls
// per key per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		redis:       client,
		limit:       limit,
		window:      window,
		limitScript: redis.NewScript(windowLimitLuaScript),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := fmt.Sprintf("genlimit:%s:%d", key, time.Now().Unix()/int64(l.window.Seconds()))
	ttl := int(l.window.Seconds()) + 1

	result, err := l.limitScript.Run(ctx, l.redis, []string{windowKey}, l.limit, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}

	vals, ok := result.([]interface{})
	if !ok || len(vals) < 1 {
		return false, fmt.Errorf("unexpected rate limit script result: %v", result)
	}
	allowed, _ := vals[0].(int64)
	return allowed == 1, nil
}

var _ RateLimiter = (*RedisLimiter)(nil)
