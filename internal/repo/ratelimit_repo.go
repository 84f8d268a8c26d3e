package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/yolla/server/internal/clock"
)

// RateLimitRepo holds sliding-window request counters shared by all workers.
// Allow records the request only when it is admitted.
type RateLimitRepo interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// slidingWindowScript trims, counts and records in one step so concurrent requests cannot overshoot the limit.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
	local count = redis.call('ZCARD', key)
	if count >= limit then
		return 0
	end
	redis.call('ZADD', key, now_ms, member)
	redis.call('PEXPIRE', key, window_ms)
	return 1
`)

type rateLimitRepo struct {
	rdb    *redis.Client
	clock  clock.Clock
	prefix string
}

// NewRateLimitRepo creates a Redis-backed RateLimitRepo
func NewRateLimitRepo(rdb *redis.Client, clk clock.Clock) RateLimitRepo {
	return &rateLimitRepo{rdb: rdb, clock: clk, prefix: "rl"}
}

func (r *rateLimitRepo) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.clock.Now()
	res, err := slidingWindowScript.Run(ctx, r.rdb, []string{r.prefix + ":" + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return res == 1, nil
}
