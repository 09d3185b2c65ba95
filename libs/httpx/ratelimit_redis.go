package httpx

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter shares one fixed-window budget per client across all clinic-service
// replicas.
type RedisRateLimiter struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(rdb redis.Cmdable, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window < time.Second {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "clinic:rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: int64(limit), window: window, prefix: prefix}
}

// Allow counts the request in the current window. INCR and the NX expiry share one MULTI.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := rl.prefix + ":" + key
	var count *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rl.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		count = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, rl.window)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	retry := ttl.Val()
	if retry <= 0 {
		retry = rl.window
	}
	return count.Val() <= rl.limit, retry, nil
}
