package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"privchat/pkg/logger"
)

const rateLimitKeyPrefix = "chat:ratelimit:"

type RateLimitRepository interface {
	// Hit counts one attempt for key inside a fixed window and reports
	// whether it is still within limit and how many attempts remain.
	Hit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Hit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	fullKey := rateLimitKeyPrefix + key

	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		pipe.ExpireNX(ctx, fullKey, window)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to increment rate limit", "key", fullKey, "error", err)
		return false, 0, err
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit, remaining, nil
}
