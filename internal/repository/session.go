package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"privchat/pkg/logger"
)

const revokedSessionPrefix = "chat:session:revoked:"

// SessionRepository remembers signed sessions that were logged out before
// they expired.
type SessionRepository interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type sessionRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewSessionRepository(redis *redis.Client, log logger.Logger) SessionRepository {
	return &sessionRepository{redis: redis, log: log}
}

func (r *sessionRepository) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.redis.Set(ctx, revokedSessionPrefix+sessionID, 1, ttl).Err(); err != nil {
		r.log.Error("Failed to revoke session", "session_id", sessionID, "error", err)
		return err
	}
	return nil
}

func (r *sessionRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	err := r.redis.Get(ctx, revokedSessionPrefix+sessionID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
