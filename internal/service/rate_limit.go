package service

import (
	"context"
	"time"

	"privchat/internal/repository"
	"privchat/pkg/logger"
)

type RateLimitService interface {
	// Allow counts one attempt for key and reports whether it fits in the
	// window, along with the attempts left.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	allowed, remaining, err := s.rateLimitRepo.Hit(ctx, key, limit, window)
	if err != nil {
		return false, 0, err
	}
	if !allowed {
		s.log.Warn("Rate limit exceeded", "key", key, "limit", limit)
	}
	return allowed, remaining, nil
}
