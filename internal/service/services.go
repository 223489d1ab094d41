package service

import (
	"privchat/internal/config"
	"privchat/internal/repository"
	"privchat/pkg/logger"
)

type Services struct {
	Auth      AuthService
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	return &Services{
		Auth:      NewAuthService(repos.Sessions, cfg.Auth, cfg.Session, log),
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}
}
