package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"privchat/internal/config"
	"privchat/internal/domain"
	"privchat/internal/hub"
	"privchat/internal/repository"
	apperrors "privchat/pkg/errors"
	"privchat/pkg/jwt"
	"privchat/pkg/logger"
)

const DefaultUsername = "User"

type AuthService interface {
	Login(ctx context.Context, password, username string) (*LoginResult, error)
	ValidateSession(ctx context.Context, token string) (*hub.Session, error)
	Logout(ctx context.Context, token string) error
}

type LoginResult struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type authService struct {
	sessions   repository.SessionRepository
	authCfg    config.AuthConfig
	sessionCfg config.SessionConfig
	log        logger.Logger
}

func NewAuthService(sessions repository.SessionRepository, authCfg config.AuthConfig, sessionCfg config.SessionConfig, log logger.Logger) AuthService {
	return &authService{
		sessions:   sessions,
		authCfg:    authCfg,
		sessionCfg: sessionCfg,
		log:        log,
	}
}

// NormalizeUsername applies the display-name policy: blank becomes
// DefaultUsername and long names are cut to max runes.
func NormalizeUsername(username string, max int) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return DefaultUsername
	}
	return domain.Truncate(username, max)
}

// Login checks password against the shared room password and issues a
// signed session for username.
func (s *authService) Login(ctx context.Context, password, username string) (*LoginResult, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password required", apperrors.ErrBadRequest)
	}
	if s.authCfg.PasswordHash == "" {
		s.log.Error("Login attempted but CHAT_PASSWORD_HASH is not set")
		return nil, apperrors.ErrNotConfigured
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.authCfg.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.log.Error("Failed to compare password hash", "error", err)
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	name := NormalizeUsername(username, s.authCfg.MaxUsernameLength)
	token, expiresAt, err := jwt.GenerateSessionToken(name, s.sessionCfg.Secret, s.sessionCfg.Issuer, s.sessionCfg.TTL)
	if err != nil {
		s.log.Error("Failed to issue session", "error", err)
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.log.Info("User logged in", "username", name)
	return &LoginResult{Username: name, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *authService) ValidateSession(ctx context.Context, token string) (*hub.Session, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	claims, err := jwt.ValidateSessionToken(token, s.sessionCfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	revoked, err := s.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		// Revocation is best effort; signature and expiry still hold.
		s.log.Warn("Failed to check session revocation", "error", err)
	} else if revoked {
		return nil, fmt.Errorf("%w: session revoked", domain.ErrUnauthenticated)
	}

	session := &hub.Session{
		Identity:      claims.Username,
		Authenticated: claims.IsAuthenticated,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// Logout revokes token for the rest of its lifetime. Invalid tokens are
// ignored.
func (s *authService) Logout(ctx context.Context, token string) error {
	claims, err := jwt.ValidateSessionToken(token, s.sessionCfg.Secret)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.sessions.Revoke(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
}
