package hub

import (
	"time"

	"privchat/internal/domain"
)

// Session is the authenticated identity captured when a connection is
// accepted. It is never re-derived for the lifetime of the connection.
type Session struct {
	Identity      string
	Authenticated bool
	ExpiresAt     time.Time
}

// Active reports whether the session may still emit events at now.
// A zero ExpiresAt never expires.
func (s Session) Active(now time.Time) bool {
	if !s.Authenticated || s.Identity == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// Admit decides whether a handshake may become a connection.
func Admit(s *Session, now time.Time) error {
	if s == nil || !s.Active(now) {
		return domain.ErrUnauthenticated
	}
	return nil
}
