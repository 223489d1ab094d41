package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"privchat/internal/hub"
	"privchat/internal/service"
	"privchat/pkg/logger"
)

const (
	sessionKey      = "session"
	sessionTokenKey = "session_token"
)

type AuthMiddleware struct {
	authService service.AuthService
	cookieName  string
	log         logger.Logger
}

func NewAuthMiddleware(authService service.AuthService, cookieName string, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		cookieName:  cookieName,
		log:         log,
	}
}

// SessionAuth resolves the session from the session cookie or a Bearer
// token. Requests without a valid session continue unauthenticated.
func (m *AuthMiddleware) SessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.token(c)
		if token == "" {
			c.Next()
			return
		}

		session, err := m.authService.ValidateSession(c.Request.Context(), token)
		if err != nil {
			m.log.Debug("Ignoring invalid session", "error", err, "path", c.Request.URL.Path)
			c.Next()
			return
		}

		c.Set(sessionKey, session)
		c.Set(sessionTokenKey, token)
		c.Next()
	}
}

// RequireSession aborts with 401 unless SessionAuth found an active session.
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := SessionFrom(c)
		if !ok || !session.Active(time.Now()) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) token(c *gin.Context) string {
	if cookie, err := c.Cookie(m.cookieName); err == nil && cookie != "" {
		return cookie
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SessionFrom returns the session stored by SessionAuth.
func SessionFrom(c *gin.Context) (*hub.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*hub.Session)
	return session, ok
}

// SessionToken returns the raw token the session was read from.
func SessionToken(c *gin.Context) string {
	return c.GetString(sessionTokenKey)
}
