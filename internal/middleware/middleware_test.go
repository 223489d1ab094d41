package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privchat/internal/domain"
	"privchat/internal/hub"
	"privchat/internal/service"
	"privchat/pkg/logger"
)

type stubAuth struct {
	sessions map[string]*hub.Session
}

func (s stubAuth) Login(context.Context, string, string) (*service.LoginResult, error) {
	return nil, nil
}

func (s stubAuth) ValidateSession(_ context.Context, token string) (*hub.Session, error) {
	if session, ok := s.sessions[token]; ok {
		return session, nil
	}
	return nil, domain.ErrUnauthenticated
}

func (s stubAuth) Logout(context.Context, string) error { return nil }

type stubLimiter struct {
	calls int
	limit int
	err   error
}

func (s *stubLimiter) Allow(_ context.Context, _ string, limit int, _ time.Duration) (bool, int, error) {
	if s.err != nil {
		return false, 0, s.err
	}
	s.calls++
	remaining := limit - s.calls
	if remaining < 0 {
		remaining = 0
	}
	return s.calls <= limit, remaining, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSessionAuth(t *testing.T) {
	auth := NewAuthMiddleware(stubAuth{sessions: map[string]*hub.Session{
		"good":    {Identity: "alice", Authenticated: true, ExpiresAt: time.Now().Add(time.Hour)},
		"expired": {Identity: "bob", Authenticated: true, ExpiresAt: time.Now().Add(-time.Hour)},
	}}, "sid", logger.NewNop())

	r := gin.New()
	r.Use(auth.SessionAuth())
	r.GET("/me", auth.RequireSession(), func(c *gin.Context) {
		session, _ := SessionFrom(c)
		c.String(http.StatusOK, session.Identity+":"+SessionToken(c))
	})

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
		body   string
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sid", Value: "good"}) }, http.StatusOK, "alice:good"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "alice:good"},
		{"unknown token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized, ""},
		{"expired", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sid", Value: "expired"}) }, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := &stubLimiter{}
	m := NewRateLimitMiddleware(limiter, logger.NewNop())

	r := gin.New()
	r.POST("/login", m.Limit(domain.RateLimitRule{Scope: domain.RateLimitScopeLogin, Limit: 2, Window: time.Minute}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	limiter.err = assert.AnError
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(logger.NewNop()))
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(domain.ErrMessageNotFound)
	})
	r.GET("/down", func(c *gin.Context) {
		_ = c.Error(domain.ErrStoreUnavailable)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestOriginAllowed(t *testing.T) {
	origins := []string{"http://localhost:5173", " https://Chat.Example.com "}

	assert.True(t, OriginAllowed(origins, ""))
	assert.True(t, OriginAllowed(origins, "http://localhost:5173"))
	assert.True(t, OriginAllowed(origins, "https://chat.example.com"))
	assert.False(t, OriginAllowed(origins, "https://evil.example"))
	assert.False(t, OriginAllowed(origins, "not a url"))
	assert.True(t, OriginAllowed([]string{"*"}, "https://anything.example"))
}
