package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"privchat/internal/domain"
	"privchat/internal/service"
	"privchat/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

// Limit enforces rule per client IP. When the counter store is unreachable
// the request is let through.
func (m *RateLimitMiddleware) Limit(rule domain.RateLimitRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, err := m.rateLimitService.Allow(c.Request.Context(), rule.Key(c.ClientIP()), rule.Limit, rule.Window)
		if err != nil {
			m.log.Error("Rate limit check failed", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(rule.Window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts"})
			c.Abort()
			return
		}
		c.Next()
	}
}
