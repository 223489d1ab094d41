package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"privchat/internal/config"
	"privchat/internal/middleware"
	"privchat/internal/service"
	"privchat/pkg/logger"
)

type AuthHandler struct {
	authService service.AuthService
	sessionCfg  config.SessionConfig
	log         logger.Logger
}

func NewAuthHandler(authService service.AuthService, sessionCfg config.SessionConfig, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessionCfg:  sessionCfg,
		log:         log,
	}
}

type LoginRequest struct {
	Password string `json:"password"`
	Username string `json:"username"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid login request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Password, req.Username)
	if err != nil {
		h.log.Warn("Login failed", "error", err, "client_ip", c.ClientIP())
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, result.Token, int(h.sessionCfg.TTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"username":  result.Username,
		"expiresAt": result.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if token := middleware.SessionToken(c); token != "" {
		if err := h.authService.Logout(c.Request.Context(), token); err != nil {
			h.log.Warn("Failed to revoke session", "error", err)
		}
	}
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AuthHandler) Me(c *gin.Context) {
	session, _ := middleware.SessionFrom(c)
	c.JSON(http.StatusOK, gin.H{"ok": true, "username": session.Identity})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessionCfg.CookieName, value, maxAge, "/", "", h.sessionCfg.Secure, true)
}
