package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"privchat/internal/config"
	"privchat/internal/hub"
	"privchat/internal/repository"
	"privchat/internal/service"
	"privchat/pkg/errors"
	"privchat/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	Messages  *MessageHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, repos *repository.Repositories, chatHub *hub.Hub, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(repos.Messages, chatHub),
		Auth:      NewAuthHandler(services.Auth, cfg.Session, log),
		Messages:  NewMessageHandler(chatHub, log),
		WebSocket: NewWebSocketHandler(chatHub, cfg.Server.CORSOrigins, log),
	}
}

// respondError maps err to a status code. Server-side failures are not
// described to the client.
func respondError(c *gin.Context, err error) {
	status := errors.HTTPStatusFromError(err)
	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	c.JSON(status, gin.H{"error": message})
}
