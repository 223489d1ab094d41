package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"privchat/internal/hub"
	"privchat/internal/middleware"
	"privchat/pkg/logger"
)

type WebSocketHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewWebSocketHandler(chatHub *hub.Hub, origins []string, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: chatHub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(origins, r.Header.Get("Origin"))
			},
		},
		log: log,
	}
}

// HandleChat upgrades an authenticated request and serves it until the
// socket closes. Unauthenticated requests are refused before the upgrade.
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	session, _ := middleware.SessionFrom(c)
	if err := hub.Admit(session, time.Now()); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "error", err, "identity", session.Identity)
		return
	}

	client := hub.NewClient(h.hub, conn, *session)
	// The request context ends when the handler returns; repository work
	// for in-flight events must not be cancelled with it.
	h.hub.Serve(context.WithoutCancel(c.Request.Context()), client)
}
