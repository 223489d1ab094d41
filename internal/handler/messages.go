package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"privchat/internal/domain"
	"privchat/internal/middleware"
	"privchat/pkg/logger"
)

// MessageHub is the part of the hub the REST endpoints use. Every change
// made here is broadcast like its websocket counterpart.
type MessageHub interface {
	History(ctx context.Context) []*domain.Message
	ToggleLike(ctx context.Context, identity, messageID string) ([]string, error)
	Edit(ctx context.Context, identity, messageID, text string) (*domain.Message, error)
	Delete(ctx context.Context, identity, messageID string) (*domain.Message, error)
	Unsend(ctx context.Context, identity, messageID string) error
}

type MessageHandler struct {
	hub MessageHub
	log logger.Logger
}

func NewMessageHandler(hub MessageHub, log logger.Logger) *MessageHandler {
	return &MessageHandler{hub: hub, log: log}
}

func identity(c *gin.Context) string {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		return ""
	}
	return session.Identity
}

func (h *MessageHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.hub.History(c.Request.Context())})
}

type EditMessageRequest struct {
	Text string `json:"text"`
}

func (h *MessageHandler) Edit(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid text"})
		return
	}

	message, err := h.hub.Edit(c.Request.Context(), identity(c), c.Param("id"), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "msg": message})
}

func (h *MessageHandler) Delete(c *gin.Context) {
	message, err := h.hub.Delete(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "msg": message})
}

func (h *MessageHandler) Like(c *gin.Context) {
	likers, err := h.hub.ToggleLike(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "likers": likers})
}

func (h *MessageHandler) Unsend(c *gin.Context) {
	if err := h.hub.Unsend(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	h.log.Info("Message unsent", "message_id", c.Param("id"), "identity", identity(c))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
