package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type clientCounter interface {
	ClientCount() int
}

type HealthHandler struct {
	store   pinger
	clients clientCounter
}

func NewHealthHandler(store pinger, clients clientCounter) *HealthHandler {
	return &HealthHandler{store: store, clients: clients}
}

// Check always answers 200: the hub keeps serving from its fallback buffer
// while the store is down, so "store" is informational.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	store := "up"
	if err := h.store.Ping(ctx); err != nil {
		store = "down"
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": "privchat",
		"store":   store,
		"clients": h.clients.ClientCount(),
	})
}
