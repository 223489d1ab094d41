package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"privchat/internal/config"
	"privchat/internal/domain"
	"privchat/internal/middleware"
	"privchat/pkg/logger"
)

func NewRouter(
	handlers *Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	gatherer prometheus.Gatherer,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))
	router.Use(authMiddleware.SessionAuth())

	loginRule := domain.RateLimitRule{
		Scope:  domain.RateLimitScopeLogin,
		Limit:  cfg.Auth.LoginLimit,
		Window: cfg.Auth.LoginWindow,
	}

	router.GET("/health", handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		api.GET("/health", handlers.Health.Check)

		auth := api.Group("/auth")
		{
			auth.POST("/login", rateLimitMiddleware.Limit(loginRule), handlers.Auth.Login)
			auth.POST("/logout", handlers.Auth.Logout)
			auth.GET("/me", authMiddleware.RequireSession(), handlers.Auth.Me)
		}

		messages := api.Group("/messages")
		messages.Use(authMiddleware.RequireSession())
		{
			messages.GET("", handlers.Messages.List)
			messages.PATCH("/:id", handlers.Messages.Edit)
			messages.DELETE("/:id", handlers.Messages.Delete)
			messages.POST("/:id/like", handlers.Messages.Like)
			messages.DELETE("/:id/unsend", handlers.Messages.Unsend)
		}
	}

	router.GET("/ws", handlers.WebSocket.HandleChat)

	return router
}
