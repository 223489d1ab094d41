package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"privchat/internal/config"
	"privchat/internal/handler"
	"privchat/internal/hub"
	"privchat/internal/middleware"
	"privchat/internal/repository"
	"privchat/internal/service"
	"privchat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)
	defer appLogger.Sync()

	// Redis backs login throttling and logout revocation. Both fail open.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		if cfg.Environment == "production" {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		appLogger.Warn("Redis unreachable, login throttling and logout revocation are disabled", "error", err)
	} else {
		appLogger.Info("Redis connection established")
	}

	repos, err := repository.NewRepositories(context.Background(), cfg, rdb, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize repositories", "error", err)
	}
	defer repos.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	chatHub := hub.New(repos.Messages, hub.Options{
		HistoryLimit:     cfg.Hub.HistoryLimit,
		FallbackCapacity: cfg.Hub.FallbackCapacity,
		SendBuffer:       cfg.Hub.SendBuffer,
		MaxMessageSize:   cfg.Hub.MaxMessageSize,
		RateLimitRPS:     cfg.Hub.RateLimitRPS,
		RateLimitBurst:   cfg.Hub.RateLimitBurst,
	}, hub.NewMetrics(registry), appLogger)

	services := service.NewServices(repos, cfg, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(services.Auth, cfg.Session.CookieName, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	handlers := handler.NewHandlers(services, repos, chatHub, cfg, appLogger)
	router := handler.NewRouter(handlers, authMiddleware, rateLimitMiddleware, registry, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by srv.Shutdown.
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}
	if err := chatHub.Shutdown(ctx); err != nil {
		appLogger.Error("Chat hub did not drain in time", "error", err)
	}

	appLogger.Info("Server exited")
}
