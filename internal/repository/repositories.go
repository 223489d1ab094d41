package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"privchat/internal/config"
	"privchat/pkg/logger"
)

type Repositories struct {
	Messages  MessageRepository
	RateLimit RateLimitRepository
	Sessions  SessionRepository

	closers []func()
}

// NewRepositories opens the message store selected by cfg.Store.Driver.
// An unreachable PostgreSQL is tolerated outside production: the hub
// serves from its fallback buffer until the database answers, and the
// postgres driver creates its table on the first call that reaches it.
func NewRepositories(ctx context.Context, cfg *config.Config, rdb *redis.Client, log logger.Logger) (*Repositories, error) {
	repos := &Repositories{
		RateLimit: NewRateLimitRepository(rdb, log),
		Sessions:  NewSessionRepository(rdb, log),
	}

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		repos.closers = append(repos.closers, pool.Close)

		if err := pool.Ping(ctx); err != nil {
			if cfg.Environment == "production" {
				pool.Close()
				return nil, fmt.Errorf("ping database: %w", err)
			}
			log.Warn("Database unreachable, continuing with fallback history; the schema is created once it answers", "error", err)
		} else {
			log.Info("Database connection established")
		}
		repos.Messages = NewPostgresMessageRepository(pool, log)

	case config.StoreDriverPebble:
		messages, closeFn, err := OpenPebbleMessageRepository(cfg.Store.PebblePath, log)
		if err != nil {
			return nil, err
		}
		repos.closers = append(repos.closers, func() {
			if err := closeFn(); err != nil {
				log.Error("Failed to close pebble", "error", err)
			}
		})
		repos.Messages = messages

	case config.StoreDriverMemory:
		log.Warn("Using in-memory message store, messages are lost on restart")
		repos.Messages = NewMemoryMessageRepository()

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	log.Info("Message repository initialized", "driver", cfg.Store.Driver)
	return repos, nil
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	return pool, nil
}

// Close releases the underlying store handles.
func (r *Repositories) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}
