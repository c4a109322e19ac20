package bootstrap

import (
	"errors"
	"fmt"

	"daw-agent-be/internal/config"
	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/database"
	"daw-agent-be/pkg/store"
	"daw-agent-be/pkg/store/postgres"
	redisstore "daw-agent-be/pkg/store/redis"
	"daw-agent-be/pkg/store/sqlite"

	"github.com/redis/go-redis/v9"
)

var errRedisRequired = errors.New("BLOB_STORE=redis needs REDIS_URL")

// NewBlobStore opens the backend named by cfg.Store.Backend.
func NewBlobStore(cfg *config.Config, rdb *redis.Client, log logger.ILogger) (store.BlobStore, error) {
	switch cfg.Store.Backend {
	case "", "sqlite":
		return sqlite.Open(cfg.Store.SQLitePath)
	case "postgres":
		db, err := database.NewGormDB(database.Options{
			DSN:     cfg.Database.Connection,
			Verbose: cfg.App.Environment != "production",
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.New(db)
	case "redis":
		if rdb == nil {
			return nil, errRedisRequired
		}
		return redisstore.New(rdb, cfg.Store.RedisTTL), nil
	case "none", "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported blob store backend: %s", cfg.Store.Backend)
	}
}
