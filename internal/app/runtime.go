package app

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/internal/store"
	"github.com/odyssey-erp/odyssey-procure/internal/store/memory"
	"github.com/odyssey-erp/odyssey-procure/internal/store/postgres"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the ODYSSEY_TEST_MODE flag once.
func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// Runtime holds the infrastructure shared by the API server and the worker.
// Pool is nil with the memory driver; Redis is nil when it could not be
// reached at startup.
type Runtime struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Backend store.Backend
	logger  *slog.Logger
}

// OpenRuntime connects the configured store and redis.
func OpenRuntime(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger}
	switch cfg.StoreDriver {
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConnLifetime: time.Hour})
		if err != nil {
			return nil, err
		}
		backend := postgres.New(pool, cfg.StoreTimeout)
		if err := backend.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		rt.Pool = pool
		rt.Backend = backend
	default:
		logger.Warn("using in-memory document store; data is lost on restart")
		rt.Backend = memory.New()
	}

	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis unavailable, document locks disabled", slog.Any("error", err))
	} else {
		rt.Redis = client
	}
	return rt, nil
}

// Locker returns the redis document locker, or nil without redis.
func (rt *Runtime) Locker(ttl time.Duration) procurement.Locker {
	if rt.Redis == nil {
		return nil
	}
	return shared.NewDocumentLocker(rt.Redis, ttl)
}

// Close releases every connection opened by OpenRuntime.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}
