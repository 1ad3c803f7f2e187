package cache

import (
	"context"
	"time"

	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/logger"
)

// Store is what the HTTP layer needs from a cache.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Close() error
}

// Open connects to Redis, or returns a process-local store when no URL is set.
func Open(ctx context.Context, cfg config.RedisConfig) (Store, error) {
	if cfg.URL == "" {
		logger.Warn("REDIS_URL empty, using in-process cache")
		return NewMemory(), nil
	}
	return Connect(ctx, cfg)
}

var (
	_ Store = (*Client)(nil)
	_ Store = (*Memory)(nil)
)
