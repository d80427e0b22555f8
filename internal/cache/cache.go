package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the result cache used by the dispatcher, poller and worker.
// Implemented by the in-memory store (dev) and the Redis store (prod).
//
// Reads are fail-open: callers log a Get error and treat it as a miss,
// so an unavailable backend degrades to re-fetching, never to a hard error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

type Config struct {
	Backend string // "memory" or "redis"
	Prefix  string
}

// New selects a cache backend from config. Business logic never branches
// on backend identity; everything goes through Store.
func New(cfg Config, redisClient *redis.Client) Store {
	switch cfg.Backend {
	case "redis":
		return NewRedisStore(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		})
	default:
		return NewMemoryStore(5 * time.Minute)
	}
}
