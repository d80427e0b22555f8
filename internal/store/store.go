// Package store is the application key-value store backing users, sessions,
// subscriptions and preferences. It is deliberately separate from the result
// cache: the cache may be flushed at will, this store holds durable records.
package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is a key-value store with set membership operations.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	SetAdd(ctx context.Context, key, member string) error
	SetRemove(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

type Config struct {
	Backend string // "memory" or "redis"
	Prefix  string
}

// New selects a store backend from config.
func New(cfg Config, redisClient *redis.Client) KV {
	switch cfg.Backend {
	case "redis":
		return NewRedisKV(redisClient, cfg.Prefix)
	default:
		return NewMemoryKV()
	}
}
