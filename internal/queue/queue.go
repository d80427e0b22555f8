package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job types understood by the worker.
const (
	TypeMetrics = "metrics"
	TypeDetails = "details"
)

// State is the lifecycle state of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is one unit of deferred upstream work. The payload is schema-free:
// its shape varies by job type and is opaque to the queue.
type Job struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       map[string]any  `json:"payload"`
	CacheKey      string          `json:"cache_key"`
	State         State           `json:"state"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Queue is an ordered, multi-producer/single-consumer job queue.
//
// Enqueue/Job/State serve the HTTP side; Dequeue/Complete/Fail are used only
// by the worker. Dequeue blocks until a job is available or ctx is done, and
// marks the returned job active. Jobs come out in FIFO order.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload map[string]any, cacheKey string) (string, error)
	// Job returns the job record, or nil when no job with that id exists.
	Job(ctx context.Context, id string) (*Job, error)
	State(ctx context.Context, id string) (State, error)

	Dequeue(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, id string, result json.RawMessage) error
	Fail(ctx context.Context, id string, reason string) error

	// Depth reports the number of waiting jobs.
	Depth(ctx context.Context) (int64, error)
}

type Config struct {
	Backend string // "memory" or "redis"
	Prefix  string
	// Retention bounds how long terminal job records stay readable
	// in the redis backend. Zero means the backend default (24h).
	Retention time.Duration
}

// New selects a queue backend from config, mirroring the cache factory.
func New(cfg Config, redisClient *redis.Client) Queue {
	switch cfg.Backend {
	case "redis":
		return NewRedisQueue(redisClient, RedisQueueConfig{
			Prefix:    cfg.Prefix,
			Retention: cfg.Retention,
		})
	default:
		return NewMemoryQueue(0)
	}
}
