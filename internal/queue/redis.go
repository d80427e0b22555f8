package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix    = "railperf"
	defaultRetention = 24 * time.Hour

	// How long each BRPOP blocks before re-checking ctx.
	popTimeout = time.Second
)

// RedisQueue implements Queue on Redis: a list carries waiting job ids in
// FIFO order (LPUSH/BRPOP) and each job record is a JSON value with a
// retention TTL, so terminal jobs stay readable for a while and then
// disappear on the backend's own schedule.
type RedisQueue struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

type RedisQueueConfig struct {
	Prefix    string
	Retention time.Duration
}

func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig) *RedisQueue {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	return &RedisQueue{
		client:    client,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
	}
}

func (q *RedisQueue) listKey() string {
	return q.prefix + ":queue"
}

func (q *RedisQueue) jobKey(id string) string {
	return q.prefix + ":job:" + id
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, payload map[string]any, cacheKey string) (string, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   payload,
		CacheKey:  cacheKey,
		State:     StateWaiting,
		CreatedAt: time.Now(),
	}

	if err := q.save(ctx, job); err != nil {
		return "", err
	}

	if err := q.client.LPush(ctx, q.listKey(), job.ID).Err(); err != nil {
		return "", fmt.Errorf("redis lpush failed: %w", err)
	}

	return job.ID, nil
}

func (q *RedisQueue) Job(ctx context.Context, id string) (*Job, error) {
	raw, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get job failed: %w", err)
	}

	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *RedisQueue) State(ctx context.Context, id string) (State, error) {
	job, err := q.Job(ctx, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("job %s not found", id)
	}
	return job.State, nil
}

// Dequeue blocks on BRPOP in short slices so ctx cancellation is honored,
// then marks the popped job active.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.client.BRPop(ctx, popTimeout, q.listKey()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis brpop failed: %w", err)
		}
		if len(res) != 2 {
			return nil, fmt.Errorf("redis brpop returned %d values", len(res))
		}

		job, err := q.Job(ctx, res[1])
		if err != nil {
			return nil, err
		}
		if job == nil {
			// Record evicted between push and pop; skip the stale id.
			continue
		}

		job.State = StateActive
		if err := q.save(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
}

func (q *RedisQueue) Complete(ctx context.Context, id string, result json.RawMessage) error {
	return q.finish(ctx, id, StateCompleted, result, "")
}

func (q *RedisQueue) Fail(ctx context.Context, id string, reason string) error {
	return q.finish(ctx, id, StateFailed, nil, reason)
}

func (q *RedisQueue) finish(ctx context.Context, id string, state State, result json.RawMessage, reason string) error {
	job, err := q.Job(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}

	job.State = state
	job.Result = result
	job.FailureReason = reason
	return q.save(ctx, job)
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.listKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen failed: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) save(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := q.client.Set(ctx, q.jobKey(job.ID), raw, q.retention).Err(); err != nil {
		return fmt.Errorf("redis set job failed: %w", err)
	}
	return nil
}
