package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Enqueue when the in-memory queue backlog
// is exhausted. The redis backend has no such bound.
var ErrQueueFull = errors.New("queue full")

// MemoryQueue is the in-process queue backend used in development and tests.
// A buffered channel carries job ids in FIFO order; the job records live in
// a map guarded by a mutex.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	pending chan string
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		jobs:    make(map[string]*Job),
		pending: make(chan string, capacity),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, jobType string, payload map[string]any, cacheKey string) (string, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   payload,
		CacheKey:  cacheKey,
		State:     StateWaiting,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	select {
	case q.pending <- job.ID:
		return job.ID, nil
	default:
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return "", ErrQueueFull
	}
}

func (q *MemoryQueue) Job(_ context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, nil
	}
	// Copy so callers never see concurrent worker updates mid-flight.
	cp := *job
	return &cp, nil
}

func (q *MemoryQueue) State(ctx context.Context, id string) (State, error) {
	job, err := q.Job(ctx, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("job %s not found", id)
	}
	return job.State, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case id := <-q.pending:
			q.mu.Lock()
			job, ok := q.jobs[id]
			if !ok {
				q.mu.Unlock()
				continue
			}
			job.State = StateActive
			cp := *job
			q.mu.Unlock()
			return &cp, nil
		}
	}
}

func (q *MemoryQueue) Complete(_ context.Context, id string, result json.RawMessage) error {
	return q.finish(id, StateCompleted, result, "")
}

func (q *MemoryQueue) Fail(_ context.Context, id string, reason string) error {
	return q.finish(id, StateFailed, nil, reason)
}

func (q *MemoryQueue) finish(id string, state State, result json.RawMessage, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.State = state
	job.Result = result
	job.FailureReason = reason
	return nil
}

func (q *MemoryQueue) Depth(_ context.Context) (int64, error) {
	return int64(len(q.pending)), nil
}
