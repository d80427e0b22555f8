package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestMemoryQueue_EnqueueAndLookup(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	payload := map[string]any{"from_date": "2020-01-01"}
	id, err := q.Enqueue(ctx, TypeMetrics, payload, "abc123")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty job id")
	}

	job, err := q.Job(ctx, id)
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if job == nil {
		t.Fatalf("expected job record")
	}
	if job.Type != TypeMetrics || job.CacheKey != "abc123" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.State != StateWaiting {
		t.Fatalf("new job should be waiting, got %s", job.State)
	}

	state, err := q.State(ctx, id)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state != StateWaiting {
		t.Fatalf("expected waiting, got %s", state)
	}
}

func TestMemoryQueue_JobAbsent(t *testing.T) {
	q := NewMemoryQueue(8)

	job, err := q.Job(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for absent job, got %+v", job)
	}
}

func TestMemoryQueue_FIFOAndStates(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue(ctx, TypeDetails, map[string]any{"rid": i}, "k")
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, id)
	}

	for i := 0; i < 3; i++ {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if job.ID != ids[i] {
			t.Fatalf("expected FIFO order: want %s at position %d, got %s", ids[i], i, job.ID)
		}
		if job.State != StateActive {
			t.Fatalf("dequeued job should be active, got %s", job.State)
		}
	}

	if err := q.Complete(ctx, ids[0], json.RawMessage(`{"ok":true}`)); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := q.Fail(ctx, ids[1], "Rate Limited"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	done, _ := q.Job(ctx, ids[0])
	if done.State != StateCompleted || string(done.Result) != `{"ok":true}` {
		t.Fatalf("unexpected completed job: %+v", done)
	}
	if !done.State.Terminal() {
		t.Fatalf("completed should be terminal")
	}

	failed, _ := q.Job(ctx, ids[1])
	if failed.State != StateFailed || failed.FailureReason != "Rate Limited" {
		t.Fatalf("unexpected failed job: %+v", failed)
	}
}

func TestMemoryQueue_DequeueBlocksUntilCancel(t *testing.T) {
	q := NewMemoryQueue(8)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatalf("expected context error from empty queue")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("Dequeue returned before cancellation")
	}
}

func TestMemoryQueue_Depth(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := q.Enqueue(ctx, TypeMetrics, nil, "k"); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 2 {
		t.Fatalf("expected depth 2, got %d", depth)
	}
}

func TestMemoryQueue_Full(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, TypeMetrics, nil, "k"); err != nil {
		t.Fatalf("first Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue(ctx, TypeMetrics, nil, "k"); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
