package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"railperf-gateway/internal/cache"
	"railperf-gateway/internal/queue"
)

func newSearchFixture(t *testing.T) (*SearchHandler, *cache.MemoryStore, *queue.MemoryQueue, http.Handler) {
	t.Helper()

	store := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { store.Close() })
	q := queue.NewMemoryQueue(16)

	h := NewSearchHandler(store, q)

	r := chi.NewRouter()
	r.Post("/api/servicemetrics", h.ServiceMetrics)
	r.Post("/api/servicedetails", h.ServiceDetails)
	r.Get("/api/job/{id}", h.JobStatus)

	return h, store, q, r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func getJob(t *testing.T, router http.Handler, handle string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/job/"+handle, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not JSON: %v (%s)", err, rr.Body.String())
	}
	return rr, body
}

func TestDispatchMissEnqueues(t *testing.T) {
	_, _, q, router := newSearchFixture(t)

	rr := postJSON(t, router, "/api/servicemetrics", map[string]any{
		"from_date": "2020-01-01",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp DispatchResult
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "queued" {
		t.Fatalf("expected queued, got %q", resp.Status)
	}
	if strings.HasPrefix(resp.JobID, "cached:") {
		t.Fatalf("miss must not return a cached handle")
	}

	depth, _ := q.Depth(context.Background())
	if depth != 1 {
		t.Fatalf("expected 1 waiting job, got %d", depth)
	}

	job, _ := q.Job(context.Background(), resp.JobID)
	if job == nil {
		t.Fatalf("job record missing")
	}
	if job.State != queue.StateWaiting {
		t.Fatalf("fresh job should be waiting, got %s", job.State)
	}
	// Missing to_date defaults to from_date.
	if job.Payload["to_date"] != "2020-01-01" {
		t.Fatalf("to_date not defaulted: %v", job.Payload)
	}
}

func TestDispatchHitShortCircuits(t *testing.T) {
	_, store, q, router := newSearchFixture(t)

	payload := map[string]any{"from_date": "2020-01-01", "to_date": "2020-01-01"}
	key, err := cache.DeriveKey(queue.TypeMetrics, payload)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if err := store.Set(context.Background(), key, []byte(`{"delays":[5]}`), time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	rr := postJSON(t, router, "/api/servicemetrics", payload)

	var resp DispatchResult
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "completed" {
		t.Fatalf("expected completed, got %q", resp.Status)
	}
	if resp.JobID != "cached:"+key {
		t.Fatalf("expected cached handle, got %q", resp.JobID)
	}

	// Short-circuit: no new job.
	depth, _ := q.Depth(context.Background())
	if depth != 0 {
		t.Fatalf("cache hit must not enqueue, depth=%d", depth)
	}
}

func TestDispatchValidation(t *testing.T) {
	_, _, q, router := newSearchFixture(t)

	cases := []struct {
		path string
		body map[string]any
	}{
		{"/api/servicemetrics", map[string]any{}},
		{"/api/servicemetrics", map[string]any{"from_date": "01/01/2020"}},
		{"/api/servicedetails", map[string]any{}},
	}
	for _, tc := range cases {
		rr := postJSON(t, router, tc.path, tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %v: expected 400, got %d", tc.path, tc.body, rr.Code)
		}
	}

	// Invalid requests never reach the queue.
	depth, _ := q.Depth(context.Background())
	if depth != 0 {
		t.Fatalf("validation failures must not enqueue, depth=%d", depth)
	}
}

func TestPollPendingAndTerminalStates(t *testing.T) {
	_, _, q, router := newSearchFixture(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, queue.TypeMetrics, map[string]any{"from_date": "2020-01-01"}, "k")

	_, body := getJob(t, router, id)
	if body["status"] != "pending" || body["state"] != "waiting" {
		t.Fatalf("expected pending/waiting, got %v", body)
	}

	job, _ := q.Dequeue(ctx)
	_, body = getJob(t, router, job.ID)
	if body["status"] != "pending" || body["state"] != "active" {
		t.Fatalf("expected pending/active, got %v", body)
	}

	q.Complete(ctx, id, json.RawMessage(`{"delays":[1]}`))
	_, body = getJob(t, router, id)
	if body["status"] != "completed" {
		t.Fatalf("expected completed, got %v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data == nil || data["delays"] == nil {
		t.Fatalf("expected result data, got %v", body)
	}
}

func TestPollFailedJob(t *testing.T) {
	_, _, q, router := newSearchFixture(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, queue.TypeMetrics, map[string]any{"from_date": "2020-01-01"}, "k")
	q.Dequeue(ctx)
	q.Fail(ctx, id, "Rate Limited")

	rr, body := getJob(t, router, id)
	if rr.Code != http.StatusOK {
		t.Fatalf("failed jobs poll as 200, got %d", rr.Code)
	}
	if body["status"] != "failed" || body["error"] != "Rate Limited" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPollNotFound(t *testing.T) {
	_, _, _, router := newSearchFixture(t)

	rr, body := getJob(t, router, "no-such-job")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body["error"] != "Job not found" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPollCachedHandle(t *testing.T) {
	_, store, _, router := newSearchFixture(t)

	if err := store.Set(context.Background(), "deadbeef", []byte(`{"delays":[9]}`), time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	rr, body := getJob(t, router, "cached:deadbeef")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	data, _ := body["data"].(map[string]any)
	if data == nil {
		t.Fatalf("expected data object, got %v", body)
	}
	if data["_fromCache"] != true {
		t.Fatalf("cached replay must carry _fromCache, got %v", data)
	}
	if data["delays"] == nil {
		t.Fatalf("cached payload lost: %v", data)
	}
}

func TestPollCacheExpired(t *testing.T) {
	_, _, _, router := newSearchFixture(t)

	rr, body := getJob(t, router, "cached:gonekey")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body["error"] != "Cache expired" {
		t.Fatalf("unexpected body %v", body)
	}
}
