package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"railperf-gateway/internal/cache"
	"railperf-gateway/internal/queue"
	"railperf-gateway/pkg/logging/logging"
)

// cachedPrefix marks synthetic handles that point straight at the result
// cache instead of a job record. Only the poller interprets it.
const cachedPrefix = "cached:"

// SearchHandler owns the dispatch (cache-or-enqueue) and poll endpoints.
type SearchHandler struct {
	Cache cache.Store
	Queue queue.Queue
}

func NewSearchHandler(c cache.Store, q queue.Queue) *SearchHandler {
	return &SearchHandler{
		Cache: c,
		Queue: q,
	}
}

// DispatchResult is the handle returned to a client after dispatch.
type DispatchResult struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// ServiceMetrics handles POST /api/servicemetrics.
func (h *SearchHandler) ServiceMetrics(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}

	fromDate, _ := payload["from_date"].(string)
	if fromDate == "" {
		writeError(w, http.StatusBadRequest, "from_date is required")
		return
	}
	if _, err := time.Parse("2006-01-02", fromDate); err != nil {
		writeError(w, http.StatusBadRequest, "from_date must be YYYY-MM-DD")
		return
	}
	if toDate, _ := payload["to_date"].(string); toDate == "" {
		payload["to_date"] = fromDate
	}

	h.dispatch(w, r, queue.TypeMetrics, payload)
}

// ServiceDetails handles POST /api/servicedetails.
func (h *SearchHandler) ServiceDetails(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}

	if rid, _ := payload["rid"].(string); rid == "" {
		writeError(w, http.StatusBadRequest, "rid is required")
		return
	}

	h.dispatch(w, r, queue.TypeDetails, payload)
}

// Dispatch derives the cache key, short-circuits on a cache hit with a
// synthetic handle, and otherwise enqueues a job. Exposed so background
// producers (the subscription sweep) go through the identical path and
// never call upstream directly.
func (h *SearchHandler) Dispatch(ctx context.Context, jobType string, payload map[string]any) (DispatchResult, int, error) {
	logger := logging.L(ctx)

	cacheKey, err := cache.DeriveKey(jobType, payload)
	if err != nil {
		return DispatchResult{}, http.StatusBadRequest, err
	}

	// Fail-open: a cache read error is a miss, never a client-facing error.
	_, hit, cacheErr := h.Cache.Get(ctx, cacheKey)
	if cacheErr != nil {
		logger.Warn("cache_get_error", zap.Error(cacheErr))
	}
	if hit {
		logger.Info("dispatch_cache_hit",
			zap.String("type", jobType),
			zap.String("cache_key", cacheKey),
		)
		return DispatchResult{
			JobID:  cachedPrefix + cacheKey,
			Status: "completed",
		}, http.StatusOK, nil
	}

	id, err := h.Queue.Enqueue(ctx, jobType, payload, cacheKey)
	if err != nil {
		// No fallback path past the queue; surface the failure.
		logger.Error("enqueue_error", zap.Error(err))
		return DispatchResult{}, http.StatusInternalServerError, err
	}

	logger.Info("dispatch_enqueued",
		zap.String("type", jobType),
		zap.String("job_id", id),
		zap.String("cache_key", cacheKey),
	)
	return DispatchResult{JobID: id, Status: "queued"}, http.StatusOK, nil
}

func (h *SearchHandler) dispatch(w http.ResponseWriter, r *http.Request, jobType string, payload map[string]any) {
	resp, status, err := h.Dispatch(r.Context(), jobType, payload)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, status, resp)
}

// JobStatus handles GET /api/job/{id}. Read-only and idempotent; clients
// poll it until they observe a terminal status.
func (h *SearchHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	handle := chi.URLParam(r, "id")

	if strings.HasPrefix(handle, cachedPrefix) {
		cacheKey := strings.TrimPrefix(handle, cachedPrefix)

		raw, hit, err := h.Cache.Get(ctx, cacheKey)
		if err != nil {
			logger.Warn("cache_get_error", zap.Error(err))
		}
		if !hit {
			// Entry evicted since the handle was issued; the client
			// re-submits rather than getting a server error.
			writeError(w, http.StatusNotFound, "Cache expired")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status": "completed",
			"data":   annotateFromCache(ctx, raw),
		})
		return
	}

	job, err := h.Queue.Job(ctx, handle)
	if err != nil {
		logger.Error("job_lookup_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	switch job.State {
	case queue.StateCompleted:
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "completed",
			"data":   job.Result,
		})
	case queue.StateFailed:
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "failed",
			"error":  job.FailureReason,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "pending",
			"state":  job.State,
		})
	}
}

// annotateFromCache marks a cached result so clients can tell replays from
// fresh fetches. Non-object results are passed through untouched.
func annotateFromCache(ctx context.Context, raw []byte) any {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		logging.L(ctx).Warn("cached_result_not_object", zap.Error(err))
		return json.RawMessage(raw)
	}
	data["_fromCache"] = true
	return data
}

func (h *SearchHandler) decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logging.L(r.Context()).Warn("invalid request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, true
}
