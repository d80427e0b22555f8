package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"railperf-gateway/internal/cache"
	"railperf-gateway/internal/metrics"
	"railperf-gateway/internal/queue"
	"railperf-gateway/internal/upstream"
)

const (
	// DefaultInterval is the minimum spacing between upstream call starts.
	// The HSP API tolerates roughly one request per 1.5 seconds.
	DefaultInterval = 1500 * time.Millisecond

	// DefaultCacheTTL is how long cacheable results stay in the result store.
	DefaultCacheTTL = 24 * time.Hour

	failureUnknownType = "unknown job type"
	failureRateLimited = "Rate Limited"
)

// Worker is the single logical consumer of the job queue. It drains jobs one
// at a time, never starts two upstream calls closer together than the limiter
// interval, and writes results back to the job record and, when the policy
// allows, the result cache.
type Worker struct {
	queue    queue.Queue
	cache    cache.Store
	client   upstream.Client
	limiter  *Limiter
	cacheTTL time.Duration
	logger   *zap.Logger

	now func() time.Time
}

type Config struct {
	Interval time.Duration
	CacheTTL time.Duration
}

func New(q queue.Queue, c cache.Store, client upstream.Client, cfg Config, logger *zap.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		queue:    q,
		cache:    c,
		client:   client,
		limiter:  NewLimiter(cfg.Interval),
		cacheTTL: cfg.CacheTTL,
		logger:   logger.Named("worker"),
		now:      time.Now,
	}
}

// Run drains the queue until ctx is cancelled. Dequeue is the sole blocking
// point of the loop; each dequeued job is processed to a terminal state
// before the next one is picked up.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")

	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.Info("worker stopped")
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopped")
				return
			case <-time.After(time.Second):
			}
			continue
		}

		w.Process(ctx, job)

		if depth, err := w.queue.Depth(ctx); err == nil {
			metrics.QueueDepth.Set(float64(depth))
		}
	}
}

// Process runs a single job to a terminal state.
func (w *Worker) Process(ctx context.Context, job *queue.Job) {
	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type),
	)
	logger.Info("processing job")

	var call func(context.Context, map[string]any) (json.RawMessage, error)
	switch job.Type {
	case queue.TypeMetrics:
		call = w.client.ServiceMetrics
	case queue.TypeDetails:
		call = w.client.ServiceDetails
	default:
		// Producer defect, not a transient condition.
		w.fail(ctx, logger, job, failureUnknownType)
		return
	}

	if err := w.limiter.Acquire(ctx); err != nil {
		// Shutdown while waiting for the slot. The job was marked active on
		// dequeue; leave it for the queue's durability policy to surface.
		logger.Warn("slot acquisition aborted", zap.Error(err))
		return
	}

	start := time.Now()
	result, err := call(ctx, job.Payload)
	if err != nil {
		w.fail(ctx, logger, job, failureReason(err))
		return
	}

	if w.cacheable(job) {
		if cacheErr := w.cache.Set(ctx, job.CacheKey, result, w.cacheTTL); cacheErr != nil {
			// The job still completes; the next identical request re-fetches.
			logger.Warn("cache write failed", zap.Error(cacheErr))
		}
	}

	if err := w.queue.Complete(ctx, job.ID, result); err != nil {
		logger.Error("mark completed failed", zap.Error(err))
		return
	}

	metrics.JobsProcessedTotal.WithLabelValues(job.Type, "completed").Inc()
	logger.Info("job completed",
		zap.Duration("upstream_duration", time.Since(start)),
		zap.Int("result_bytes", len(result)),
	)
}

func (w *Worker) fail(ctx context.Context, logger *zap.Logger, job *queue.Job, reason string) {
	if err := w.queue.Fail(ctx, job.ID, reason); err != nil {
		logger.Error("mark failed failed", zap.Error(err))
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues(job.Type, "failed").Inc()
	logger.Warn("job failed", zap.String("reason", reason))
}

// cacheable applies the cache-write policy: details results are immutable
// once the service has run; metrics results are only stable for dates
// strictly in the past, since same-day data may still change.
func (w *Worker) cacheable(job *queue.Job) bool {
	switch job.Type {
	case queue.TypeDetails:
		return true
	case queue.TypeMetrics:
		fromDate, ok := job.Payload["from_date"].(string)
		if !ok || fromDate == "" {
			return false
		}
		today := w.now().UTC().Format("2006-01-02")
		return fromDate < today
	default:
		return false
	}
}

func failureReason(err error) string {
	if errors.Is(err, upstream.ErrRateLimited) {
		return failureRateLimited
	}
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Error()
	}
	return fmt.Sprintf("upstream call failed: %v", err)
}
