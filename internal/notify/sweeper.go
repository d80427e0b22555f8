// Package notify periodically walks active subscriptions and pre-fetches
// delay metrics for routes inside their watch windows. Fetches go through
// the dispatcher's cache-or-enqueue path, so the sweep shares the cache and
// the single rate-limited worker with interactive clients and never talks
// to the upstream API on its own.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"railperf-gateway/internal/handlers"
	"railperf-gateway/internal/queue"
	"railperf-gateway/internal/store"
)

const DefaultSchedule = "@every 5m"

// Dispatcher is the cache-or-enqueue entry point; satisfied by
// handlers.SearchHandler.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType string, payload map[string]any) (handlers.DispatchResult, int, error)
}

// Sweeper runs the subscription sweep on a cron schedule.
type Sweeper struct {
	store      store.KV
	dispatcher Dispatcher
	schedule   string
	logger     *zap.Logger
	cron       *cron.Cron

	now func() time.Time
}

func NewSweeper(kv store.KV, d Dispatcher, schedule string, logger *zap.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:      kv,
		dispatcher: d,
		schedule:   schedule,
		logger:     logger.Named("sweeper"),
		now:        time.Now,
	}
}

// Start schedules the sweep. The returned error only covers schedule parsing.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep dispatches a metrics request for every active subscription whose
// watch window covers the current time.
func (s *Sweeper) Sweep(ctx context.Context) {
	ids, err := s.store.SetMembers(ctx, "subscriptions:all")
	if err != nil {
		s.logger.Error("subscription scan failed", zap.Error(err))
		return
	}

	now := s.now()
	today := now.Format("2006-01-02")
	dispatched := 0

	for _, id := range ids {
		raw, ok, err := s.store.Get(ctx, "subscription:"+id)
		if err != nil || !ok {
			continue
		}

		var sub handlers.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			s.logger.Warn("subscription decode failed", zap.String("id", id), zap.Error(err))
			continue
		}
		if !sub.Active {
			continue
		}
		if !inWindow(now, sub.Times.Morning) && !inWindow(now, sub.Times.Evening) {
			continue
		}

		payload := map[string]any{
			"from_loc":  sub.Route.From,
			"to_loc":    sub.Route.To,
			"from_date": today,
			"to_date":   today,
		}

		res, _, err := s.dispatcher.Dispatch(ctx, queue.TypeMetrics, payload)
		if err != nil {
			s.logger.Warn("sweep dispatch failed",
				zap.String("subscription", id),
				zap.Error(err),
			)
			continue
		}
		dispatched++
		s.logger.Debug("sweep dispatched",
			zap.String("subscription", id),
			zap.String("handle", res.JobID),
			zap.String("status", res.Status),
		)
	}

	s.logger.Info("sweep finished",
		zap.Int("subscriptions", len(ids)),
		zap.Int("dispatched", dispatched),
	)
}

// inWindow reports whether now falls inside an HH:MM..HH:MM window.
// Empty or malformed bounds disable the window.
func inWindow(now time.Time, w handlers.TimeWindow) bool {
	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	return minutes >= startMin && minutes <= endMin
}
