package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"railperf-gateway/internal/handlers"
	"railperf-gateway/internal/store"
)

type recordingDispatcher struct {
	calls []map[string]any
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, jobType string, payload map[string]any) (handlers.DispatchResult, int, error) {
	if d.err != nil {
		return handlers.DispatchResult{}, 500, d.err
	}
	d.calls = append(d.calls, payload)
	return handlers.DispatchResult{JobID: "job-1", Status: "queued"}, 200, nil
}

func addSubscription(t *testing.T, kv store.KV, id string, active bool, from, to string, morning handlers.TimeWindow) {
	t.Helper()

	var sub handlers.Subscription
	sub.ID = id
	sub.Email = "a@b.co"
	sub.Active = active
	sub.Route.From = from
	sub.Route.To = to
	sub.Times.Morning = morning

	raw, _ := json.Marshal(sub)
	ctx := context.Background()
	if err := kv.Set(ctx, "subscription:"+id, raw, 0); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	if err := kv.SetAdd(ctx, "subscriptions:all", id); err != nil {
		t.Fatalf("seed index: %v", err)
	}
}

func TestSweepDispatchesActiveInWindow(t *testing.T) {
	kv := store.NewMemoryKV()
	d := &recordingDispatcher{}
	s := NewSweeper(kv, d, DefaultSchedule, nil)

	// Freeze time at 08:30.
	s.now = func() time.Time {
		return time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC)
	}

	addSubscription(t, kv, "in-window", true, "PAD", "DID", handlers.TimeWindow{Start: "08:00", End: "09:00"})
	addSubscription(t, kv, "out-of-window", true, "RDG", "PAD", handlers.TimeWindow{Start: "17:00", End: "18:00"})
	addSubscription(t, kv, "inactive", false, "WAT", "PAD", handlers.TimeWindow{Start: "08:00", End: "09:00"})

	s.Sweep(context.Background())

	if len(d.calls) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(d.calls))
	}
	payload := d.calls[0]
	if payload["from_loc"] != "PAD" || payload["to_loc"] != "DID" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["from_date"] != "2024-03-04" || payload["to_date"] != "2024-03-04" {
		t.Fatalf("expected today's date in payload, got %v", payload)
	}
}

func TestSweepSurvivesDispatchErrors(t *testing.T) {
	kv := store.NewMemoryKV()
	d := &recordingDispatcher{err: fmt.Errorf("queue down")}
	s := NewSweeper(kv, d, DefaultSchedule, nil)
	s.now = func() time.Time {
		return time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC)
	}

	addSubscription(t, kv, "one", true, "PAD", "DID", handlers.TimeWindow{Start: "08:00", End: "09:00"})

	// Must not panic.
	s.Sweep(context.Background())
}

func TestInWindow(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC)
	}
	w := handlers.TimeWindow{Start: "07:30", End: "09:00"}

	if !inWindow(at(7, 30), w) || !inWindow(at(9, 0), w) {
		t.Fatalf("window bounds should be inclusive")
	}
	if inWindow(at(7, 29), w) || inWindow(at(9, 1), w) {
		t.Fatalf("times outside window accepted")
	}
	if inWindow(at(8, 0), handlers.TimeWindow{}) {
		t.Fatalf("empty window should never match")
	}
}
