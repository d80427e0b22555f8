package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"railperf-gateway/internal/store"
)

func newSubscriptionFixture(t *testing.T) (*store.MemoryKV, http.Handler) {
	t.Helper()

	kv := store.NewMemoryKV()
	h := NewSubscriptionHandler(kv)

	r := chi.NewRouter()
	r.Post("/api/subscribe", h.Subscribe)
	r.Get("/api/subscriptions", h.List)
	r.Delete("/api/subscription/{id}", h.Delete)
	return kv, r
}

func TestSubscribeAndList(t *testing.T) {
	kv, router := newSubscriptionFixture(t)

	rr := postJSON(t, router, "/api/subscribe", map[string]string{
		"email":        "alice@example.com",
		"fromCode":     "PAD",
		"toCode":       "DID",
		"morningStart": "07:00",
		"morningEnd":   "09:00",
		"eveningStart": "17:00",
		"eveningEnd":   "19:00",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("subscribe: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created["id"] == "" {
		t.Fatalf("expected an id, got %v", created)
	}

	// Indexed for the sweep.
	ids, err := kv.SetMembers(context.Background(), "subscriptions:all")
	if err != nil || len(ids) != 1 {
		t.Fatalf("global index wrong: %v %v", ids, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions?email=alice@example.com", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	var subs []Subscription
	if err := json.Unmarshal(rr.Body.Bytes(), &subs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}
	sub := subs[0]
	if sub.Route.From != "PAD" || sub.Route.To != "DID" || !sub.Active {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	if sub.Times.Morning.Start != "07:00" || sub.Times.Evening.End != "19:00" {
		t.Fatalf("windows lost: %+v", sub.Times)
	}
}

func TestSubscribeMissingFields(t *testing.T) {
	_, router := newSubscriptionFixture(t)

	rr := postJSON(t, router, "/api/subscribe", map[string]string{
		"email": "alice@example.com",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListRequiresEmail(t *testing.T) {
	_, router := newSubscriptionFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestDeleteSubscription(t *testing.T) {
	kv, router := newSubscriptionFixture(t)

	rr := postJSON(t, router, "/api/subscribe", map[string]string{
		"email":    "bob@example.com",
		"fromCode": "PAD",
		"toCode":   "RDG",
	})
	var created map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id := created["id"]

	req := httptest.NewRequest(http.MethodDelete, "/api/subscription/"+id, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Record and both indexes are gone.
	if _, ok, _ := kv.Get(context.Background(), "subscription:"+id); ok {
		t.Fatalf("record still present after delete")
	}
	if ids, _ := kv.SetMembers(context.Background(), "subscriptions:all"); len(ids) != 0 {
		t.Fatalf("global index not cleaned: %v", ids)
	}
	if ids, _ := kv.SetMembers(context.Background(), "user_subs:bob@example.com"); len(ids) != 0 {
		t.Fatalf("user index not cleaned: %v", ids)
	}
}

func TestDeleteUnknownSubscription(t *testing.T) {
	_, router := newSubscriptionFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/subscription/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
