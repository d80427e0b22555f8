package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"railperf-gateway/internal/store"
	"railperf-gateway/pkg/logging/logging"
)

const (
	subscriptionKeyPrefix = "subscription:"
	allSubscriptionsKey   = "subscriptions:all"
	userSubsKeyPrefix     = "user_subs:"
)

// TimeWindow is an HH:MM..HH:MM watch window.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Subscription is a watched route with morning and evening windows.
type Subscription struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Route struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"route"`
	Times struct {
		Morning TimeWindow `json:"morning"`
		Evening TimeWindow `json:"evening"`
	} `json:"times"`
	CreatedAt time.Time `json:"createdAt"`
	Active    bool      `json:"active"`
}

// SubscriptionHandler owns the subscription CRUD endpoints.
type SubscriptionHandler struct {
	Store store.KV
}

func NewSubscriptionHandler(kv store.KV) *SubscriptionHandler {
	return &SubscriptionHandler{Store: kv}
}

type subscribeRequest struct {
	Email        string `json:"email"`
	FromCode     string `json:"fromCode"`
	ToCode       string `json:"toCode"`
	MorningStart string `json:"morningStart"`
	MorningEnd   string `json:"morningEnd"`
	EveningStart string `json:"eveningStart"`
	EveningEnd   string `json:"eveningEnd"`
}

// Subscribe handles POST /api/subscribe.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.FromCode == "" || req.ToCode == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	sub := Subscription{
		ID:        uuid.NewString(),
		Email:     req.Email,
		CreatedAt: time.Now(),
		Active:    true,
	}
	sub.Route.From = req.FromCode
	sub.Route.To = req.ToCode
	sub.Times.Morning = TimeWindow{Start: req.MorningStart, End: req.MorningEnd}
	sub.Times.Evening = TimeWindow{Start: req.EveningStart, End: req.EveningEnd}

	raw, _ := json.Marshal(sub)
	if err := h.Store.Set(ctx, subscriptionKeyPrefix+sub.ID, raw, 0); err != nil {
		logger.Error("subscription save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if err := h.Store.SetAdd(ctx, allSubscriptionsKey, sub.ID); err != nil {
		logger.Error("subscription index failed", zap.Error(err))
	}
	if err := h.Store.SetAdd(ctx, userSubsKeyPrefix+sub.Email, sub.ID); err != nil {
		logger.Error("user subscription index failed", zap.Error(err))
	}

	logger.Info("subscription created",
		zap.String("email", sub.Email),
		zap.String("from", sub.Route.From),
		zap.String("to", sub.Route.To),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "id": sub.ID})
}

// List handles GET /api/subscriptions?email=.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "Email required")
		return
	}

	ids, err := h.Store.SetMembers(ctx, userSubsKeyPrefix+email)
	if err != nil {
		logging.L(ctx).Error("subscription list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch subscriptions")
		return
	}

	subs := make([]Subscription, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := h.Store.Get(ctx, subscriptionKeyPrefix+id)
		if err != nil || !ok {
			continue
		}
		var sub Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			continue
		}
		subs = append(subs, sub)
	}

	writeJSON(w, http.StatusOK, subs)
}

type deleteRequest struct {
	Email string `json:"email"`
}

// Delete handles DELETE /api/subscription/{id}.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	id := chi.URLParam(r, "id")

	raw, ok, err := h.Store.Get(ctx, subscriptionKeyPrefix+id)
	if err != nil {
		logger.Error("subscription lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	var sub Subscription
	_ = json.Unmarshal(raw, &sub)

	var req deleteRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	email := req.Email
	if email == "" {
		email = sub.Email
	}

	if err := h.Store.Delete(ctx, subscriptionKeyPrefix+id); err != nil {
		logger.Error("subscription delete failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete")
		return
	}
	_ = h.Store.SetRemove(ctx, allSubscriptionsKey, id)
	if email != "" {
		_ = h.Store.SetRemove(ctx, userSubsKeyPrefix+email, id)
	}

	logger.Info("subscription deleted", zap.String("id", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
