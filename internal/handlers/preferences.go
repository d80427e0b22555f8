package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"railperf-gateway/internal/auth"
	"railperf-gateway/internal/store"
	"railperf-gateway/pkg/logging/logging"
)

const userPrefsKeyPrefix = "user_prefs:"

// PreferencesHandler stores per-user dashboard preferences. The payload is
// opaque to the server; it round-trips whatever the UI saves.
type PreferencesHandler struct {
	Store    store.KV
	Sessions *auth.SessionManager
}

func NewPreferencesHandler(kv store.KV, sessions *auth.SessionManager) *PreferencesHandler {
	return &PreferencesHandler{Store: kv, Sessions: sessions}
}

// Save handles POST /api/user/preferences.
func (h *PreferencesHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := h.Sessions.Get(ctx, r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var prefs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	raw, _ := json.Marshal(prefs)
	if err := h.Store.Set(ctx, userPrefsKeyPrefix+sess.Email, raw, 0); err != nil {
		logging.L(ctx).Error("preferences save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// Load handles GET /api/user/preferences.
func (h *PreferencesHandler) Load(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := h.Sessions.Get(ctx, r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	raw, found, err := h.Store.Get(ctx, userPrefsKeyPrefix+sess.Email)
	if err != nil {
		logging.L(ctx).Error("preferences load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}
