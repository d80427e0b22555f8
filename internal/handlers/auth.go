package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"railperf-gateway/internal/auth"
	"railperf-gateway/internal/store"
	"railperf-gateway/pkg/logging/logging"
)

// User is the stored account record. Looked up by email; the id index
// userId:<id> -> email supports session resolution.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuthHandler owns registration, login, logout and identity endpoints.
type AuthHandler struct {
	Store    store.KV
	Sessions *auth.SessionManager
	Throttle *auth.LoginThrottle
}

func NewAuthHandler(kv store.KV, sessions *auth.SessionManager, throttle *auth.LoginThrottle) *AuthHandler {
	return &AuthHandler{
		Store:    kv,
		Sessions: sessions,
		Throttle: throttle,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if !auth.ValidateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, exists, err := h.Store.Get(ctx, userKey(req.Email)); err != nil {
		logger.Error("user lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	} else if exists {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("password hash failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	raw, _ := json.Marshal(user)
	if err := h.Store.Set(ctx, userKey(user.Email), raw, 0); err != nil {
		logger.Error("user save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if err := h.Store.Set(ctx, userIDKey(user.ID), []byte(user.Email), 0); err != nil {
		logger.Error("user index save failed", zap.Error(err))
	}

	if _, err := h.Sessions.Create(ctx, w, user.ID, user.Email); err != nil {
		logger.Error("session create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	logger.Info("user registered", zap.String("email", user.Email))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"user":   userView{ID: user.ID, Email: user.Email, Name: user.Name},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	if !h.Throttle.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	raw, ok, err := h.Store.Get(ctx, userKey(req.Email))
	if err != nil {
		logger.Error("user lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		logger.Error("user decode failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if _, err := h.Sessions.Create(ctx, w, user.ID, user.Email); err != nil {
		logger.Error("session create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	logger.Info("user logged in", zap.String("email", user.Email))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"user":   userView{ID: user.ID, Email: user.Email, Name: user.Name},
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Destroy(r.Context(), w, r); err != nil {
		logging.L(r.Context()).Error("logout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to logout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.Sessions.Get(r.Context(), r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": userView{ID: sess.UserID, Email: sess.Email},
	})
}

func userKey(email string) string {
	return "user:" + email
}

func userIDKey(id string) string {
	return "userId:" + id
}

// clientIP strips the port from RemoteAddr; chi's RealIP middleware has
// already rewritten it from forwarding headers when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
