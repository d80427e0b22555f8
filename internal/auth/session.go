package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"railperf-gateway/internal/store"
)

const (
	sessionCookie    = "sid"
	sessionKeyPrefix = "session:"

	// DefaultSessionTTL matches the 7-day login lifetime of the web UI.
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// Session is the authenticated identity attached to a browser cookie.
type Session struct {
	ID     string `json:"-"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// SessionManager stores sessions in the app KV store and manages the
// session cookie.
type SessionManager struct {
	store  store.KV
	ttl    time.Duration
	secure bool
}

func NewSessionManager(kv store.KV, ttl time.Duration, secure bool) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		store:  kv,
		ttl:    ttl,
		secure: secure,
	}
}

// Create starts a session for the user and sets the cookie on the response.
func (m *SessionManager) Create(ctx context.Context, w http.ResponseWriter, userID, email string) (*Session, error) {
	sess := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Email:  email,
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, sessionKeyPrefix+sess.ID, raw, m.ttl); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	http.SetCookie(w, m.cookie(sess.ID, m.ttl))
	return sess, nil
}

// Get resolves the session referenced by the request cookie, if any.
func (m *SessionManager) Get(ctx context.Context, r *http.Request) (*Session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}

	raw, ok, err := m.store.Get(ctx, sessionKeyPrefix+c.Value)
	if err != nil || !ok {
		return nil, false
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false
	}
	sess.ID = c.Value
	return &sess, true
}

// Destroy deletes the session record and clears the cookie.
func (m *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(sessionCookie)
	if err == nil && c.Value != "" {
		if err := m.store.Delete(ctx, sessionKeyPrefix+c.Value); err != nil {
			return err
		}
	}

	http.SetCookie(w, m.cookie("", -time.Hour))
	return nil
}

func (m *SessionManager) cookie(value string, ttl time.Duration) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if m.secure {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: sameSite,
	}
}
