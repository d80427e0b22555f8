package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"railperf-gateway/internal/store"
)

func TestPasswordHashRoundtrip(t *testing.T) {
	hash, err := HashPassword("tr4inspotter")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "tr4inspotter" {
		t.Fatalf("hash must not equal plaintext")
	}

	if !CheckPassword("tr4inspotter", hash) {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("wrong password accepted")
	}
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"short1", false},
		{"onlyletters", false},
		{"12345678", false},
		{"valid1password", true},
	}

	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if tc.ok && err != nil {
			t.Fatalf("password %q rejected: %v", tc.password, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("password %q should be rejected", tc.password)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	if !ValidateEmail("a@b.co") {
		t.Fatalf("valid email rejected")
	}
	for _, bad := range []string{"", "a", "a@b", "a b@c.d"} {
		if ValidateEmail(bad) {
			t.Fatalf("invalid email %q accepted", bad)
		}
	}
}

func TestLoginThrottle(t *testing.T) {
	th := NewLoginThrottle(3, time.Minute, true)

	for i := 0; i < 3; i++ {
		if !th.Allow("203.0.113.9") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if th.Allow("203.0.113.9") {
		t.Fatalf("fourth attempt should be blocked")
	}

	// Other IPs are independent, localhost is exempt.
	if !th.Allow("203.0.113.10") {
		t.Fatalf("different ip should be allowed")
	}
	for i := 0; i < 10; i++ {
		if !th.Allow("127.0.0.1") {
			t.Fatalf("localhost must never be throttled")
		}
	}
}

func TestLoginThrottleDisabled(t *testing.T) {
	th := NewLoginThrottle(1, time.Minute, false)
	for i := 0; i < 5; i++ {
		if !th.Allow("203.0.113.9") {
			t.Fatalf("disabled throttle must allow everything")
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	kv := store.NewMemoryKV()
	m := NewSessionManager(kv, time.Hour, false)
	ctx := context.Background()

	rr := httptest.NewRecorder()
	sess, err := m.Create(ctx, rr, "user-1", "a@b.co")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatalf("expected session id")
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "sid" {
		t.Fatalf("expected sid cookie, got %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatalf("session cookie must be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookies[0])

	got, ok := m.Get(ctx, req)
	if !ok {
		t.Fatalf("session not found")
	}
	if got.UserID != "user-1" || got.Email != "a@b.co" {
		t.Fatalf("unexpected session %+v", got)
	}

	rr2 := httptest.NewRecorder()
	if err := m.Destroy(ctx, rr2, req); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, ok := m.Get(ctx, req); ok {
		t.Fatalf("session should be gone after destroy")
	}
}

func TestSessionMissingCookie(t *testing.T) {
	m := NewSessionManager(store.NewMemoryKV(), time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := m.Get(context.Background(), req); ok {
		t.Fatalf("expected no session without cookie")
	}
}
