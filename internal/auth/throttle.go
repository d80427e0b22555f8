package auth

import (
	"sync"
	"time"
)

// LoginThrottle limits login attempts per client IP with a sliding window.
// Disabled instances (development) always allow; localhost is always exempt.
type LoginThrottle struct {
	mu       sync.Mutex
	attempts map[string][]time.Time

	max     int
	window  time.Duration
	enabled bool

	now func() time.Time
}

func NewLoginThrottle(max int, window time.Duration, enabled bool) *LoginThrottle {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginThrottle{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
		enabled:  enabled,
		now:      time.Now,
	}
}

// Allow records an attempt and reports whether it is within the limit.
func (t *LoginThrottle) Allow(ip string) bool {
	if !t.enabled || isLocalhost(ip) {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)

	recent := t.attempts[ip][:0]
	for _, at := range t.attempts[ip] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= t.max {
		t.attempts[ip] = recent
		return false
	}

	t.attempts[ip] = append(recent, now)
	return true
}

func isLocalhost(ip string) bool {
	return ip == "127.0.0.1" || ip == "::1" || ip == "::ffff:127.0.0.1"
}
