package handlers

import (
	"strings"
	"sync"
	"time"
)

// RateLimiter gates mutating requests per caller key (guest session id or
// user id).
type RateLimiter interface {
	Allow(key string) bool
}

// NewSimpleRateLimiter returns a fixed-window in-memory limiter, or nil when
// limiting is disabled. A nil RateLimiter always allows.
func NewSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]*callWindow),
	}
}

type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]*callWindow
	ticks   int
}

type callWindow struct {
	openedAt time.Time
	calls    int
}

func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ticks++
	if l.ticks%256 == 0 {
		l.sweep(now)
	}

	w := l.windows[key]
	if w == nil || now.Sub(w.openedAt) >= l.window {
		l.windows[key] = &callWindow{openedAt: now, calls: 1}
		return true
	}
	if w.calls >= l.limit {
		return false
	}
	w.calls++
	return true
}

// sweep drops windows that have already elapsed so idle keys do not
// accumulate. Caller holds the mutex.
func (l *fixedWindowLimiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.openedAt) >= l.window {
			delete(l.windows, key)
		}
	}
}
