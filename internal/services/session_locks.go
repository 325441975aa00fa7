package services

import (
	"strings"
	"sync"
)

// SessionLocks tracks sessions whose guest cart is frozen by an in-flight
// login sync. The guest cart service rejects mutations for a locked session so
// the merge never operates on a moving snapshot.
type SessionLocks struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewSessionLocks constructs an empty lock registry.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{active: make(map[string]struct{})}
}

// Acquire marks the session as syncing. It returns false when a sync already
// owns the session.
func (l *SessionLocks) Acquire(sessionID string) bool {
	if l == nil {
		return true
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.active[id]; taken {
		return false
	}
	l.active[id] = struct{}{}
	return true
}

// Release clears the syncing mark for the session.
func (l *SessionLocks) Release(sessionID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, strings.TrimSpace(sessionID))
}

// Active reports whether a sync currently owns the session.
func (l *SessionLocks) Active(sessionID string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, taken := l.active[strings.TrimSpace(sessionID)]
	return taken
}
