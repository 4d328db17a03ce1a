package memory

import (
	"errors"
	"sync"
	"time"

	"campus-assistant-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

var ErrNilSession = errors.New("session entry is nil")

// SessionRepository keeps per-session conversation memory in process.
// Every operation runs as a single critical section under mu, including
// mutations of the entries it hands out, so concurrent appends for the same
// session never overwrite each other.
type SessionRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
	now   func() time.Time
}

func NewSessionRepository() *SessionRepository {
	return NewSessionRepositoryWithClock(time.Now)
}

// NewSessionRepositoryWithClock lets tests control lastAccess timestamps.
func NewSessionRepositoryWithClock(now func() time.Time) *SessionRepository {
	// Expiry is driven by EvictExpired, so the cache itself never expires
	// items and runs no janitor.
	return &SessionRepository{
		cache: cache.New(cache.NoExpiration, 0),
		now:   now,
	}
}

// GetOrCreate returns the stored entry for sessionID, creating it on first
// use. An empty id yields a fresh transient entry that is never stored.
func (r *SessionRepository) GetOrCreate(sessionID string) *store.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if sessionID == "" {
		return store.NewTransientSession(now)
	}

	if x, found := r.cache.Get(sessionID); found {
		session := x.(*store.Session)
		session.LastAccess = now
		return session
	}

	session := &store.Session{ID: sessionID, LastAccess: now}
	r.cache.Set(sessionID, session, cache.NoExpiration)
	return session
}

// Get looks up a stored entry without touching it.
func (r *SessionRepository) Get(sessionID string) (*store.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, found := r.cache.Get(sessionID); found {
		return x.(*store.Session), true
	}
	return nil, false
}

// LoadHistory renders the entry's turns; empty when there are none.
func (r *SessionRepository) LoadHistory(session *store.Session) string {
	if session == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return session.Render()
}

// AppendTurn records one exchange and refreshes lastAccess.
func (r *SessionRepository) AppendTurn(session *store.Session, userText, assistantText string) error {
	if session == nil {
		return ErrNilSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	session.AppendExchange(userText, assistantText, r.now())
	return nil
}

// Clear removes a stored entry and reports whether one existed.
func (r *SessionRepository) Clear(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.cache.Get(sessionID); !found {
		return false
	}
	r.cache.Delete(sessionID)
	return true
}

// EvictExpired drops every entry idle for longer than ttl and returns how
// many were removed. ttl <= 0 disables expiry.
func (r *SessionRepository) EvictExpired(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, item := range r.cache.Items() {
		session, ok := item.Object.(*store.Session)
		if !ok || now.Sub(session.LastAccess) > ttl {
			r.cache.Delete(id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions.
func (r *SessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cache.ItemCount()
}
