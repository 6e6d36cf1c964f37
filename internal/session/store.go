package session

import (
	"sync"
	"time"

	"github.com/wolfman30/line-gemini-relay/internal/knowledge"
)

// Store maps user ids to their sessions.
type Store interface {
	GetOrCreate(userID string) (*Session, bool)
	Get(userID string) (*Session, bool)
	Touch(userID string, at time.Time)
	Remove(userID string)
	Sweep(maxIdle time.Duration) int
	Len() int
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source used for creation and sweeps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MemoryStore is a mutex-protected in-process session store. Sessions are lost on restart.
type MemoryStore struct {
	context knowledge.Provider
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates a store that seeds new sessions from the context provider.
func NewMemoryStore(provider knowledge.Provider, opts ...Option) *MemoryStore {
	if provider == nil {
		panic("session: context provider cannot be nil")
	}
	s := &MemoryStore{
		context:  provider,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the user's session, creating a freshly seeded one when absent.
// The boolean reports whether a new session was created.
func (s *MemoryStore) GetOrCreate(userID string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess, false
	}
	sess = newSession(userID, s.context.Context(), s.now())
	s.sessions[userID] = sess
	return sess, true
}

// Get returns the user's session without creating one.
func (s *MemoryStore) Get(userID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Touch moves the session's last access forward to at. Earlier times are ignored.
func (s *MemoryStore) Touch(userID string, at time.Time) {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		sess.touch(at)
	}
}

// Remove deletes the user's session. Removing an unknown user is a no-op.
func (s *MemoryStore) Remove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Sweep evicts every session whose last access is older than maxIdle and returns how many were removed.
func (s *MemoryStore) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, sess := range s.sessions {
		if sess.idleSince(cutoff) {
			delete(s.sessions, userID)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
