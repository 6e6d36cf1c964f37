package session

import (
	"sync"
	"time"

	"github.com/wolfman30/line-gemini-relay/internal/llm"
)

// Session is one user's ongoing conversation.
//
// Field access is guarded by mu. exchangeMu is held by the relay for the whole
// of one message exchange so a user's messages are answered one at a time; it
// is never taken by the store, so sweeps do not wait on in-flight model calls.
type Session struct {
	userID    string
	createdAt time.Time

	mu         sync.RWMutex
	history    []llm.Turn
	lastAccess time.Time

	exchangeMu sync.Mutex
}

func newSession(userID, businessContext string, now time.Time) *Session {
	return &Session{
		userID:     userID,
		createdAt:  now,
		history:    []llm.Turn{{Role: llm.RoleUser, Text: businessContext}},
		lastAccess: now,
	}
}

// UserID returns the key the session is stored under.
func (s *Session) UserID() string {
	return s.userID
}

// CreatedAt reports when the session was seeded.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// History returns a copy of the conversation turns.
func (s *Session) History() []llm.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// LastAccess returns the last time the session took part in a successful exchange.
func (s *Session) LastAccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}

// AppendExchange records one question and the model's answer.
func (s *Session) AppendExchange(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		llm.Turn{Role: llm.RoleUser, Text: question},
		llm.Turn{Role: llm.RoleModel, Text: answer},
	)
}

// Lock serializes message exchanges for this user.
func (s *Session) Lock() {
	s.exchangeMu.Lock()
}

// Unlock releases the exchange lock taken by Lock.
func (s *Session) Unlock() {
	s.exchangeMu.Unlock()
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.lastAccess) {
		s.lastAccess = at
	}
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess.Before(cutoff)
}
