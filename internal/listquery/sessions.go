package listquery

import (
	"sync"
	"time"
)

// SessionStore holds the live query sessions, one per subject and screen.
// Sessions that have not been touched within maxIdle are swept out when the
// store reaches capacity, so an abandoned browser tab cannot pin state
// forever.
type SessionStore struct {
	mu         sync.Mutex
	sessions   map[string]*sessionEntry
	maxEntries int
	maxIdle    time.Duration
}

type sessionEntry struct {
	session  *Session
	lastUsed time.Time
}

// NewSessionStore creates a session store bounded to maxEntries sessions,
// each idle-expiring after maxIdle.
func NewSessionStore(maxEntries int, maxIdle time.Duration) *SessionStore {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if maxIdle <= 0 {
		maxIdle = 30 * time.Minute
	}
	return &SessionStore{
		sessions:   make(map[string]*sessionEntry),
		maxEntries: maxEntries,
		maxIdle:    maxIdle,
	}
}

func sessionKey(subjectID, screenID string) string {
	return subjectID + ":" + screenID
}

// GetOrCreate returns the session for a subject on a screen, creating it at
// the reset state when none exists yet.
func (s *SessionStore) GetOrCreate(subjectID, screenID, resource string, pageSize int) *Session {
	key := sessionKey(subjectID, screenID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.sessions[key]; ok {
		entry.lastUsed = time.Now()
		return entry.session
	}

	if len(s.sessions) >= s.maxEntries {
		s.evictIdle()
	}

	session := NewSession(resource, pageSize)
	s.sessions[key] = &sessionEntry{session: session, lastUsed: time.Now()}
	return session
}

// Drop removes the session for a subject on a screen, if any.
func (s *SessionStore) Drop(subjectID, screenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(subjectID, screenID))
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictIdle removes sessions past their idle deadline. Caller holds the lock.
func (s *SessionStore) evictIdle() {
	deadline := time.Now().Add(-s.maxIdle)
	for key, entry := range s.sessions {
		if entry.lastUsed.Before(deadline) {
			delete(s.sessions, key)
		}
	}
}
