package planner

import "sync"

// SessionStore retains progress trackers for running or recently finished
// batch runs so callers can poll snapshots by session ID. Entries live until
// explicitly deleted; cleanup policy belongs to the caller.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*ProgressTracker
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]*ProgressTracker{}}
}

// Put registers a tracker under its session ID.
func (s *SessionStore) Put(t *ProgressTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[t.SessionID()] = t
}

// Get returns the tracker for a session ID, if present.
func (s *SessionStore) Get(sessionID string) (*ProgressTracker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.sessions[sessionID]
	return t, ok
}

// Delete removes a finished session.
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
