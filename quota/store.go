package quota

import (
	"context"
	"sync"

	"macroplanner"
)

// Store is the durable backing for the per-user daily counter, the admin kill
// switch, and the append-only attempt log. The check-then-increment in
// CheckAndConsume must be linearizable per user: two concurrent calls that both
// observe one slot remaining must not both be admitted.
type Store interface {
	// CheckAndConsume increments the user's counter for the given day if it is
	// below limit, atomically. It returns the counter value after the call and
	// whether the call was admitted.
	CheckAndConsume(ctx context.Context, userID, day string, limit int) (used int, ok bool, err error)

	// IsEnabled reports the user's kill-switch state, lazily creating the user
	// record with generation enabled on first contact.
	IsEnabled(ctx context.Context, userID string) (bool, error)

	// SetEnabled flips the admin kill switch for a user.
	SetEnabled(ctx context.Context, userID string, enabled bool) error

	// AppendAttempt records one generation attempt in the event log. Write-only
	// from the pipeline's point of view.
	AppendAttempt(ctx context.Context, rec macroplanner.AttemptRecord) error
}

// MemStore is an in-memory Store for tests and local runs. It honors the same
// atomicity contract via a single mutex.
type MemStore struct {
	mu       sync.Mutex
	counters map[string]int  // userID|day -> calls used
	enabled  map[string]bool // userID -> kill switch state
	attempts []macroplanner.AttemptRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		counters: make(map[string]int),
		enabled:  make(map[string]bool),
	}
}

func (s *MemStore) CheckAndConsume(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "|" + day
	used := s.counters[key]
	if used >= limit {
		return used, false, nil
	}
	used++
	s.counters[key] = used
	return used, true, nil
}

func (s *MemStore) IsEnabled(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled, seen := s.enabled[userID]
	if !seen {
		s.enabled[userID] = true
		return true, nil
	}
	return enabled, nil
}

func (s *MemStore) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[userID] = enabled
	return nil
}

func (s *MemStore) AppendAttempt(ctx context.Context, rec macroplanner.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, rec)
	return nil
}

// Attempts returns a copy of the recorded attempt log, for tests.
func (s *MemStore) Attempts() []macroplanner.AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]macroplanner.AttemptRecord, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Seed sets a user's counter for a day directly, for tests.
func (s *MemStore) Seed(userID, day string, used int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[userID+"|"+day] = used
}
