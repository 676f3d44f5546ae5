package quota

import (
	"sync"
	"time"
)

// DefaultWindowSpan is the trailing interval over which burst rate is counted.
const DefaultWindowSpan = 60 * time.Second

// Window is the in-memory per-user sliding-window burst limiter. It is
// advisory: state is lost on restart, which is acceptable because the durable
// Guard remains the backstop. Check and record are one operation, serialized
// per user.
type Window struct {
	limit int
	span  time.Duration
	now   func() time.Time

	mu    sync.Mutex
	users map[string]*userWindow
}

type userWindow struct {
	mu    sync.Mutex
	calls []time.Time
}

// NewWindow builds a Window admitting at most limit calls per user within the
// trailing span.
func NewWindow(limit int, span time.Duration) *Window {
	if span <= 0 {
		span = DefaultWindowSpan
	}
	return &Window{
		limit: limit,
		span:  span,
		now:   time.Now,
		users: make(map[string]*userWindow),
	}
}

// WithClock overrides the time source, for tests.
func (w *Window) WithClock(now func() time.Time) *Window {
	w.now = now
	return w
}

// Allow prunes timestamps older than the window span and, if fewer than the
// limit remain, records the call and admits it.
func (w *Window) Allow(userID string) bool {
	uw := w.user(userID)

	uw.mu.Lock()
	defer uw.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.span)
	kept := uw.calls[:0]
	for _, t := range uw.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	uw.calls = kept

	if len(uw.calls) >= w.limit {
		return false
	}
	uw.calls = append(uw.calls, now)
	return true
}

// RetryAfter reports how long until the oldest in-window call expires, as a
// backoff hint for rejected callers.
func (w *Window) RetryAfter(userID string) time.Duration {
	uw := w.user(userID)

	uw.mu.Lock()
	defer uw.mu.Unlock()

	if len(uw.calls) == 0 {
		return 0
	}
	wait := uw.calls[0].Add(w.span).Sub(w.now())
	if wait < 0 {
		return 0
	}
	return wait
}

func (w *Window) user(userID string) *userWindow {
	w.mu.Lock()
	defer w.mu.Unlock()
	uw, ok := w.users[userID]
	if !ok {
		uw = &userWindow{}
		w.users[userID] = uw
	}
	return uw
}
