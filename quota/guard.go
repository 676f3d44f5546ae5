package quota

import (
	"context"
	"log/slog"
	"time"

	"macroplanner"
)

// Grant is the successful outcome of a quota check: how many calls remain
// today and when the counter rolls over.
type Grant struct {
	Remaining int
	ResetsAt  time.Time
}

// Guard gates every generation attempt against the durable daily counter and
// the admin kill switch. It is the authoritative throttle; the in-memory
// Window layered on top of it is advisory.
type Guard struct {
	store Store
	limit int
	now   func() time.Time
}

// NewGuard builds a Guard over the given store. limit is the per-user daily
// call ceiling.
func NewGuard(store Store, limit int) *Guard {
	return &Guard{store: store, limit: limit, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// CheckAndConsume admits one generation call for the user, incrementing the
// durable counter in the same linearizable operation that read it. Failure
// modes: DisabledForUser when the kill switch is set, QuotaExceeded when the
// day's limit is reached.
func (g *Guard) CheckAndConsume(ctx context.Context, userID string) (Grant, error) {
	enabled, err := g.store.IsEnabled(ctx, userID)
	if err != nil {
		return Grant{}, macroplanner.NewUnknown(err)
	}
	if !enabled {
		return Grant{}, macroplanner.NewDisabledForUser(userID)
	}

	nowUTC := g.now().UTC()
	day := nowUTC.Format("2006-01-02")
	resetsAt := nowUTC.Truncate(24 * time.Hour).Add(24 * time.Hour)

	used, ok, err := g.store.CheckAndConsume(ctx, userID, day, g.limit)
	if err != nil {
		return Grant{}, macroplanner.NewUnknown(err)
	}
	if !ok {
		slog.Info("QUOTA: Daily limit reached", "user_id", userID, "used", used, "limit", g.limit)
		return Grant{}, macroplanner.NewQuotaExceeded(resetsAt)
	}

	return Grant{Remaining: g.limit - used, ResetsAt: resetsAt}, nil
}

// LogAttempt appends one generation attempt to the durable event log. Logging
// failures are reported but never fail the pipeline.
func (g *Guard) LogAttempt(ctx context.Context, rec macroplanner.AttemptRecord) {
	if err := g.store.AppendAttempt(ctx, rec); err != nil {
		slog.Error("QUOTA: Failed to append attempt record", "error", err, "user_id", rec.UserID)
	}
}
