package quota

import (
	"context"
	"testing"
	"time"

	"macroplanner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGuardCheckAndConsume(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	day := "2025-03-10"

	t.Run("last two slots then exceeded", func(t *testing.T) {
		store := NewMemStore()
		store.Seed("u1", day, 8) // limit 10, two slots left
		guard := NewGuard(store, 10).WithClock(fixedClock(now))

		g1, err := guard.CheckAndConsume(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, g1.Remaining)

		g2, err := guard.CheckAndConsume(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, g2.Remaining)
		assert.Less(t, g2.Remaining, g1.Remaining, "remaining must decrease monotonically")

		_, err = guard.CheckAndConsume(ctx, "u1")
		require.Error(t, err)
		assert.Equal(t, macroplanner.CodeQuotaExceeded, macroplanner.CodeOf(err))
	})

	t.Run("resets at next UTC midnight", func(t *testing.T) {
		store := NewMemStore()
		guard := NewGuard(store, 10).WithClock(fixedClock(now))

		g, err := guard.CheckAndConsume(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), g.ResetsAt)
	})

	t.Run("day rollover starts a fresh counter", func(t *testing.T) {
		store := NewMemStore()
		store.Seed("u1", day, 10)
		guard := NewGuard(store, 10).WithClock(fixedClock(now))

		_, err := guard.CheckAndConsume(ctx, "u1")
		require.Error(t, err)

		guard.WithClock(fixedClock(now.Add(24 * time.Hour)))
		g, err := guard.CheckAndConsume(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 9, g.Remaining)
	})

	t.Run("kill switch", func(t *testing.T) {
		store := NewMemStore()
		guard := NewGuard(store, 10).WithClock(fixedClock(now))
		require.NoError(t, store.SetEnabled(ctx, "u2", false))

		_, err := guard.CheckAndConsume(ctx, "u2")
		require.Error(t, err)
		assert.Equal(t, macroplanner.CodeDisabledForUser, macroplanner.CodeOf(err))

		var pe *macroplanner.Error
		require.ErrorAs(t, err, &pe)
		assert.False(t, pe.Retryable)
	})

	t.Run("user lazily created enabled", func(t *testing.T) {
		store := NewMemStore()
		guard := NewGuard(store, 10).WithClock(fixedClock(now))

		g, err := guard.CheckAndConsume(ctx, "never-seen-before")
		require.NoError(t, err)
		assert.Equal(t, 9, g.Remaining)
	})
}

func TestGuardLogAttempt(t *testing.T) {
	store := NewMemStore()
	guard := NewGuard(store, 10)

	guard.LogAttempt(context.Background(), macroplanner.AttemptRecord{
		UserID:    "u1",
		Date:      "2025-03-10",
		InputHash: "abc123",
		Outcome:   "ok",
		Totals:    macroplanner.MacroTotals{Calories: 1980},
		Latency:   1200 * time.Millisecond,
		At:        time.Now(),
	})

	attempts := store.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, "ok", attempts[0].Outcome)
}
