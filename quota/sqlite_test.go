package quota

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"macroplanner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreCheckAndConsume(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for i := 1; i <= 3; i++ {
		used, ok, err := store.CheckAndConsume(ctx, "u1", "2025-03-10", 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, used)
	}

	used, ok, err := store.CheckAndConsume(ctx, "u1", "2025-03-10", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, used, "counter must not grow past the limit")

	// A new day gets a fresh counter.
	used, ok, err = store.CheckAndConsume(ctx, "u1", "2025-03-11", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, used)
}

func TestSQLiteStoreKillSwitch(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	enabled, err := store.IsEnabled(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, enabled, "first contact must create the user enabled")

	require.NoError(t, store.SetEnabled(ctx, "u1", false))
	enabled, err = store.IsEnabled(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestSQLiteStoreAppendAttempt(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	err := store.AppendAttempt(ctx, macroplanner.AttemptRecord{
		UserID:    "u1",
		Date:      "2025-03-10",
		InputHash: "deadbeef",
		Outcome:   "still_out_of_range",
		Totals:    macroplanner.MacroTotals{Calories: 2100, ProteinGrams: 140, CarbsGrams: 210, FatGrams: 70},
		Latency:   900 * time.Millisecond,
		At:        time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}
