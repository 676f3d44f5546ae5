package planner

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressPhasesAreMonotonic(t *testing.T) {
	tr := NewProgressTracker("u1", "2026-03-02")
	assert.Equal(t, PhaseInitializing, tr.Snapshot().Phase)

	tr.Advance(PhaseGeneratingDays)
	assert.Equal(t, PhaseGeneratingDays, tr.Snapshot().Phase)

	// Backward and repeated transitions are ignored.
	tr.Advance(PhaseInitializing)
	assert.Equal(t, PhaseGeneratingDays, tr.Snapshot().Phase)
	tr.Advance(PhaseGeneratingDays)
	assert.Equal(t, PhaseGeneratingDays, tr.Snapshot().Phase)

	tr.Advance(PhaseAutoFixing)
	tr.Advance(PhaseValidating)
	tr.Advance(PhaseComplete)

	snap := tr.Snapshot()
	assert.Equal(t, PhaseComplete, snap.Phase)
	assert.False(t, snap.EndedAt.IsZero())
}

func TestProgressErrorIsTerminal(t *testing.T) {
	tr := NewProgressTracker("u1", "2026-03-02")
	tr.Advance(PhaseGeneratingDays)
	tr.Fail("day 3 unrecoverable")

	snap := tr.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, "day 3 unrecoverable", snap.ErrorMessage)
	assert.False(t, snap.EndedAt.IsZero())

	// No way out of error.
	tr.Advance(PhaseComplete)
	assert.Equal(t, PhaseError, tr.Snapshot().Phase)
}

func TestProgressCompletedRunIgnoresFail(t *testing.T) {
	tr := NewProgressTracker("u1", "2026-03-02")
	tr.Advance(PhaseComplete)
	tr.Fail("too late")
	assert.Equal(t, PhaseComplete, tr.Snapshot().Phase)
}

func TestProgressDayCounts(t *testing.T) {
	tr := NewProgressTracker("u1", "2026-03-02")
	tr.RecordDay(DayOutcome{Date: "2026-03-02", Method: FixNone, FixedInRange: true})
	tr.RecordDay(DayOutcome{Date: "2026-03-03", Method: FixScaling, FixedInRange: true})
	tr.RecordDay(DayOutcome{Date: "2026-03-04", Method: FixRegeneration, AttemptCount: 1, FixedInRange: true})
	tr.RecordDay(DayOutcome{Date: "2026-03-05", Method: FixRegeneration, AttemptCount: 2, FixedInRange: false})

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.DaysWithinToleranceFirstPass)
	assert.Equal(t, 1, snap.DaysFixedByScaling)
	assert.Equal(t, 1, snap.DaysFixedByRegeneration)
	assert.Equal(t, 1, snap.DaysStillOutOfRange)
	require.Len(t, snap.Days, 4)
}

func TestProgressConcurrentSnapshots(t *testing.T) {
	tr := NewProgressTracker("u1", "2026-03-02")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.RecordDay(DayOutcome{Date: "2026-03-02", Method: FixNone, FixedInRange: true})
		}()
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, tr.Snapshot().DaysWithinToleranceFirstPass)
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	tr := NewProgressTracker("u1", "2026-03-02")
	store.Put(tr)

	got, ok := store.Get(tr.SessionID())
	require.True(t, ok)
	assert.Same(t, tr, got)

	_, ok = store.Get("missing")
	assert.False(t, ok)

	store.Delete(tr.SessionID())
	_, ok = store.Get(tr.SessionID())
	assert.False(t, ok)
}
