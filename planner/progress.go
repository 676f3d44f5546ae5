package planner

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is one stage of a weekly batch run. Transitions only move forward;
// PhaseError is terminal and reachable from any non-terminal state.
type Phase string

const (
	PhaseInitializing   Phase = "initializing"
	PhaseGeneratingDays Phase = "generating_days"
	PhaseAutoFixing     Phase = "auto_fixing"
	PhaseValidating     Phase = "validating"
	PhaseComplete       Phase = "complete"
	PhaseError          Phase = "error"
)

var phaseRank = map[Phase]int{
	PhaseInitializing:   0,
	PhaseGeneratingDays: 1,
	PhaseAutoFixing:     2,
	PhaseValidating:     3,
	PhaseComplete:       4,
	PhaseError:          5,
}

// FixMethod records how a day reached its final state.
type FixMethod string

const (
	FixNone         FixMethod = "none"
	FixScaling      FixMethod = "scaling"
	FixRegeneration FixMethod = "regeneration"
	FixFailed       FixMethod = "failed"
)

// DayOutcome is the per-day repair record, kept independently of the phase.
type DayOutcome struct {
	Date         string        `json:"date"`
	Method       FixMethod     `json:"method"`
	AttemptCount int           `json:"attempt_count,omitempty"`
	FixedInRange bool          `json:"fixed_in_range"`
	Latency      time.Duration `json:"latency,omitempty"`
}

// Snapshot is a point-in-time view of a run, safe to hand to pollers while the
// orchestrator keeps writing.
type Snapshot struct {
	SessionID     string       `json:"session_id"`
	UserID        string       `json:"user_id"`
	WeekStartDate string       `json:"week_start_date"`
	Phase         Phase        `json:"phase"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	Days          []DayOutcome `json:"days"`

	DaysWithinToleranceFirstPass int `json:"days_within_tolerance_first_pass"`
	DaysFixedByScaling           int `json:"days_fixed_by_scaling"`
	DaysFixedByRegeneration      int `json:"days_fixed_by_regeneration"`
	DaysStillOutOfRange          int `json:"days_still_out_of_range"`
}

// ProgressTracker owns one batch run's session state.
type ProgressTracker struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewProgressTracker starts a run in the initializing phase with a fresh
// session ID.
func NewProgressTracker(userID, weekStartDate string) *ProgressTracker {
	return &ProgressTracker{
		snap: Snapshot{
			SessionID:     uuid.NewString(),
			UserID:        userID,
			WeekStartDate: weekStartDate,
			Phase:         PhaseInitializing,
			StartedAt:     time.Now().UTC(),
		},
	}
}

// SessionID returns the run's stable identifier.
func (t *ProgressTracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap.SessionID
}

// Advance moves the run forward to the given phase. Backward or repeated
// transitions are ignored, which keeps the machine monotonic without making
// callers track what phase they are in.
func (t *ProgressTracker) Advance(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Phase == PhaseError || phaseRank[p] <= phaseRank[t.snap.Phase] {
		return
	}
	t.snap.Phase = p
	if p == PhaseComplete {
		t.snap.EndedAt = time.Now().UTC()
	}
}

// Fail moves the run to the terminal error phase with a message. A run that
// already completed stays completed.
func (t *ProgressTracker) Fail(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Phase == PhaseComplete || t.snap.Phase == PhaseError {
		return
	}
	t.snap.Phase = PhaseError
	t.snap.ErrorMessage = msg
	t.snap.EndedAt = time.Now().UTC()
}

// RecordDay appends a day outcome and folds it into the running counts.
func (t *ProgressTracker) RecordDay(o DayOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Days = append(t.snap.Days, o)

	switch {
	case o.Method == FixNone && o.FixedInRange:
		t.snap.DaysWithinToleranceFirstPass++
	case o.Method == FixScaling && o.FixedInRange:
		t.snap.DaysFixedByScaling++
	case o.Method == FixRegeneration && o.FixedInRange:
		t.snap.DaysFixedByRegeneration++
	}
	if !o.FixedInRange {
		t.snap.DaysStillOutOfRange++
	}
}

// Snapshot returns a copy of the current state.
func (t *ProgressTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := t.snap
	cp.Days = make([]DayOutcome, len(t.snap.Days))
	copy(cp.Days, t.snap.Days)
	return cp
}
