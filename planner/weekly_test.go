package planner

import (
	"context"
	"sync"
	"testing"
	"time"

	"macroplanner"
	"macroplanner/coordinator/mock"
	"macroplanner/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

// recordingGenerator wraps the scripted generator and captures every request
// so tests can assert on exclusions and budgets.
type recordingGenerator struct {
	*mock.Generator
	mu       sync.Mutex
	dayReqs  []macroplanner.DayRequest
	mealReqs []macroplanner.MealRequest
}

func newRecordingGenerator(opts ...mock.Option) *recordingGenerator {
	return &recordingGenerator{Generator: mock.NewGenerator(opts...)}
}

func (r *recordingGenerator) GenerateDay(ctx context.Context, req macroplanner.DayRequest) (*macroplanner.DayPlan, error) {
	r.mu.Lock()
	r.dayReqs = append(r.dayReqs, req)
	r.mu.Unlock()
	return r.Generator.GenerateDay(ctx, req)
}

func (r *recordingGenerator) GenerateMeal(ctx context.Context, req macroplanner.MealRequest) (*macroplanner.Meal, error) {
	r.mu.Lock()
	r.mealReqs = append(r.mealReqs, req)
	r.mu.Unlock()
	return r.Generator.GenerateMeal(ctx, req)
}

func weekTargets() macroplanner.NutritionTargets {
	return macroplanner.NutritionTargets{
		CaloriesPerDay: 2000, ProteinGrams: 150, CarbsGrams: 200, FatGrams: 65,
	}
}

func weekContext() macroplanner.GenerationContext {
	return macroplanner.GenerationContext{UserID: "u1", Profile: macroplanner.ProfileStandard}
}

func newOrchestrator(gen macroplanner.Generator) (*WeeklyOrchestrator, *MetricsAggregator, *SessionStore) {
	metrics := NewMetricsAggregator(noop.NewMeterProvider().Meter("test"))
	sessions := NewSessionStore()
	guard := quota.NewGuard(quota.NewMemStore(), 50)
	window := quota.NewWindow(100, time.Minute)
	return NewWeeklyOrchestrator(gen, guard, window, metrics, sessions), metrics, sessions
}

func TestGenerateWeekEndToEnd(t *testing.T) {
	gen := newRecordingGenerator()
	orch, metrics, sessions := newOrchestrator(gen)

	week, err := orch.GenerateWeek(context.Background(), WeekRequest{
		WeekStartDate: "2026-03-02",
		Targets:       weekTargets(),
		Context:       weekContext(),
	})
	require.NoError(t, err)
	require.Len(t, week.Days, 7)
	require.NotEmpty(t, week.SessionID)

	for i, day := range week.Days {
		assert.True(t, day.IsValid(), "day %d must be structurally valid", i)
		totals := day.Totals()
		assert.InDelta(t, 2000, totals.Calories, 2000*0.20, "day %d calories within 20%%", i)
		assert.GreaterOrEqual(t, totals.ProteinGrams, 150*0.95, "day %d protein floor", i)
	}
	assert.Equal(t, "2026-03-02", week.Days[0].Date)
	assert.Equal(t, "2026-03-08", week.Days[6].Date)

	tracker, ok := sessions.Get(week.SessionID)
	require.True(t, ok)
	snap := tracker.Snapshot()
	assert.Equal(t, PhaseComplete, snap.Phase)
	assert.Len(t, snap.Days, 7)
	assert.Equal(t, 7, snap.DaysWithinToleranceFirstPass)
	assert.False(t, snap.EndedAt.IsZero())

	ms := metrics.Snapshot()
	assert.Equal(t, 7, ms.DaysTotal)
	assert.Equal(t, 1, ms.WeeksTotal)
	assert.Equal(t, 0, ms.WeeksFailed)
	assert.InDelta(t, 1.0, ms.FirstPassRate, 0.001)
}

func TestGenerateWeekBreakfastReuse(t *testing.T) {
	gen := newRecordingGenerator()
	orch, _, _ := newOrchestrator(gen)

	week, err := orch.GenerateWeek(context.Background(), WeekRequest{
		WeekStartDate: "2026-03-02",
		Targets:       weekTargets(),
		Context:       weekContext(),
	})
	require.NoError(t, err)

	day0Breakfast := week.Days[0].Meals[0]
	require.Equal(t, macroplanner.MealBreakfast, day0Breakfast.Type)

	// Days 1-3 carry day 0's breakfast verbatim; the generator was told to
	// skip that slot.
	for i := 1; i <= 3; i++ {
		assert.Equal(t, day0Breakfast.Items, week.Days[i].Meals[0].Items, "day %d reuses day 0 breakfast", i)
		assert.Contains(t, gen.dayReqs[i].Exclude, macroplanner.MealBreakfast, "day %d generation excludes breakfast", i)
	}
	// Days 4-6 generate their own.
	for i := 4; i <= 6; i++ {
		assert.NotContains(t, gen.dayReqs[i].Exclude, macroplanner.MealBreakfast, "day %d generates breakfast", i)
	}

	// Reused-breakfast days get a reduced generation budget.
	bfast := day0Breakfast.Totals()
	assert.InDelta(t, 2000-bfast.Calories, gen.dayReqs[1].Targets.CaloriesPerDay, 0.01)
}

func TestGenerateWeekLockedCarryover(t *testing.T) {
	prev := &macroplanner.WeeklyPlan{WeekStartDate: "2026-02-23"}
	for i := 0; i < 7; i++ {
		date := time.Date(2026, 2, 23+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		day := &macroplanner.DayPlan{Date: date}
		for _, mt := range macroplanner.MealOrder {
			day.Meals = append(day.Meals, macroplanner.Meal{
				Type:   mt,
				Locked: i == 0 || (i == 1 && mt == macroplanner.MealDinner),
				Items: []macroplanner.FoodItem{{
					Name: "carried " + string(mt), Quantity: 100, Unit: "g",
					Calories: 500, ProteinGrams: 37.5, CarbsGrams: 50, FatGrams: 16.25,
				}},
			})
		}
		prev.Days = append(prev.Days, day)
	}

	gen := newRecordingGenerator()
	orch, metrics, _ := newOrchestrator(gen)

	week, err := orch.GenerateWeek(context.Background(), WeekRequest{
		WeekStartDate: "2026-03-02",
		Targets:       weekTargets(),
		Context:       weekContext(),
		PreviousWeek:  prev,
	})
	require.NoError(t, err)

	// Day 0: all four slots locked, copied verbatim with the new date, zero
	// generation calls for it (6 day calls total for the week).
	day0 := week.Days[0]
	assert.Equal(t, "2026-03-02", day0.Date)
	require.Len(t, day0.Meals, 4)
	for i, m := range day0.Meals {
		assert.True(t, m.Locked)
		assert.Equal(t, prev.Days[0].Meals[i].Items, m.Items)
	}
	assert.Equal(t, 6, gen.DayCalls())

	// Day 1: dinner locked and spliced back in canonical position.
	day1 := week.Days[1]
	require.Len(t, day1.Meals, 4)
	assert.True(t, day1.Meals[2].Locked)
	assert.Equal(t, "carried dinner", day1.Meals[2].Items[0].Name)
	assert.Contains(t, gen.dayReqs[0].Exclude, macroplanner.MealDinner)

	// Day 1's generation budget excludes the locked dinner's share.
	assert.InDelta(t, 1500, gen.dayReqs[0].Targets.CaloriesPerDay, 0.01)

	// The fully carried day still counts toward the aggregate day metrics, so
	// the per-session counts and the meter-backed counters agree.
	ms := metrics.Snapshot()
	assert.Equal(t, 7, ms.DaysTotal)
	assert.Equal(t, 7, ms.DaysFirstPass)
}

func TestGenerateWeekGates(t *testing.T) {
	t.Run("infeasible targets fail before any call", func(t *testing.T) {
		gen := newRecordingGenerator()
		orch, metrics, _ := newOrchestrator(gen)

		_, err := orch.GenerateWeek(context.Background(), WeekRequest{
			WeekStartDate: "2026-03-02",
			Targets:       macroplanner.NutritionTargets{CaloriesPerDay: 700},
			Context:       weekContext(),
		})
		require.Error(t, err)
		assert.Equal(t, macroplanner.CodeInfeasiblePlan, macroplanner.CodeOf(err))
		assert.Equal(t, 0, gen.TotalCalls())

		// Gate rejections fail the week in the aggregate counters just like a
		// mid-week failure would.
		ms := metrics.Snapshot()
		assert.Equal(t, 1, ms.WeeksTotal)
		assert.Equal(t, 1, ms.WeeksFailed)
	})

	t.Run("quota exhausted fails before any call", func(t *testing.T) {
		gen := newRecordingGenerator()
		store := quota.NewMemStore()
		store.Seed("u1", time.Now().UTC().Format("2006-01-02"), 50)
		guard := quota.NewGuard(store, 50)
		orch := NewWeeklyOrchestrator(gen, guard, quota.NewWindow(100, time.Minute), nil, nil)

		_, err := orch.GenerateWeek(context.Background(), WeekRequest{
			WeekStartDate: "2026-03-02",
			Targets:       weekTargets(),
			Context:       weekContext(),
		})
		require.Error(t, err)
		assert.Equal(t, macroplanner.CodeQuotaExceeded, macroplanner.CodeOf(err))
		assert.Equal(t, 0, gen.TotalCalls())
	})

	t.Run("rate limited fails before any call", func(t *testing.T) {
		gen := newRecordingGenerator()
		window := quota.NewWindow(1, time.Minute)
		require.True(t, window.Allow("u1")) // burn the only slot
		orch := NewWeeklyOrchestrator(gen, quota.NewGuard(quota.NewMemStore(), 50), window, nil, nil)

		_, err := orch.GenerateWeek(context.Background(), WeekRequest{
			WeekStartDate: "2026-03-02",
			Targets:       weekTargets(),
			Context:       weekContext(),
		})
		require.Error(t, err)
		assert.Equal(t, macroplanner.CodeRateLimited, macroplanner.CodeOf(err))
		assert.Equal(t, 0, gen.TotalCalls())
	})
}

func TestGenerateWeekFatalDayFailure(t *testing.T) {
	gen := newRecordingGenerator(mock.WithDayError("2026-03-05", macroplanner.NewGenerationFailed(nil, "model melted")))
	orch, metrics, sessions := newOrchestrator(gen)

	week, err := orch.GenerateWeek(context.Background(), WeekRequest{
		WeekStartDate: "2026-03-02",
		Targets:       weekTargets(),
		Context:       weekContext(),
	})
	assert.Nil(t, week, "no partial-success return")
	require.Error(t, err)
	assert.Equal(t, macroplanner.CodeGenerationFailed, macroplanner.CodeOf(err))

	// Day 3 consumed its bounded retries (initial + maxRegenerationsPerDay).
	assert.Equal(t, 3+2, gen.DayCalls())

	ms := metrics.Snapshot()
	assert.Equal(t, 1, ms.WeeksFailed)

	snaps := sessionSnapshots(sessions)
	require.Len(t, snaps, 1)
	assert.Equal(t, PhaseError, snaps[0].Phase)
	assert.NotEmpty(t, snaps[0].ErrorMessage)
}

func TestGenerateWeekCancellationBetweenDays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := newRecordingGenerator()

	// Cancel after the second day finishes; the orchestrator must stop at the
	// next between-days check.
	cancelling := &cancelAfterDays{inner: gen, cancel: cancel, after: 2}
	orch, _, sessions := newOrchestrator(cancelling)

	week, err := orch.GenerateWeek(ctx, WeekRequest{
		WeekStartDate: "2026-03-02",
		Targets:       weekTargets(),
		Context:       weekContext(),
	})
	assert.Nil(t, week)
	require.Error(t, err)
	assert.Equal(t, 2, gen.DayCalls(), "in-flight day completes; later days never start")

	snaps := sessionSnapshots(sessions)
	require.Len(t, snaps, 1)
	assert.Equal(t, PhaseError, snaps[0].Phase)
	assert.Len(t, snaps[0].Days, 2)
}

func sessionSnapshots(s *SessionStore) []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.sessions))
	for _, tr := range s.sessions {
		out = append(out, tr.Snapshot())
	}
	return out
}

type cancelAfterDays struct {
	inner  *recordingGenerator
	cancel context.CancelFunc
	after  int
	calls  int
}

func (c *cancelAfterDays) GenerateDay(ctx context.Context, req macroplanner.DayRequest) (*macroplanner.DayPlan, error) {
	plan, err := c.inner.GenerateDay(ctx, req)
	c.calls++
	if c.calls >= c.after {
		c.cancel()
	}
	return plan, err
}

func (c *cancelAfterDays) GenerateMeal(ctx context.Context, req macroplanner.MealRequest) (*macroplanner.Meal, error) {
	return c.inner.GenerateMeal(ctx, req)
}

func (c *cancelAfterDays) ParseFoodItem(ctx context.Context, description string) (*macroplanner.FoodItem, error) {
	return c.inner.ParseFoodItem(ctx, description)
}

func TestGenerateDayIdempotent(t *testing.T) {
	gen := newRecordingGenerator()
	orch, _, _ := newOrchestrator(gen)

	first, err := orch.GenerateDay(context.Background(), "2026-03-02", weekTargets(), weekContext(), nil)
	require.NoError(t, err)
	second, err := orch.GenerateDay(context.Background(), "2026-03-02", weekTargets(), weekContext(), nil)
	require.NoError(t, err)

	assert.Equal(t, first.Totals(), second.Totals(), "identical inputs yield identical totals")
}

func TestGenerateDayAppliesPreset(t *testing.T) {
	// A day landing at 70% of target is scale-fixable under the default
	// policy; the repaired result must be in tolerance.
	gen := newRecordingGenerator(mock.WithFraction(0.7))
	orch, metrics, _ := newOrchestrator(gen)

	day, err := orch.GenerateDay(context.Background(), "2026-03-02", weekTargets(), weekContext(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 2000, day.Totals().Calories, 2000*0.10)

	ms := metrics.Snapshot()
	assert.Equal(t, 1, ms.DaysFixedByScaling)
}

func TestRegenerateMeal(t *testing.T) {
	gen := newRecordingGenerator()
	orch, _, _ := newOrchestrator(gen)

	plan, err := orch.GenerateDay(context.Background(), "2026-03-02", weekTargets(), weekContext(), nil)
	require.NoError(t, err)

	t.Run("replaces only the targeted slot with the remaining budget", func(t *testing.T) {
		idx := plan.MealOfType(macroplanner.MealDinner)
		require.GreaterOrEqual(t, idx, 0)
		before := plan.Clone()

		out, err := orch.RegenerateMeal(context.Background(), "2026-03-02", plan, idx, weekTargets(), weekContext())
		require.NoError(t, err)

		// Other meals untouched; input plan not mutated.
		for i := range out.Meals {
			if i == idx {
				continue
			}
			assert.Equal(t, before.Meals[i], out.Meals[i])
		}
		assert.Equal(t, before.Meals[idx], plan.Meals[idx])

		// The meal request's budget is the day target minus the other meals.
		require.Len(t, gen.mealReqs, 1)
		var others float64
		for i, m := range plan.Meals {
			if i != idx {
				others += m.Totals().Calories
			}
		}
		assert.InDelta(t, 2000-others, gen.mealReqs[0].Budget.CaloriesPerDay, 0.01)
	})

	t.Run("locked meal refused", func(t *testing.T) {
		locked := plan.Clone()
		locked.Meals[0].Locked = true
		_, err := orch.RegenerateMeal(context.Background(), "2026-03-02", locked, 0, weekTargets(), weekContext())
		require.Error(t, err)
	})

	t.Run("index out of range refused", func(t *testing.T) {
		_, err := orch.RegenerateMeal(context.Background(), "2026-03-02", plan, 9, weekTargets(), weekContext())
		require.Error(t, err)
	})
}
