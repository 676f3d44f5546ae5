package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"macroplanner"
	"macroplanner/quota"
)

const daysPerWeek = 7

// WeekRequest is the input to GenerateWeek.
type WeekRequest struct {
	WeekStartDate string // YYYY-MM-DD, day 0
	Targets       macroplanner.NutritionTargets
	Context       macroplanner.GenerationContext
	// PreviousWeek, when set, supplies locked meals carried into the new week
	// by position: day i of the previous week maps to day i of the new one.
	PreviousWeek *macroplanner.WeeklyPlan
	// Config overrides the repair policy; nil means the default preset.
	Config *macroplanner.PlanConfig
}

// WeeklyOrchestrator sequences the seven-day batch: feasibility and throttling
// gates once per call, then one generate-classify-repair pass per day, with
// locked-meal carryover and breakfast reuse folded in around the generator.
type WeeklyOrchestrator struct {
	gen      macroplanner.Generator
	guard    *quota.Guard
	window   *quota.Window
	fixer    *AutoFixEngine
	metrics  *MetricsAggregator
	sessions *SessionStore
}

func NewWeeklyOrchestrator(gen macroplanner.Generator, guard *quota.Guard, window *quota.Window, metrics *MetricsAggregator, sessions *SessionStore) *WeeklyOrchestrator {
	return &WeeklyOrchestrator{
		gen:      gen,
		guard:    guard,
		window:   window,
		fixer:    NewAutoFixEngine(gen),
		metrics:  metrics,
		sessions: sessions,
	}
}

// gate runs the pre-call rejections, cheapest first: feasibility (pure), the
// in-memory rate window, then the durable quota consume.
func (o *WeeklyOrchestrator) gate(ctx context.Context, targets macroplanner.NutritionTargets, gc macroplanner.GenerationContext) error {
	if err := macroplanner.ValidateFeasibility(targets, gc.Profile); err != nil {
		return err
	}
	if o.window != nil && !o.window.Allow(gc.UserID) {
		return macroplanner.NewRateLimited(o.window.RetryAfter(gc.UserID))
	}
	if o.guard != nil {
		if _, err := o.guard.CheckAndConsume(ctx, gc.UserID); err != nil {
			return err
		}
	}
	return nil
}

// GenerateWeek produces a seven-day plan. Gates run once per call, not once
// per day, since they are properties of the whole request. Any day that cannot
// produce a valid plan after exhausting repair fails the whole week; there is
// no partial-success return.
func (o *WeeklyOrchestrator) GenerateWeek(ctx context.Context, req WeekRequest) (*macroplanner.WeeklyPlan, error) {
	cfg := macroplanner.DefaultPlanConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	start, err := time.Parse("2006-01-02", req.WeekStartDate)
	if err != nil {
		return nil, macroplanner.NewUnknown(fmt.Errorf("bad week start date %q: %w", req.WeekStartDate, err))
	}

	tracker := NewProgressTracker(req.Context.UserID, req.WeekStartDate)
	if o.sessions != nil {
		o.sessions.Put(tracker)
	}

	if err := o.gate(ctx, req.Targets, req.Context); err != nil {
		tracker.Fail(err.Error())
		o.recordWeek(ctx, true)
		return nil, err
	}

	slog.Info("ORCHESTRATOR: Starting weekly batch",
		"session_id", tracker.SessionID(),
		"user_id", req.Context.UserID,
		"week_start", req.WeekStartDate,
		"has_previous_week", req.PreviousWeek != nil,
	)

	week := &macroplanner.WeeklyPlan{
		WeekStartDate: req.WeekStartDate,
		SessionID:     tracker.SessionID(),
	}

	tracker.Advance(PhaseGeneratingDays)

	// Breakfast generated on day 0 is reused for days 1-3 unless that slot
	// was locked; days 4-6 get independent breakfasts.
	var reusableBreakfast *macroplanner.Meal

	for i := 0; i < daysPerWeek; i++ {
		// Cancellation is honored between days; an in-flight round trip is
		// allowed to complete so its cost is not wasted.
		if err := ctx.Err(); err != nil {
			werr := macroplanner.NewUnknown(fmt.Errorf("weekly batch abandoned before day %d: %w", i, err))
			tracker.Fail(werr.Error())
			o.recordWeek(ctx, true)
			return nil, werr
		}

		date := start.AddDate(0, 0, i).Format("2006-01-02")
		locked := lockedMealsFor(req.PreviousWeek, i, date)

		if len(locked) == len(macroplanner.MealOrder) {
			slog.Info("ORCHESTRATOR: All slots locked; copying prior day", "date", date)
			week.Days = append(week.Days, dayFromMeals(date, locked))
			// A fully carried day counts as a first-pass day in both the
			// session snapshot and the aggregate metrics, so the two stay in
			// step; no generation attempt is logged since none was made.
			outcome := DayOutcome{Date: date, Method: FixNone, FixedInRange: true}
			tracker.RecordDay(outcome)
			o.recordDay(ctx, outcome)
			continue
		}

		carried := make([]macroplanner.Meal, 0, len(locked)+1)
		carried = append(carried, locked...)
		if i >= 1 && i <= 3 && reusableBreakfast != nil && mealByType(locked, macroplanner.MealBreakfast) == nil {
			carried = append(carried, *reusableBreakfast)
		}

		day, outcome, err := o.generateOneDay(ctx, date, req.Targets, req.Context, carried, cfg)
		if err != nil {
			tracker.RecordDay(DayOutcome{Date: date, Method: FixFailed})
			tracker.Fail(err.Error())
			o.recordWeek(ctx, true)
			return nil, err
		}

		if outcome.Method == FixScaling || outcome.Method == FixRegeneration {
			tracker.Advance(PhaseAutoFixing)
		}

		if i == 0 {
			if b := mealByType(day.Meals, macroplanner.MealBreakfast); b != nil && !b.Locked {
				cp := *b
				cp.Items = append([]macroplanner.FoodItem(nil), b.Items...)
				reusableBreakfast = &cp
			}
		}

		week.Days = append(week.Days, day)
		tracker.RecordDay(outcome)
		o.recordDay(ctx, outcome)
		o.logAttempt(ctx, req.Context.UserID, date, req.Targets, day, outcome)
	}

	tracker.Advance(PhaseValidating)
	for _, day := range week.Days {
		if !day.IsValid() {
			werr := macroplanner.NewGenerationFailed(nil, "day %s failed structural validation", day.Date)
			tracker.Fail(werr.Error())
			o.recordWeek(ctx, true)
			return nil, werr
		}
	}

	tracker.Advance(PhaseComplete)
	o.recordWeek(ctx, false)
	slog.Info("ORCHESTRATOR: Weekly batch complete", "session_id", tracker.SessionID(), "days", len(week.Days))
	return week, nil
}

// GenerateDay is the single-day caller-facing operation: same gates, one
// generate-repair pass, no carryover.
func (o *WeeklyOrchestrator) GenerateDay(ctx context.Context, date string, targets macroplanner.NutritionTargets, gc macroplanner.GenerationContext, config *macroplanner.PlanConfig) (*macroplanner.DayPlan, error) {
	cfg := macroplanner.DefaultPlanConfig()
	if config != nil {
		cfg = *config
	}

	if err := o.gate(ctx, targets, gc); err != nil {
		return nil, err
	}

	day, outcome, err := o.generateOneDay(ctx, date, targets, gc, nil, cfg)
	if err != nil {
		return nil, err
	}
	o.recordDay(ctx, outcome)
	o.logAttempt(ctx, gc.UserID, date, targets, day, outcome)
	return day, nil
}

// RegenerateMeal replaces one meal of an existing day: the remaining budget is
// the daily target minus everything else on the plate, and only the targeted
// slot is regenerated. Locked meals are refused.
func (o *WeeklyOrchestrator) RegenerateMeal(ctx context.Context, date string, plan *macroplanner.DayPlan, mealIndex int, targets macroplanner.NutritionTargets, gc macroplanner.GenerationContext) (*macroplanner.DayPlan, error) {
	if mealIndex < 0 || mealIndex >= len(plan.Meals) {
		return nil, macroplanner.NewUnknown(fmt.Errorf("meal index %d out of range for %d meals", mealIndex, len(plan.Meals)))
	}
	if plan.Meals[mealIndex].Locked {
		return nil, macroplanner.NewUnknown(fmt.Errorf("meal %q on %s is locked", plan.Meals[mealIndex].Type, date))
	}

	if err := o.gate(ctx, targets, gc); err != nil {
		return nil, err
	}

	budget := targets
	for i, m := range plan.Meals {
		if i == mealIndex {
			continue
		}
		t := m.Totals()
		budget.CaloriesPerDay -= t.Calories
		budget.ProteinGrams -= t.ProteinGrams
		budget.CarbsGrams -= t.CarbsGrams
		budget.FatGrams -= t.FatGrams
	}
	clampBudget(&budget)

	meal, err := o.gen.GenerateMeal(ctx, macroplanner.MealRequest{
		Date:    date,
		Type:    plan.Meals[mealIndex].Type,
		Budget:  budget,
		Context: gc,
	})
	if err != nil {
		return nil, err
	}

	out := plan.Clone()
	out.Date = date
	out.Meals[mealIndex] = *meal
	return out, nil
}

// generateOneDay runs generation plus repair for a single date. carried lists
// meals spliced in afterward (locked carryover or a reused breakfast); the
// generator is budgeted for the remainder and told to skip those slots.
func (o *WeeklyOrchestrator) generateOneDay(ctx context.Context, date string, targets macroplanner.NutritionTargets, gc macroplanner.GenerationContext, carried []macroplanner.Meal, cfg macroplanner.PlanConfig) (*macroplanner.DayPlan, DayOutcome, error) {
	begin := time.Now()

	exclude := make([]macroplanner.MealType, 0, len(carried))
	remaining := targets
	for _, m := range carried {
		exclude = append(exclude, m.Type)
		t := m.Totals()
		remaining.CaloriesPerDay -= t.Calories
		remaining.ProteinGrams -= t.ProteinGrams
		remaining.CarbsGrams -= t.CarbsGrams
		remaining.FatGrams -= t.FatGrams
	}
	clampBudget(&remaining)

	// The initial generation shares the repair engine's bounded attempt
	// budget: a retryable failure here gets the same number of extra shots a
	// regeneration would.
	var plan *macroplanner.DayPlan
	var err error
	for attempt := 0; attempt <= cfg.MaxRegenerationsPerDay; attempt++ {
		plan, err = o.gen.GenerateDay(ctx, macroplanner.DayRequest{
			Date:    date,
			Targets: remaining,
			Context: gc,
			Exclude: exclude,
		})
		if err == nil {
			break
		}
		slog.Error("ORCHESTRATOR: Day generation failed", "date", date, "attempt", attempt+1, "error", err)
		var perr *macroplanner.Error
		if !(errors.As(err, &perr) && perr.Retryable) {
			return nil, DayOutcome{}, err
		}
	}
	if err != nil {
		return nil, DayOutcome{}, err
	}

	fixed, outcome := o.fixer.Fix(ctx, plan, remaining, gc, exclude, cfg)
	outcome.Latency = time.Since(begin)

	day := spliceDay(date, fixed, carried)
	return day, outcome, nil
}

func (o *WeeklyOrchestrator) recordDay(ctx context.Context, outcome DayOutcome) {
	if o.metrics != nil {
		o.metrics.RecordDay(ctx, outcome)
	}
}

func (o *WeeklyOrchestrator) recordWeek(ctx context.Context, failed bool) {
	if o.metrics != nil {
		o.metrics.RecordWeek(ctx, failed)
	}
}

// logAttempt appends one row to the durable attempt event log. The pipeline
// writes these for analytics and never reads them back; failures to log are
// swallowed inside the guard.
func (o *WeeklyOrchestrator) logAttempt(ctx context.Context, userID, date string, targets macroplanner.NutritionTargets, day *macroplanner.DayPlan, outcome DayOutcome) {
	if o.guard == nil {
		return
	}
	result := "ok"
	if !outcome.FixedInRange {
		result = "still_out_of_range"
	}
	o.guard.LogAttempt(ctx, macroplanner.AttemptRecord{
		UserID:    userID,
		Date:      date,
		InputHash: hashTargets(targets),
		Outcome:   result,
		Totals:    day.Totals(),
		Latency:   outcome.Latency,
		At:        time.Now().UTC(),
	})
}

// hashTargets fingerprints the numeric input for the attempt log without
// storing the raw request.
func hashTargets(targets macroplanner.NutritionTargets) string {
	b, _ := json.Marshal(targets)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// lockedMealsFor extracts day i's locked meals from the previous week,
// re-tagged with the new date (meals carry no date themselves; the containing
// day does, so re-tagging happens at splice time).
func lockedMealsFor(prev *macroplanner.WeeklyPlan, i int, date string) []macroplanner.Meal {
	if prev == nil || i >= len(prev.Days) || prev.Days[i] == nil {
		return nil
	}
	var out []macroplanner.Meal
	for _, m := range prev.Days[i].Meals {
		if !m.Locked {
			continue
		}
		cp := m
		cp.Items = append([]macroplanner.FoodItem(nil), m.Items...)
		out = append(out, cp)
	}
	return out
}

// dayFromMeals assembles a day purely from carried meals, in canonical order.
func dayFromMeals(date string, meals []macroplanner.Meal) *macroplanner.DayPlan {
	day := &macroplanner.DayPlan{Date: date}
	for _, mt := range macroplanner.MealOrder {
		if m := mealByType(meals, mt); m != nil {
			day.Meals = append(day.Meals, *m)
		}
	}
	return day
}

// spliceDay merges generated and carried meals into canonical slot order.
func spliceDay(date string, generated *macroplanner.DayPlan, carried []macroplanner.Meal) *macroplanner.DayPlan {
	day := &macroplanner.DayPlan{Date: date, Explanation: generated.Explanation}
	for _, mt := range macroplanner.MealOrder {
		if m := mealByType(carried, mt); m != nil {
			day.Meals = append(day.Meals, *m)
			continue
		}
		if idx := generated.MealOfType(mt); idx >= 0 {
			day.Meals = append(day.Meals, generated.Meals[idx])
		}
	}
	return day
}

func mealByType(meals []macroplanner.Meal, mt macroplanner.MealType) *macroplanner.Meal {
	for i := range meals {
		if meals[i].Type == mt {
			return &meals[i]
		}
	}
	return nil
}

// clampBudget keeps a remaining budget non-negative after subtracting carried
// meals that overshoot their share.
func clampBudget(t *macroplanner.NutritionTargets) {
	if t.CaloriesPerDay < 0 {
		t.CaloriesPerDay = 0
	}
	if t.ProteinGrams < 0 {
		t.ProteinGrams = 0
	}
	if t.CarbsGrams < 0 {
		t.CarbsGrams = 0
	}
	if t.FatGrams < 0 {
		t.FatGrams = 0
	}
}
