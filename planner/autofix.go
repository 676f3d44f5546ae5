package planner

import (
	"context"
	"log/slog"
	"math"

	"macroplanner"
)

// AutoFixEngine repairs an out-of-tolerance day. It never fails its caller:
// the worst case returns the best plan found, flagged out-of-range in the
// outcome. Scaling costs nothing and preserves food choices; regeneration is
// another full round trip, so it is bounded by the config's attempt ceiling.
type AutoFixEngine struct {
	gen macroplanner.Generator
}

func NewAutoFixEngine(gen macroplanner.Generator) *AutoFixEngine {
	return &AutoFixEngine{gen: gen}
}

// Fix classifies plan against targets and applies the matching repair.
// exclude lists meal slots absent from the plan (locked or carried-over
// slots spliced in by the caller afterward); regeneration attempts preserve
// that exclusion so the generator never touches them.
func (e *AutoFixEngine) Fix(ctx context.Context, plan *macroplanner.DayPlan, targets macroplanner.NutritionTargets, gc macroplanner.GenerationContext, exclude []macroplanner.MealType, cfg macroplanner.PlanConfig) (*macroplanner.DayPlan, DayOutcome) {
	outcome := DayOutcome{Date: plan.Date, Method: FixNone}

	cls := Classify(plan, targets, cfg)
	if cls.Kind == WithinTolerance {
		outcome.FixedInRange = true
		return plan, outcome
	}

	if !cfg.EnableAutoFix {
		slog.Info("AUTOFIX: Disabled by config; returning plan as-is", "date", plan.Date, "classification", cls.Kind.String())
		return plan, outcome
	}

	switch cls.Kind {
	case ScaleFixable:
		slog.Info("AUTOFIX: Scaling day", "date", plan.Date, "factor", cls.Factor)
		scalePlan(plan, cls.Factor)
		outcome.Method = FixScaling
		outcome.FixedInRange = true
		return plan, outcome

	case RegenerationRequired:
		return e.regenerate(ctx, plan, targets, gc, exclude, cfg)

	default:
		return plan, outcome
	}
}

// regenerate re-invokes the generator up to the configured ceiling, keeping
// whichever plan lands closest to the calorie target. A failed attempt
// consumes its slot; generation errors do not escape this layer.
func (e *AutoFixEngine) regenerate(ctx context.Context, plan *macroplanner.DayPlan, targets macroplanner.NutritionTargets, gc macroplanner.GenerationContext, exclude []macroplanner.MealType, cfg macroplanner.PlanConfig) (*macroplanner.DayPlan, DayOutcome) {
	outcome := DayOutcome{Date: plan.Date, Method: FixRegeneration}

	best := plan
	bestDev := calorieDeviation(plan, targets)

	for attempt := 1; attempt <= cfg.MaxRegenerationsPerDay; attempt++ {
		outcome.AttemptCount = attempt
		slog.Info("AUTOFIX: Regenerating day", "date", plan.Date, "attempt", attempt, "max", cfg.MaxRegenerationsPerDay)

		next, err := e.gen.GenerateDay(ctx, macroplanner.DayRequest{
			Date:    plan.Date,
			Targets: targets,
			Context: gc,
			Exclude: exclude,
		})
		if err != nil {
			slog.Warn("AUTOFIX: Regeneration attempt failed", "date", plan.Date, "attempt", attempt, "error", err)
			continue
		}

		switch cls := Classify(next, targets, cfg); cls.Kind {
		case WithinTolerance:
			outcome.FixedInRange = true
			return next, outcome
		case ScaleFixable:
			scalePlan(next, cls.Factor)
			outcome.FixedInRange = true
			return next, outcome
		case RegenerationRequired:
			if dev := calorieDeviation(next, targets); dev < bestDev {
				best, bestDev = next, dev
			}
		}
	}

	slog.Warn("AUTOFIX: Day still out of range after exhausting attempts",
		"date", plan.Date, "attempts", outcome.AttemptCount, "calorie_deviation", bestDev)
	return best, outcome
}

// scalePlan multiplies every unlocked item's quantity and macro fields by
// factor. Locked meals are carried over verbatim and stay untouched.
func scalePlan(plan *macroplanner.DayPlan, factor float64) {
	for i := range plan.Meals {
		if plan.Meals[i].Locked {
			continue
		}
		for j := range plan.Meals[i].Items {
			it := &plan.Meals[i].Items[j]
			it.Quantity *= factor
			it.Calories *= factor
			it.ProteinGrams *= factor
			it.CarbsGrams *= factor
			it.FatGrams *= factor
		}
	}
}

// calorieDeviation is the relative distance of the plan's calories from
// target, used to rank regeneration attempts.
func calorieDeviation(plan *macroplanner.DayPlan, targets macroplanner.NutritionTargets) float64 {
	if targets.CaloriesPerDay <= 0 {
		return 0
	}
	return math.Abs(plan.Totals().Calories-targets.CaloriesPerDay) / targets.CaloriesPerDay
}
