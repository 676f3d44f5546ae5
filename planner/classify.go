// Package planner holds the deterministic half of the pipeline: deviation
// classification, the two repair strategies, week-level orchestration, and the
// progress/metrics machinery around a batch run.
package planner

import (
	"math"

	"macroplanner"
)

// ClassificationKind tags the repair strategy a day plan needs.
type ClassificationKind int

const (
	// WithinTolerance means every macro is close enough; no action.
	WithinTolerance ClassificationKind = iota
	// ScaleFixable means one uniform portion-size factor repairs the day.
	ScaleFixable
	// RegenerationRequired means the deviation is skewed across macros and
	// cannot be fixed by uniform scaling.
	RegenerationRequired
)

func (k ClassificationKind) String() string {
	switch k {
	case WithinTolerance:
		return "within_tolerance"
	case ScaleFixable:
		return "scale_fixable"
	case RegenerationRequired:
		return "regeneration_required"
	default:
		return "unknown"
	}
}

// Classification is the evaluator's verdict. Factor is meaningful only for
// ScaleFixable.
type Classification struct {
	Kind   ClassificationKind
	Factor float64
}

// Classify sums the day's produced macros and decides how to repair the
// deviation from target, if any. The factor is derived from calories alone;
// the day is scale-fixable only when that same factor also lands protein,
// carbs and fat within tolerance. Scaling is free while regeneration costs
// another full round trip, so the classifier leans toward scaling whenever it
// would genuinely suffice.
func Classify(plan *macroplanner.DayPlan, targets macroplanner.NutritionTargets, cfg macroplanner.PlanConfig) Classification {
	totals := plan.Totals()
	tol := cfg.TolerancePercent / 100

	if withinTol(totals.Calories, targets.CaloriesPerDay, tol) &&
		withinTol(totals.ProteinGrams, targets.ProteinGrams, tol) &&
		withinTol(totals.CarbsGrams, targets.CarbsGrams, tol) &&
		withinTol(totals.FatGrams, targets.FatGrams, tol) {
		return Classification{Kind: WithinTolerance}
	}

	if totals.Calories <= 0 {
		return Classification{Kind: RegenerationRequired}
	}

	factor := targets.CaloriesPerDay / totals.Calories

	if factor < cfg.ScaleDownMax || factor > cfg.ScaleUpMax {
		return Classification{Kind: RegenerationRequired}
	}

	// Scaling only helps when the deviation is proportional: the calorie
	// factor must also land the gram macros in range. A skewed day (say
	// protein high while carbs are low) cannot be fixed by portion sizes.
	if !withinTol(totals.ProteinGrams*factor, targets.ProteinGrams, tol) ||
		!withinTol(totals.CarbsGrams*factor, targets.CarbsGrams, tol) ||
		!withinTol(totals.FatGrams*factor, targets.FatGrams, tol) {
		return Classification{Kind: RegenerationRequired}
	}

	// Scaling would work but the factor is negligible; not worth churning
	// portions over.
	if math.Abs(factor-1) <= cfg.MinScaleThreshold {
		return Classification{Kind: WithinTolerance}
	}

	return Classification{Kind: ScaleFixable, Factor: factor}
}

// withinTol reports whether actual lies within tol (a fraction) of target. A
// zero target constrains nothing.
func withinTol(actual, target, tol float64) bool {
	if target <= 0 {
		return true
	}
	return math.Abs(actual-target) <= target*tol
}
