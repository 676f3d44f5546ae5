package macroplanner

import "math"

// Feasibility bounds. These are policy thresholds, not nutrition advice: the
// point is to reject targets the generator could never hit before paying for a
// model call.
const (
	minCaloriesPerDay = 800
	maxCaloriesPerDay = 10000

	// Slack allowed between the stated calorie target and the calories the
	// gram targets imply.
	macroCalorieBuffer = 1.10

	proteinShareCeilingStandard = 0.45
	proteinShareCeilingGLP1     = 0.50
	minCaloriesGLP1             = 1200
)

// ValidateFeasibility rejects numerically impossible targets. It is pure and
// runs before any quota consumption or external call — the cheapest possible
// rejection point. A nil return means the target is generable.
func ValidateFeasibility(targets NutritionTargets, profile Profile) error {
	if targets.CaloriesPerDay < minCaloriesPerDay || targets.CaloriesPerDay > maxCaloriesPerDay {
		return NewInfeasiblePlan(
			"calories per day must be between %d and %d, got %.0f; try %.0f",
			minCaloriesPerDay, maxCaloriesPerDay, targets.CaloriesPerDay,
			clamp(targets.CaloriesPerDay, minCaloriesPerDay, maxCaloriesPerDay))
	}

	if targets.ProteinGrams < 0 || targets.CarbsGrams < 0 || targets.FatGrams < 0 {
		return NewInfeasiblePlan(
			"macro targets must not be negative (protein %.0fg, carbs %.0fg, fat %.0fg)",
			targets.ProteinGrams, targets.CarbsGrams, targets.FatGrams)
	}

	implied := targets.MacroCalories()
	if implied > targets.CaloriesPerDay*macroCalorieBuffer {
		return NewInfeasiblePlan(
			"macro targets imply %.0f kcal, which exceeds the %.0f kcal target by more than %.0f%%; raise calories to at least %.0f or reduce macros",
			implied, targets.CaloriesPerDay, (macroCalorieBuffer-1)*100,
			math.Ceil(implied/macroCalorieBuffer))
	}

	if profile == ProfileGLP1 && targets.CaloriesPerDay < minCaloriesGLP1 {
		return NewInfeasiblePlan(
			"glp1 profile requires at least %d kcal per day, got %.0f",
			minCaloriesGLP1, targets.CaloriesPerDay)
	}

	ceiling := proteinShareCeilingStandard
	if profile == ProfileGLP1 {
		ceiling = proteinShareCeilingGLP1
	}
	proteinShare := targets.ProteinGrams * 4 / targets.CaloriesPerDay
	if proteinShare > ceiling {
		return NewInfeasiblePlan(
			"protein target of %.0fg is %.0f%% of the %.0f kcal budget, above the %.0f%% ceiling for the %s profile; try at most %.0fg",
			targets.ProteinGrams, proteinShare*100, targets.CaloriesPerDay, ceiling*100,
			profileOrStandard(profile), math.Floor(targets.CaloriesPerDay*ceiling/4))
	}

	return nil
}

func profileOrStandard(p Profile) Profile {
	if p == "" {
		return ProfileStandard
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
