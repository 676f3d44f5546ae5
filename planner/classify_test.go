package planner

import (
	"testing"

	"macroplanner"

	"github.com/stretchr/testify/assert"
)

func planWithTotals(cal, protein, carbs, fat float64) *macroplanner.DayPlan {
	// One item per meal, each carrying a quarter of the day.
	plan := &macroplanner.DayPlan{Date: "2026-03-02"}
	for _, mt := range macroplanner.MealOrder {
		plan.Meals = append(plan.Meals, macroplanner.Meal{
			Type: mt,
			Items: []macroplanner.FoodItem{{
				Name: "food", Quantity: 100, Unit: "g",
				Calories: cal / 4, ProteinGrams: protein / 4, CarbsGrams: carbs / 4, FatGrams: fat / 4,
			}},
		})
	}
	return plan
}

func TestClassify(t *testing.T) {
	targets := macroplanner.NutritionTargets{
		CaloriesPerDay: 2000, ProteinGrams: 150, CarbsGrams: 200, FatGrams: 65,
	}
	cfg := macroplanner.DefaultPlanConfig()

	tests := []struct {
		name       string
		plan       *macroplanner.DayPlan
		wantKind   ClassificationKind
		wantFactor float64
	}{
		{
			name:     "on target",
			plan:     planWithTotals(2000, 150, 200, 65),
			wantKind: WithinTolerance,
		},
		{
			name:     "inside tolerance band",
			plan:     planWithTotals(2100, 155, 210, 68),
			wantKind: WithinTolerance,
		},
		{
			name:       "uniform 70 percent scales up",
			plan:       planWithTotals(1400, 105, 140, 45.5),
			wantKind:   ScaleFixable,
			wantFactor: 1.4285,
		},
		{
			name:       "uniform 125 percent scales down",
			plan:       planWithTotals(2500, 187.5, 250, 81.25),
			wantKind:   ScaleFixable,
			wantFactor: 0.8,
		},
		{
			name:     "skewed macros need regeneration",
			plan:     planWithTotals(2000, 225, 120, 65), // protein +50%, carbs -40%
			wantKind: RegenerationRequired,
		},
		{
			name:     "factor beyond scale-up bound needs regeneration",
			plan:     planWithTotals(1000, 75, 100, 32.5), // would need 2.0x
			wantKind: RegenerationRequired,
		},
		{
			name:     "empty plan needs regeneration",
			plan:     &macroplanner.DayPlan{Date: "2026-03-02"},
			wantKind: RegenerationRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.plan, targets, cfg)
			assert.Equal(t, tt.wantKind, cls.Kind)
			if tt.wantFactor != 0 {
				assert.InDelta(t, tt.wantFactor, cls.Factor, 0.001)
			}
		})
	}
}

func TestClassifyMinScaleThreshold(t *testing.T) {
	// A proportional 1% deviation under a very tight tolerance: scaling by
	// ~1.01 would fix it, but the factor is under the churn threshold, so the
	// plan is accepted as-is.
	targets := macroplanner.NutritionTargets{CaloriesPerDay: 2000, ProteinGrams: 150}
	cfg := macroplanner.DefaultPlanConfig()
	cfg.TolerancePercent = 0.5

	plan := planWithTotals(1980, 148.5, 0, 0)
	cls := Classify(plan, targets, cfg)
	assert.Equal(t, WithinTolerance, cls.Kind)
}

func TestClassifyZeroTargetMacroUnconstrained(t *testing.T) {
	targets := macroplanner.NutritionTargets{CaloriesPerDay: 2000, ProteinGrams: 150}
	cfg := macroplanner.DefaultPlanConfig()

	// Carbs and fat targets are zero; whatever the plan contains is fine.
	plan := planWithTotals(2000, 150, 300, 80)
	cls := Classify(plan, targets, cfg)
	assert.Equal(t, WithinTolerance, cls.Kind)
}
