package macroplanner

import (
	"context"
	"net/http"
	"time"

	"macroplanner/tools"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ToolProvider exposes the food-lookup tools declared to the generative
// service.
type ToolProvider interface {
	GetTools() []tools.Tool
	GetTool(name string) (tools.Tool, error)
}

// Notifier posts a human-readable message about a completed batch run to an
// external channel (e.g. a chat webhook).
type Notifier interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// Generator drives the external generative service for a single day, a single
// meal, or a single free-text food item. Implementations live under
// coordinator/; the planner package only sees this interface.
type Generator interface {
	GenerateDay(ctx context.Context, req DayRequest) (*DayPlan, error)
	GenerateMeal(ctx context.Context, req MealRequest) (*Meal, error)
	ParseFoodItem(ctx context.Context, description string) (*FoodItem, error)
}

// Profile selects the percentage tables and feasibility ceilings used when
// splitting a day's budget across meals.
type Profile string

const (
	ProfileStandard Profile = "standard"
	ProfileGLP1     Profile = "glp1"
)

// MealType is one of the four fixed eating occasions in a day plan.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// MealOrder is the canonical slot order of a day plan. Every generated day has
// exactly these four meals in this order.
var MealOrder = [4]MealType{MealBreakfast, MealLunch, MealDinner, MealSnack}

// NutritionTargets is the caller-supplied daily macro goal. Immutable for the
// duration of a run.
type NutritionTargets struct {
	CaloriesPerDay float64 `json:"calories_per_day"`
	ProteinGrams   float64 `json:"protein_grams"`
	CarbsGrams     float64 `json:"carbs_grams"`
	FatGrams       float64 `json:"fat_grams"`
}

// MacroCalories returns the calories implied by the gram targets (protein and
// carbs at 4 kcal/g, fat at 9 kcal/g).
func (t NutritionTargets) MacroCalories() float64 {
	return t.ProteinGrams*4 + t.CarbsGrams*4 + t.FatGrams*9
}

// FoodItem is one food entry in a meal. Macro fields are totals for the stated
// quantity, not per-100g.
type FoodItem struct {
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	Calories     float64 `json:"calories"`
	ProteinGrams float64 `json:"protein_grams"`
	CarbsGrams   float64 `json:"carbs_grams"`
	FatGrams     float64 `json:"fat_grams"`
}

// Meal is a named eating occasion. Locked meals are carried over from a prior
// week and are never mutated by the repair pipeline.
type Meal struct {
	Type   MealType   `json:"type"`
	Items  []FoodItem `json:"items"`
	Locked bool       `json:"locked,omitempty"`
}

// Totals sums the macro fields across the meal's items.
func (m Meal) Totals() MacroTotals {
	var t MacroTotals
	for _, it := range m.Items {
		t.Calories += it.Calories
		t.ProteinGrams += it.ProteinGrams
		t.CarbsGrams += it.CarbsGrams
		t.FatGrams += it.FatGrams
	}
	return t
}

// DayPlan is one day's meals plus the model's explanation string.
type DayPlan struct {
	Date        string `json:"date"` // YYYY-MM-DD
	Meals       []Meal `json:"meals"`
	Explanation string `json:"explanation,omitempty"`
}

// MacroTotals is a summed macro tuple.
type MacroTotals struct {
	Calories     float64 `json:"calories"`
	ProteinGrams float64 `json:"protein_grams"`
	CarbsGrams   float64 `json:"carbs_grams"`
	FatGrams     float64 `json:"fat_grams"`
}

// Totals sums macros across every item of every meal.
func (d *DayPlan) Totals() MacroTotals {
	var t MacroTotals
	for _, m := range d.Meals {
		mt := m.Totals()
		t.Calories += mt.Calories
		t.ProteinGrams += mt.ProteinGrams
		t.CarbsGrams += mt.CarbsGrams
		t.FatGrams += mt.FatGrams
	}
	return t
}

// MealOfType returns the index of the first meal with the given type, or -1.
func (d *DayPlan) MealOfType(mt MealType) int {
	for i, m := range d.Meals {
		if m.Type == mt {
			return i
		}
	}
	return -1
}

// IsValid checks the structural requirements for a generated day: exactly four
// meals in canonical order, at least one item per meal, no negative macro.
func (d *DayPlan) IsValid() bool {
	if len(d.Meals) != len(MealOrder) {
		return false
	}
	for i, m := range d.Meals {
		if m.Type != MealOrder[i] || len(m.Items) == 0 {
			return false
		}
		for _, it := range m.Items {
			if it.Name == "" || it.Quantity <= 0 {
				return false
			}
			if it.Calories < 0 || it.ProteinGrams < 0 || it.CarbsGrams < 0 || it.FatGrams < 0 {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy. The repair pipeline mutates plans in place, so
// callers that need the original intact copy first.
func (d *DayPlan) Clone() *DayPlan {
	cp := &DayPlan{Date: d.Date, Explanation: d.Explanation, Meals: make([]Meal, len(d.Meals))}
	for i, m := range d.Meals {
		items := make([]FoodItem, len(m.Items))
		copy(items, m.Items)
		cp.Meals[i] = Meal{Type: m.Type, Items: items, Locked: m.Locked}
	}
	return cp
}

// WeeklyPlan is the assembled result of a 7-day batch.
type WeeklyPlan struct {
	WeekStartDate string     `json:"week_start_date"` // YYYY-MM-DD, day 0
	Days          []*DayPlan `json:"days"`
	SessionID     string     `json:"session_id,omitempty"`
}

// GenerationContext carries user preference data forwarded verbatim into the
// generation prompt. The pipeline never interprets it beyond the profile.
type GenerationContext struct {
	UserID       string   `json:"user_id"`
	Profile      Profile  `json:"profile"`
	Locale       string   `json:"locale,omitempty"`
	DietType     string   `json:"diet_type,omitempty"`
	FoodsToAvoid []string `json:"foods_to_avoid,omitempty"`
	FoodsToLike  []string `json:"foods_to_like,omitempty"`
}

// DayRequest is the input to Generator.GenerateDay.
type DayRequest struct {
	Date    string
	Targets NutritionTargets
	Context GenerationContext
	// Exclude lists meal slots the generator must leave out (locked slots the
	// orchestrator splices back in afterward). Empty means a full 4-meal day.
	Exclude []MealType
}

// MealRequest is the input to Generator.GenerateMeal: regenerate one slot
// against the remaining budget after the rest of the day is accounted for.
type MealRequest struct {
	Date    string
	Type    MealType
	Budget  NutritionTargets
	Context GenerationContext
}

// PlanConfig is the tunable repair policy. ScaleDownMax < 1 <= ScaleUpMax.
type PlanConfig struct {
	TolerancePercent       float64 `json:"tolerance_percent"`
	ScaleUpMax             float64 `json:"scale_up_max"`
	ScaleDownMax           float64 `json:"scale_down_max"`
	MinScaleThreshold      float64 `json:"min_scale_threshold"`
	MaxRegenerationsPerDay int     `json:"max_regenerations_per_day"`
	EnableAutoFix          bool    `json:"enable_auto_fix"`
}

// Preset names accepted by PlanConfigPreset.
const (
	PresetDefault   = "default"
	PresetStrict    = "strict"
	PresetRelaxed   = "relaxed"
	PresetPrecision = "precision"
)

// DefaultPlanConfig is the policy used when the caller supplies no override.
func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		TolerancePercent:       10,
		ScaleUpMax:             1.50,
		ScaleDownMax:           0.70,
		MinScaleThreshold:      0.03,
		MaxRegenerationsPerDay: 1,
		EnableAutoFix:          true,
	}
}

// PlanConfigPreset resolves a named preset. Unknown names fall back to the
// default policy.
func PlanConfigPreset(name string) PlanConfig {
	switch name {
	case PresetStrict:
		return PlanConfig{
			TolerancePercent:       5,
			ScaleUpMax:             1.25,
			ScaleDownMax:           0.80,
			MinScaleThreshold:      0.02,
			MaxRegenerationsPerDay: 2,
			EnableAutoFix:          true,
		}
	case PresetRelaxed:
		return PlanConfig{
			TolerancePercent:       15,
			ScaleUpMax:             1.75,
			ScaleDownMax:           0.60,
			MinScaleThreshold:      0.05,
			MaxRegenerationsPerDay: 1,
			EnableAutoFix:          true,
		}
	case PresetPrecision:
		return PlanConfig{
			TolerancePercent:       3,
			ScaleUpMax:             1.20,
			ScaleDownMax:           0.85,
			MinScaleThreshold:      0.01,
			MaxRegenerationsPerDay: 3,
			EnableAutoFix:          true,
		}
	default:
		return DefaultPlanConfig()
	}
}

// MealSplit is one slot's share of the daily calorie and protein budget.
type MealSplit struct {
	Type     MealType
	Fraction float64
}

// mealSplits maps a profile to its per-slot budget shares. The glp1 table
// shifts weight off dinner into the snack to keep individual meals smaller.
var mealSplits = map[Profile][]MealSplit{
	ProfileStandard: {
		{MealBreakfast, 0.25},
		{MealLunch, 0.30},
		{MealDinner, 0.35},
		{MealSnack, 0.10},
	},
	ProfileGLP1: {
		{MealBreakfast, 0.25},
		{MealLunch, 0.30},
		{MealDinner, 0.30},
		{MealSnack, 0.15},
	},
}

// SplitsFor returns the per-meal budget shares for a profile, defaulting to
// the standard table for unknown profiles.
func SplitsFor(p Profile) []MealSplit {
	if s, ok := mealSplits[p]; ok {
		return s
	}
	return mealSplits[ProfileStandard]
}

// MealBudget scales the daily targets down to one slot's share.
func MealBudget(targets NutritionTargets, p Profile, mt MealType) NutritionTargets {
	for _, s := range SplitsFor(p) {
		if s.Type == mt {
			return NutritionTargets{
				CaloriesPerDay: targets.CaloriesPerDay * s.Fraction,
				ProteinGrams:   targets.ProteinGrams * s.Fraction,
				CarbsGrams:     targets.CarbsGrams * s.Fraction,
				FatGrams:       targets.FatGrams * s.Fraction,
			}
		}
	}
	return NutritionTargets{}
}

// AttemptRecord is one row of the append-only generation event log. The
// pipeline writes these; nothing in the pipeline reads them back.
type AttemptRecord struct {
	UserID    string        `json:"user_id"`
	Date      string        `json:"date"`
	InputHash string        `json:"input_hash"`
	Outcome   string        `json:"outcome"` // ok | failed | still_out_of_range
	Totals    MacroTotals   `json:"totals"`
	Latency   time.Duration `json:"latency"`
	At        time.Time     `json:"at"`
}
