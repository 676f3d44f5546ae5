// Package mock provides a deterministic Generator for tests and local runs.
// It fabricates plans arithmetically from the request's targets, so a caller
// can dial in exactly how far off-target a day lands and observe how the
// repair pipeline reacts.
package mock

import (
	"context"
	"fmt"
	"sync"

	"macroplanner"
)

// Generator implements macroplanner.Generator with canned arithmetic output.
// Zero value produces perfectly on-target plans.
type Generator struct {
	mu sync.Mutex

	// fraction scales every produced macro relative to its budget. 1.0 is
	// on-target, 0.5 is half the requested calories, and so on.
	fraction float64

	// dayFractions overrides fraction for specific dates.
	dayFractions map[string]float64

	// dayErrs fails GenerateDay for specific dates.
	dayErrs map[string]error

	// mealErr, when set, fails every GenerateMeal call.
	mealErr error

	// mealFraction scales GenerateMeal output relative to its budget. Falls
	// back to fraction when zero.
	mealFraction float64

	itemErr error

	dayCalls  int
	mealCalls int
	itemCalls int
}

type Option func(*Generator)

// WithFraction sets the global budget fraction for generated output.
func WithFraction(f float64) Option {
	return func(g *Generator) { g.fraction = f }
}

// WithDayFraction overrides the fraction for one date.
func WithDayFraction(date string, f float64) Option {
	return func(g *Generator) { g.dayFractions[date] = f }
}

// WithDayError makes GenerateDay fail for one date.
func WithDayError(date string, err error) Option {
	return func(g *Generator) { g.dayErrs[date] = err }
}

// WithMealError makes every GenerateMeal call fail.
func WithMealError(err error) Option {
	return func(g *Generator) { g.mealErr = err }
}

// WithMealFraction sets the budget fraction for regenerated meals.
func WithMealFraction(f float64) Option {
	return func(g *Generator) { g.mealFraction = f }
}

// WithItemError makes every ParseFoodItem call fail.
func WithItemError(err error) Option {
	return func(g *Generator) { g.itemErr = err }
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		fraction:     1.0,
		dayFractions: map[string]float64{},
		dayErrs:      map[string]error{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DayCalls reports how many times GenerateDay ran.
func (g *Generator) DayCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dayCalls
}

// MealCalls reports how many times GenerateMeal ran.
func (g *Generator) MealCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mealCalls
}

// ItemCalls reports how many times ParseFoodItem ran.
func (g *Generator) ItemCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.itemCalls
}

// TotalCalls reports the combined call count across all three operations.
func (g *Generator) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dayCalls + g.mealCalls + g.itemCalls
}

func (g *Generator) GenerateDay(ctx context.Context, req macroplanner.DayRequest) (*macroplanner.DayPlan, error) {
	g.mu.Lock()
	g.dayCalls++
	frac := g.fraction
	if f, ok := g.dayFractions[req.Date]; ok {
		frac = f
	}
	err := g.dayErrs[req.Date]
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, macroplanner.NewTimeout(err)
	}
	if err != nil {
		return nil, err
	}

	excluded := make(map[macroplanner.MealType]bool, len(req.Exclude))
	for _, mt := range req.Exclude {
		excluded[mt] = true
	}

	// Renormalize slot shares over the included meals so the produced day
	// sums to the requested budget even when slots are excluded.
	splits := macroplanner.SplitsFor(req.Context.Profile)
	var includedShare float64
	for _, split := range splits {
		if !excluded[split.Type] {
			includedShare += split.Fraction
		}
	}
	if includedShare <= 0 {
		return &macroplanner.DayPlan{Date: req.Date, Explanation: "scripted plan"}, nil
	}

	plan := &macroplanner.DayPlan{Date: req.Date, Explanation: "scripted plan"}
	for _, split := range splits {
		if excluded[split.Type] {
			continue
		}
		share := split.Fraction / includedShare
		budget := macroplanner.NutritionTargets{
			CaloriesPerDay: req.Targets.CaloriesPerDay * share,
			ProteinGrams:   req.Targets.ProteinGrams * share,
			CarbsGrams:     req.Targets.CarbsGrams * share,
			FatGrams:       req.Targets.FatGrams * share,
		}
		plan.Meals = append(plan.Meals, mealFromBudget(split.Type, budget, frac))
	}
	return plan, nil
}

func (g *Generator) GenerateMeal(ctx context.Context, req macroplanner.MealRequest) (*macroplanner.Meal, error) {
	g.mu.Lock()
	g.mealCalls++
	frac := g.mealFraction
	if frac == 0 {
		frac = g.fraction
	}
	err := g.mealErr
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, macroplanner.NewTimeout(err)
	}
	if err != nil {
		return nil, err
	}

	meal := mealFromBudget(req.Type, req.Budget, frac)
	return &meal, nil
}

func (g *Generator) ParseFoodItem(ctx context.Context, description string) (*macroplanner.FoodItem, error) {
	g.mu.Lock()
	g.itemCalls++
	err := g.itemErr
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, macroplanner.NewTimeout(err)
	}
	if err != nil {
		return nil, err
	}

	return &macroplanner.FoodItem{
		Name:         description,
		Quantity:     100,
		Unit:         "g",
		Calories:     150,
		ProteinGrams: 10,
		CarbsGrams:   15,
		FatGrams:     5,
	}, nil
}

// mealFromBudget fabricates a single-item meal landing at frac of the budget.
func mealFromBudget(mt macroplanner.MealType, budget macroplanner.NutritionTargets, frac float64) macroplanner.Meal {
	return macroplanner.Meal{
		Type: mt,
		Items: []macroplanner.FoodItem{{
			Name:         fmt.Sprintf("scripted %s", mt),
			Quantity:     100,
			Unit:         "g",
			Calories:     budget.CaloriesPerDay * frac,
			ProteinGrams: budget.ProteinGrams * frac,
			CarbsGrams:   budget.CarbsGrams * frac,
			FatGrams:     budget.FatGrams * frac,
		}},
	}
}
