package bedrock

import (
	"encoding/json"
	"fmt"
	"strings"

	"macroplanner"
)

// absurdCalories is the per-day ceiling above which a declared total is
// treated as garbage rather than a large plan.
const absurdCalories = 30000

// extractJSON trims the model's final content down to the single JSON object
// it is contractually required to emit, tolerating stray prose or fences
// around it.
func extractJSON(content string) (string, error) {
	s := strings.TrimSpace(content)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object in model output")
	}
	return s[start : end+1], nil
}

// parseDayPlan decodes and validates a final day answer. expected is the slot
// list the generator was asked for, in order.
func parseDayPlan(content, date string, expected []macroplanner.MealType) (*macroplanner.DayPlan, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var plan macroplanner.DayPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("malformed day plan JSON: %w", err)
	}
	plan.Date = date

	if len(plan.Meals) != len(expected) {
		return nil, fmt.Errorf("expected %d meals, got %d", len(expected), len(plan.Meals))
	}
	for i, m := range plan.Meals {
		if m.Type != expected[i] {
			return nil, fmt.Errorf("meal %d: expected type %q, got %q", i, expected[i], m.Type)
		}
		if err := validMeal(m); err != nil {
			return nil, fmt.Errorf("meal %q: %w", m.Type, err)
		}
	}
	if t := plan.Totals(); t.Calories > absurdCalories {
		return nil, fmt.Errorf("declared total of %.0f kcal is absurd", t.Calories)
	}
	return &plan, nil
}

func parseMeal(content string, expected macroplanner.MealType) (*macroplanner.Meal, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var meal macroplanner.Meal
	if err := json.Unmarshal([]byte(raw), &meal); err != nil {
		return nil, fmt.Errorf("malformed meal JSON: %w", err)
	}
	if meal.Type != expected {
		return nil, fmt.Errorf("expected meal type %q, got %q", expected, meal.Type)
	}
	if err := validMeal(meal); err != nil {
		return nil, err
	}
	return &meal, nil
}

func parseFoodItem(content string) (*macroplanner.FoodItem, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var item macroplanner.FoodItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("malformed food item JSON: %w", err)
	}
	if err := validItem(item); err != nil {
		return nil, err
	}
	return &item, nil
}

func validMeal(m macroplanner.Meal) error {
	if len(m.Items) == 0 {
		return fmt.Errorf("meal has no items")
	}
	for i, it := range m.Items {
		if err := validItem(it); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func validItem(it macroplanner.FoodItem) error {
	if it.Name == "" {
		return fmt.Errorf("missing name")
	}
	if it.Quantity <= 0 {
		return fmt.Errorf("non-positive quantity %.2f", it.Quantity)
	}
	if it.Calories < 0 || it.ProteinGrams < 0 || it.CarbsGrams < 0 || it.FatGrams < 0 {
		return fmt.Errorf("negative macro value")
	}
	if it.Calories > absurdCalories {
		return fmt.Errorf("absurd calorie value %.0f", it.Calories)
	}
	return nil
}
