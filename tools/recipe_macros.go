package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"macroplanner/tools/storage"
)

type CalculateRecipeMacros struct{ state storage.CatalogState }

func NewCalculateRecipeMacros(state storage.CatalogState) *CalculateRecipeMacros {
	return &CalculateRecipeMacros{state: state}
}

func (t *CalculateRecipeMacros) Name() string  { return "calculate_recipe_macros" }
func (t *CalculateRecipeMacros) Title() string { return "Calculate Recipe Macros" }
func (t *CalculateRecipeMacros) Description() string {
	return "Sums calories and macros for a list of (foodId, grams) ingredients."
}

func (t *CalculateRecipeMacros) InputSchema() *jsonschema.Schema {
	minGrams := 0.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"ingredients": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"foodId": {Type: "string"},
						"grams":  {Type: "number", Minimum: &minGrams},
					},
					Required: []string{"foodId", "grams"},
				},
			},
		},
		Required: []string{"ingredients"},
	}
}

func (t *CalculateRecipeMacros) OutputSchema() *jsonschema.Schema {
	min := 0.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"calories": {Type: "number", Minimum: &min},
			"protein":  {Type: "number", Minimum: &min},
			"carbs":    {Type: "number", Minimum: &min},
			"fat":      {Type: "number", Minimum: &min},
		},
		Required: []string{"calories", "protein", "carbs", "fat"},
	}
}

func (t *CalculateRecipeMacros) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	raw, ok := input["ingredients"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("calculate_recipe_macros requires a non-empty ingredients array")
	}

	cat, err := loadCatalog(ctx, t.state)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Food, len(cat.Foods))
	for _, f := range cat.Foods {
		byID[f.ID] = f
	}

	var calories, protein, carbs, fat float64
	for i, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("ingredient %d is not an object", i)
		}
		id, _ := m["foodId"].(string)
		grams, _ := m["grams"].(float64)
		if id == "" || grams <= 0 {
			return nil, fmt.Errorf("ingredient %d needs a foodId and positive grams", i)
		}
		f, found := byID[id]
		if !found {
			return nil, fmt.Errorf("unknown foodId %q", id)
		}
		scale := grams / 100
		calories += f.Per100g.Calories * scale
		protein += f.Per100g.Protein * scale
		carbs += f.Per100g.Carbs * scale
		fat += f.Per100g.Fat * scale
	}

	return map[string]any{
		"calories": calories,
		"protein":  protein,
		"carbs":    carbs,
		"fat":      fat,
	}, nil
}
