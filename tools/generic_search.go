package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"macroplanner/tools/storage"
)

type SearchGenericFood struct{ state storage.CatalogState }

func NewSearchGenericFood(state storage.CatalogState) *SearchGenericFood {
	return &SearchGenericFood{state: state}
}

func (t *SearchGenericFood) Name() string  { return "search_generic_food" }
func (t *SearchGenericFood) Title() string { return "Search Generic Foods" }
func (t *SearchGenericFood) Description() string {
	return "Searches unbranded foods by name and returns per-100g nutrition data."
}

func (t *SearchGenericFood) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query":  {Type: "string"},
			"locale": {Type: "string"},
			"limit":  {Type: "integer"},
		},
		Required: []string{"query"},
	}
}

func (t *SearchGenericFood) OutputSchema() *jsonschema.Schema {
	min := 0.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"foods": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"id":            {Type: "string"},
						"name":          {Type: "string"},
						"unit":          {Type: "string"},
						"serving_grams": {Type: "number", Minimum: &min},
						"per_100g": {
							Type: "object",
							Properties: map[string]*jsonschema.Schema{
								"calories": {Type: "number", Minimum: &min},
								"protein":  {Type: "number", Minimum: &min},
								"carbs":    {Type: "number", Minimum: &min},
								"fat":      {Type: "number", Minimum: &min},
							},
							Required: []string{"calories", "protein", "carbs", "fat"},
						},
					},
					Required: []string{"id", "name", "per_100g"},
				},
			},
		},
		Required: []string{"foods"},
	}
}

func (t *SearchGenericFood) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	query := stringInput(input, "query")
	if query == "" {
		return nil, fmt.Errorf("search_generic_food requires a query")
	}
	locale := stringInput(input, "locale")
	limit := intInput(input, "limit", defaultSearchLimit)

	cat, err := loadCatalog(ctx, t.state)
	if err != nil {
		return nil, err
	}

	// Initialize to prevent nil when empty
	foods := make([]map[string]any, 0)
	for _, f := range cat.Foods {
		if f.Brand != "" {
			continue
		}
		if locale != "" && f.Locale != "" && f.Locale != locale {
			continue
		}
		if !matches(f, query) {
			continue
		}
		foods = append(foods, foodResult(f))
		if len(foods) >= limit {
			break
		}
	}

	return map[string]any{"foods": foods}, nil
}
