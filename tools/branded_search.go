package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"macroplanner/tools/storage"
)

type SearchBrandedItem struct{ state storage.CatalogState }

func NewSearchBrandedItem(state storage.CatalogState) *SearchBrandedItem {
	return &SearchBrandedItem{state: state}
}

func (t *SearchBrandedItem) Name() string  { return "search_branded_item" }
func (t *SearchBrandedItem) Title() string { return "Search Branded Items" }
func (t *SearchBrandedItem) Description() string {
	return "Searches branded products by name, optionally filtered by brand, and returns per-100g nutrition data."
}

func (t *SearchBrandedItem) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query":  {Type: "string"},
			"brand":  {Type: "string"},
			"locale": {Type: "string"},
			"limit":  {Type: "integer"},
		},
		Required: []string{"query"},
	}
}

func (t *SearchBrandedItem) OutputSchema() *jsonschema.Schema {
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
						"brand":         {Type: "string"},
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
					Required: []string{"id", "name", "brand", "per_100g"},
				},
			},
		},
		Required: []string{"foods"},
	}
}

func (t *SearchBrandedItem) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	query := stringInput(input, "query")
	if query == "" {
		return nil, fmt.Errorf("search_branded_item requires a query")
	}
	brand := stringInput(input, "brand")
	locale := stringInput(input, "locale")
	limit := intInput(input, "limit", defaultSearchLimit)

	cat, err := loadCatalog(ctx, t.state)
	if err != nil {
		return nil, err
	}

	foods := make([]map[string]any, 0)
	for _, f := range cat.Foods {
		if f.Brand == "" {
			continue
		}
		if brand != "" && !strings.EqualFold(f.Brand, brand) {
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
