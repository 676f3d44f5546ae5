package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"macroplanner/tools/storage"
)

// Per100g holds macro density for 100 grams of a food.
type Per100g struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Food is one catalog entry. Brand is empty for generic foods.
type Food struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Brand        string  `json:"brand,omitempty"`
	Locale       string  `json:"locale,omitempty"`
	Unit         string  `json:"unit"`
	ServingGrams float64 `json:"serving_grams"`
	Per100g      Per100g `json:"per_100g"`
}

// Catalog is the lookup corpus the search tools run over.
type Catalog struct {
	Foods []Food `json:"foods"`
}

func loadCatalog(ctx context.Context, state storage.CatalogState) (Catalog, error) {
	b, err := state.Load(ctx)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	return c, json.Unmarshal(b, &c)
}

// matches reports whether every whitespace-separated term of query appears in
// the food's name (case-insensitive).
func matches(f Food, query string) bool {
	name := strings.ToLower(f.Name)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(name, term) {
			return false
		}
	}
	return true
}

func foodResult(f Food) map[string]any {
	return map[string]any{
		"id":            f.ID,
		"name":          f.Name,
		"brand":         f.Brand,
		"unit":          f.Unit,
		"serving_grams": f.ServingGrams,
		"per_100g": map[string]any{
			"calories": f.Per100g.Calories,
			"protein":  f.Per100g.Protein,
			"carbs":    f.Per100g.Carbs,
			"fat":      f.Per100g.Fat,
		},
	}
}

const defaultSearchLimit = 5

func intInput(input map[string]any, key string, def int) int {
	if v, ok := input[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

func stringInput(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}
