package bedrock

import (
	"fmt"
	"strings"

	"macroplanner"
)

func promptTools(tp macroplanner.ToolProvider) []Tool {
	ts := tp.GetTools()
	out := make([]Tool, 0, len(ts))
	for _, tool := range ts {
		out = append(out, Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return out
}

func newPrompt(system, task string, tp macroplanner.ToolProvider) Prompt {
	return Prompt{
		Messages: []Message{
			{
				Role:    "system",
				Content: []MessagePart{{Type: "text", Text: system}},
			},
			{
				Role:    "user",
				Content: []MessagePart{{Type: "text", Text: task}},
			},
		},
		Tools: promptTools(tp),
	}
}

// NewDayPrompt builds the prompt for a full (or partial, when slots are
// excluded) day generation, with per-meal sub-budgets from the profile's
// percentage table.
func NewDayPrompt(req macroplanner.DayRequest, tp macroplanner.ToolProvider) Prompt {
	excluded := make(map[macroplanner.MealType]bool, len(req.Exclude))
	for _, mt := range req.Exclude {
		excluded[mt] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan the meals for %s.\n", req.Date)
	fmt.Fprintf(&b, "Daily targets: %.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fat.\n",
		req.Targets.CaloriesPerDay, req.Targets.ProteinGrams, req.Targets.CarbsGrams, req.Targets.FatGrams)

	// Renormalize slot shares over the included meals so the sub-budgets sum
	// to the stated daily targets even on partial days.
	splits := macroplanner.SplitsFor(req.Context.Profile)
	var includedShare float64
	for _, split := range splits {
		if !excluded[split.Type] {
			includedShare += split.Fraction
		}
	}

	b.WriteString("Per-meal budgets:\n")
	for _, split := range splits {
		if excluded[split.Type] || includedShare <= 0 {
			continue
		}
		share := split.Fraction / includedShare
		fmt.Fprintf(&b, "- %s: %.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fat\n",
			split.Type,
			req.Targets.CaloriesPerDay*share,
			req.Targets.ProteinGrams*share,
			req.Targets.CarbsGrams*share,
			req.Targets.FatGrams*share,
		)
	}
	if len(req.Exclude) > 0 {
		names := make([]string, len(req.Exclude))
		for i, mt := range req.Exclude {
			names[i] = string(mt)
		}
		fmt.Fprintf(&b, "Do NOT include these meals, they are already planned: %s.\n", strings.Join(names, ", "))
	}

	writeContext(&b, req.Context)

	return newPrompt(daySystemPrompt, b.String(), tp)
}

// NewMealPrompt builds the prompt for regenerating a single meal slot against
// a remaining budget.
func NewMealPrompt(req macroplanner.MealRequest, tp macroplanner.ToolProvider) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan a single %s for %s.\n", req.Type, req.Date)
	fmt.Fprintf(&b, "This meal's budget: %.0f kcal, %.0fg protein, %.0fg carbs, %.0fg fat.\n",
		req.Budget.CaloriesPerDay, req.Budget.ProteinGrams, req.Budget.CarbsGrams, req.Budget.FatGrams)
	b.WriteString("Hit the budget as closely as possible; the rest of the day is fixed.\n")
	writeContext(&b, req.Context)

	return newPrompt(mealSystemPrompt, b.String(), tp)
}

// NewItemPrompt builds the prompt for parsing one free-text food description
// into a structured item.
func NewItemPrompt(description string, tp macroplanner.ToolProvider) Prompt {
	task := fmt.Sprintf("Parse this food description into one structured item: %q\n", description)
	return newPrompt(itemSystemPrompt, task, tp)
}

func writeContext(b *strings.Builder, gc macroplanner.GenerationContext) {
	if gc.DietType != "" {
		fmt.Fprintf(b, "Diet type: %s.\n", gc.DietType)
	}
	if len(gc.FoodsToAvoid) > 0 {
		fmt.Fprintf(b, "Avoid: %s.\n", strings.Join(gc.FoodsToAvoid, ", "))
	}
	if len(gc.FoodsToLike) > 0 {
		fmt.Fprintf(b, "Prefer: %s.\n", strings.Join(gc.FoodsToLike, ", "))
	}
	if gc.Locale != "" {
		fmt.Fprintf(b, "Use locale %s when searching foods.\n", gc.Locale)
	}
}

const sharedToolRules = `TOOLS
- You have access to the tools declared in the "tools" array.
- Use search_generic_food for whole foods and search_branded_item for packaged products; use calculate_recipe_macros to total a candidate list of (foodId, grams) before finalizing.
- When you need data, CALL THE TOOL natively (do NOT print a JSON blob describing a call).
- Never invent nutrition numbers. Every item's macros must come from tool results, scaled to the chosen quantity.
- If a tool result contains an "error" field, adjust your query or pick a different food and try again.
- Do not re-call a tool with identical arguments.`

const daySystemPrompt = `You are a macro-planning assistant.

GOAL
Build one day of meals hitting the numeric targets in the task, using the food lookup tools for all nutrition data, then return the final day as JSON.

OUTPUT CONTRACT
- Your final response must be ONE valid JSON object only (no extra text, no markdown, no code fences). Start with '{' and end with '}'.
- Shape:
{
  "explanation": string,             // <= 300 chars: how the plan meets the targets
  "meals": [                         // one entry per requested meal, in the order given
    {
      "type": string,                // "breakfast" | "lunch" | "dinner" | "snack"
      "items": [
        {
          "name": string,
          "quantity": number,        // > 0
          "unit": string,            // "g", "ml", "bar", ...
          "calories": number,        // totals for the stated quantity, all >= 0
          "protein_grams": number,
          "carbs_grams": number,
          "fat_grams": number
        }
      ]
    }
  ]
}

` + sharedToolRules + `

PLANNING RULES
- Include exactly the requested meals, each with 1-5 items.
- Keep each meal near its stated sub-budget; the daily total matters most.
- Scale quantities so the day's summed calories land within a few percent of the target.`

const mealSystemPrompt = `You are a macro-planning assistant.

GOAL
Build ONE meal hitting the numeric budget in the task, using the food lookup tools for all nutrition data, then return the meal as JSON.

OUTPUT CONTRACT
- Your final response must be ONE valid JSON object only (no extra text, no markdown, no code fences).
- Shape:
{
  "type": string,                    // the requested meal type
  "items": [
    {
      "name": string,
      "quantity": number,
      "unit": string,
      "calories": number,
      "protein_grams": number,
      "carbs_grams": number,
      "fat_grams": number
    }
  ]
}

` + sharedToolRules

const itemSystemPrompt = `You are a food-entry parser.

GOAL
Resolve the described food and portion against the lookup tools and return ONE structured item as JSON.

OUTPUT CONTRACT
- Your final response must be ONE valid JSON object only (no extra text, no markdown, no code fences).
- Shape:
{
  "name": string,
  "quantity": number,
  "unit": string,
  "calories": number,
  "protein_grams": number,
  "carbs_grams": number,
  "fat_grams": number
}

` + sharedToolRules
