package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"macroplanner"
	"macroplanner/tools"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Ceilings bounds the tool loop per operation kind. Full-day generation gets
// the most room; parsing one item needs far less.
type Ceilings struct {
	Day  int
	Meal int
	Item int
}

// DefaultCeilings mirrors PlannerConfig's defaults.
func DefaultCeilings() Ceilings { return Ceilings{Day: 20, Meal: 10, Item: 5} }

// Client drives the bounded multi-turn tool loop against Bedrock and parses
// the final answer into domain types. It implements macroplanner.Generator.
// Retry policy lives one layer up, in the auto-fix engine: a failed call is
// returned as-is.
type Client struct {
	llm            llmClient
	toolProvider   macroplanner.ToolProvider
	ceilings       Ceilings
	logger         macroplanner.GenerationLogger
	tracerProvider *trace.TracerProvider
}

type llmClient interface {
	Invoke(ctx context.Context, prompt Prompt) (Response, error)
}

// NewClient initializes a new generation client.
func NewClient(llm llmClient, tp macroplanner.ToolProvider, ceilings Ceilings, logger macroplanner.GenerationLogger, tracerProvider *trace.TracerProvider) *Client {
	if ceilings.Day <= 0 {
		ceilings = DefaultCeilings()
	}
	return &Client{
		llm:            llm,
		toolProvider:   tp,
		ceilings:       ceilings,
		logger:         logger,
		tracerProvider: tracerProvider,
	}
}

// GenerateDay runs the tool loop for one day and validates the final plan.
func (c *Client) GenerateDay(ctx context.Context, req macroplanner.DayRequest) (*macroplanner.DayPlan, error) {
	ctx, span := otel.Tracer(macroplanner.TracerNameBedrock).Start(ctx, "Client.GenerateDay")
	defer span.End()

	slog.Info("GENERATION: Starting day run", "date", req.Date, "user_id", req.Context.UserID, "excluded", req.Exclude)

	excluded := make(map[macroplanner.MealType]bool, len(req.Exclude))
	for _, mt := range req.Exclude {
		excluded[mt] = true
	}
	expected := make([]macroplanner.MealType, 0, len(macroplanner.MealOrder))
	for _, mt := range macroplanner.MealOrder {
		if !excluded[mt] {
			expected = append(expected, mt)
		}
	}

	var plan *macroplanner.DayPlan
	prompt := NewDayPrompt(req, c.toolProvider)
	err := c.runLoop(ctx, "day", req.Date, prompt, c.ceilings.Day, func(content string) error {
		p, perr := parseDayPlan(content, req.Date, expected)
		if perr != nil {
			return perr
		}
		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sanity check only; classification is the evaluator's job one layer up.
	if len(req.Exclude) == 0 {
		if total := plan.Totals().Calories; math.Abs(total-req.Targets.CaloriesPerDay) > req.Targets.CaloriesPerDay*0.20 {
			slog.Warn("GENERATION: Declared calories deviate more than 20% from target",
				"date", req.Date, "declared", total, "target", req.Targets.CaloriesPerDay)
		}
	}

	return plan, nil
}

// GenerateMeal regenerates a single slot against a remaining budget.
func (c *Client) GenerateMeal(ctx context.Context, req macroplanner.MealRequest) (*macroplanner.Meal, error) {
	ctx, span := otel.Tracer(macroplanner.TracerNameBedrock).Start(ctx, "Client.GenerateMeal")
	defer span.End()

	slog.Info("GENERATION: Starting meal run", "date", req.Date, "type", req.Type, "user_id", req.Context.UserID)

	var meal *macroplanner.Meal
	prompt := NewMealPrompt(req, c.toolProvider)
	err := c.runLoop(ctx, "meal", req.Date, prompt, c.ceilings.Meal, func(content string) error {
		m, perr := parseMeal(content, req.Type)
		if perr != nil {
			return perr
		}
		meal = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meal, nil
}

// ParseFoodItem resolves one free-text description into a structured item.
func (c *Client) ParseFoodItem(ctx context.Context, description string) (*macroplanner.FoodItem, error) {
	ctx, span := otel.Tracer(macroplanner.TracerNameBedrock).Start(ctx, "Client.ParseFoodItem")
	defer span.End()

	var item *macroplanner.FoodItem
	prompt := NewItemPrompt(description, c.toolProvider)
	err := c.runLoop(ctx, "item", "", prompt, c.ceilings.Item, func(content string) error {
		it, perr := parseFoodItem(content)
		if perr != nil {
			return perr
		}
		item = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// runLoop is the bounded multi-turn loop: invoke the model; execute any
// requested tool calls and feed results back verbatim; accept a final answer
// once parse succeeds. Tool failures are handed back to the model as data,
// never propagated — the model may recover by trying a different food. Exit
// conditions are exactly two: parse success, or the iteration ceiling.
func (c *Client) runLoop(ctx context.Context, op, date string, prompt Prompt, maxIter int, parse func(content string) error) error {
	for iter := 0; iter < maxIter; iter++ {
		iterLog := macroplanner.IterationLog{Operation: op, Date: date, Iteration: iter + 1, Timestamp: time.Now()}

		if b, merr := json.Marshal(prompt); merr == nil {
			iterLog.LLMInput = string(b)
			slog.Info("GENERATION: Sending prompt to LLM",
				"operation", op,
				"iteration", iter+1,
				"messages_count", len(prompt.Messages),
				"tools_count", len(prompt.Tools),
				"prompt_size_bytes", len(b),
			)
		}

		res, err := c.llm.Invoke(ctx, prompt)
		if err != nil {
			iterLog.Error = err.Error()
			c.logIteration(iterLog)
			if errors.Is(err, context.DeadlineExceeded) {
				return macroplanner.NewTimeout(err)
			}
			return macroplanner.NewGenerationFailed(err, "model invoke failed on iteration %d", iter+1)
		}
		iterLog.LLMOutput = res

		slog.Info("GENERATION: LLM response received",
			"operation", op,
			"iteration", iter+1,
			"content_length", len(res.Content),
			"tool_calls", len(res.ToolCalls),
		)

		// Final-answer path.
		if len(res.ToolCalls) == 0 {
			if res.Content == "" {
				err := fmt.Errorf("no tool calls and no content in response")
				iterLog.Error = err.Error()
				c.logIteration(iterLog)
				return macroplanner.NewGenerationFailed(err, "empty model response")
			}

			if perr := parse(res.Content); perr != nil {
				slog.Info("GENERATION: Final answer failed validation; sending correction", "operation", op, "iteration", iter+1, "error", perr)
				feedback, _ := json.Marshal(map[string]any{
					"error":  "invalid_final_json",
					"reason": perr.Error(),
				})
				prompt.Messages = append(prompt.Messages, Message{
					Role:    "user",
					Content: []MessagePart{{Type: "text", Text: string(feedback)}},
				})
				iterLog.Error = perr.Error()
				c.logIteration(iterLog)
				continue
			}

			slog.Info("GENERATION: Final answer accepted", "operation", op, "iteration", iter+1)
			c.logIteration(iterLog)
			return nil
		}

		// Tool-call path. Echo the assistant's tool_use blocks, then answer
		// each with a tool_result tied to the original toolUseId.
		assistantMsg := Message{Role: "assistant", Content: MessageParts{}}
		if res.Content != "" {
			assistantMsg.Content = append(assistantMsg.Content, MessagePart{Type: "text", Text: res.Content})
		}
		for _, call := range res.ToolCalls {
			assistantMsg.Content = append(assistantMsg.Content, MessagePart{
				Type:      "tool_use",
				ToolUseID: call.ToolUseID,
				ToolName:  call.Name,
				Data:      call.Input,
			})
		}
		prompt.Messages = append(prompt.Messages, assistantMsg)

		var toolCallLogs []macroplanner.ToolCallLog
		var toolResults []ToolResult

		for _, call := range dedupeToolCalls(res.ToolCalls) {
			slog.Info("GENERATION: Handling tool call", "name", call.Name, "operation", op, "iteration", iter+1)
			tlog := macroplanner.ToolCallLog{Name: call.Name, Input: call.Input}

			tool, gerr := c.toolProvider.GetTool(call.Name)
			if gerr != nil {
				tlog.Error = gerr.Error()
				toolCallLogs = append(toolCallLogs, tlog)
				toolResults = append(toolResults, ToolResult{
					ToolUseID: call.ToolUseID,
					ToolName:  call.Name,
					Data:      map[string]any{"error": fmt.Sprintf("tool %q not found: %v", call.Name, gerr)},
				})
				continue
			}

			result, rerr := tool.Run(ctx, call.Input)
			if rerr != nil {
				tlog.Error = rerr.Error()
				toolCallLogs = append(toolCallLogs, tlog)
				toolResults = append(toolResults, ToolResult{
					ToolUseID: call.ToolUseID,
					ToolName:  tool.Name(),
					Data:      map[string]any{"error": fmt.Sprintf("tool %q failed: %v", call.Name, rerr)},
				})
				continue
			}

			tlog.Output = result
			toolCallLogs = append(toolCallLogs, tlog)
			toolResults = append(toolResults, ToolResult{
				ToolUseID: call.ToolUseID,
				ToolName:  tool.Name(),
				Data:      result,
			})
		}

		prompt.Messages = append(prompt.Messages, NewToolResultMessage(toolResults))

		iterLog.ToolCalls = toolCallLogs
		c.logIteration(iterLog)
	}

	return macroplanner.NewGenerationFailed(nil, "tool loop exhausted after %d iterations", maxIter)
}

// dedupeToolCalls keeps only the first call per (name, args) pair. The model
// may be eager and request the same lookup twice in one turn.
func dedupeToolCalls(calls []tools.Call) []tools.Call {
	seen := map[string]bool{}
	out := make([]tools.Call, 0, len(calls))
	for _, c := range calls {
		b, _ := json.Marshal(c.Input)
		key := c.Name + ":" + string(b)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func (c *Client) logIteration(iteration macroplanner.IterationLog) {
	if c.logger != nil {
		if err := c.logger.LogIteration(iteration); err != nil {
			slog.Error("Failed to log generation iteration", "error", err, "iteration", iteration.Iteration)
		}
	}
}
