package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"macroplanner"
	"macroplanner/coordinator/bedrock"
	"macroplanner/planner"
	"macroplanner/quota"
	"macroplanner/tools"
	"macroplanner/tools/storage"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
)

type Params struct {
	WeekStartDate string                        `json:"week_start_date"`
	UserID        string                        `json:"user_id"`
	Profile       string                        `json:"profile,omitempty"`
	Preset        string                        `json:"preset,omitempty"`
	Targets       macroplanner.NutritionTargets `json:"targets"`
	PreviousWeek  *macroplanner.WeeklyPlan      `json:"previous_week,omitempty"`
}

type Results struct {
	Week     *macroplanner.WeeklyPlan `json:"week"`
	Progress planner.Snapshot         `json:"progress"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var modelConfig macroplanner.ModelConfig
		if err := envdecode.Decode(&modelConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}

		var plannerConfig macroplanner.PlannerConfig
		if err := envdecode.Decode(&plannerConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}

		// S3 config from env
		s3Bucket := os.Getenv("ARTIFACTS_S3_BUCKET")
		catalogKey := os.Getenv("ARTIFACTS_CATALOG_S3_KEY")
		if s3Bucket == "" || catalogKey == "" {
			return Results{}, fmt.Errorf("missing S3 config: ARTIFACTS_S3_BUCKET and ARTIFACTS_CATALOG_S3_KEY must be set")
		}

		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return Results{}, fmt.Errorf("failed to load AWS config: %w", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)

		cs := storage.NewS3CatalogState(s3Client, s3Bucket, catalogKey)
		registry, err := tools.NewRegistry(cs)
		if err != nil {
			slog.Error("SETUP: Failed to create tool registry", "error", err)
			return Results{}, err
		}
		slog.Info("SETUP: S3 food catalog state initialized")

		generationLogger := macroplanner.NewStdoutGenerationLogger()

		brc, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to create Bedrock client", "error", err)
			return Results{}, err
		}

		llm := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     modelConfig.ModelID,
			MaxTokens:   modelConfig.MaxTokens,
			Temperature: modelConfig.Temperature,
			TopP:        modelConfig.TopP,
		})

		tracerProvider, meterProvider, otelShutdown, err := macroplanner.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return Results{}, err
		}
		defer func() {
			if err := otelShutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()

		// Lambda filesystems are ephemeral outside /tmp; the durable quota
		// counter lives there for the invocation and is expected to be backed
		// by a mounted volume or replaced with a shared store in production.
		store, err := quota.OpenSQLiteStore(plannerConfig.QuotaDBPath)
		if err != nil {
			slog.Error("SETUP: Failed to open quota store", "error", err)
			return Results{}, err
		}
		defer store.Close()

		gen := bedrock.NewClient(llm, registry, bedrock.Ceilings{
			Day:  plannerConfig.MaxIterationsDay,
			Meal: plannerConfig.MaxIterationsMeal,
			Item: plannerConfig.MaxIterationsItem,
		}, generationLogger, tracerProvider)

		guard := quota.NewGuard(store, plannerConfig.DailyQuota)
		window := quota.NewWindow(plannerConfig.RateLimitPerMinute, time.Minute)
		metrics := planner.NewMetricsAggregator(meterProvider.Meter(macroplanner.MeterName))
		sessions := planner.NewSessionStore()
		orch := planner.NewWeeklyOrchestrator(gen, guard, window, metrics, sessions)

		cfg := macroplanner.PlanConfigPreset(params.Preset)
		week, err := orch.GenerateWeek(ctx, planner.WeekRequest{
			WeekStartDate: params.WeekStartDate,
			Targets:       params.Targets,
			Context: macroplanner.GenerationContext{
				UserID:  params.UserID,
				Profile: macroplanner.Profile(params.Profile),
			},
			PreviousWeek: params.PreviousWeek,
			Config:       &cfg,
		})
		if err != nil {
			slog.Error("RESULT: Weekly generation failed", "error", err, "code", macroplanner.CodeOf(err))
			return Results{}, err
		}

		results := Results{Week: week}
		if tracker, ok := sessions.Get(week.SessionID); ok {
			results.Progress = tracker.Snapshot()
		}
		return results, nil
	}

	lambda.Start(fn)
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}
