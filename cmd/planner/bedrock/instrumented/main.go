package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"macroplanner"
	"macroplanner/coordinator/bedrock"
	"macroplanner/notify"
	"macroplanner/planner"
	"macroplanner/quota"
	"macroplanner/tools"
	"macroplanner/tools/storage"
)

func main() {
	ctx := context.Background()

	// .env is optional; real env vars win either way.
	if err := godotenv.Load(); err != nil {
		slog.Debug("SETUP: No .env file loaded", "error", err)
	}

	var modelConfig macroplanner.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var plannerConfig macroplanner.PlannerConfig
	if err := envdecode.Decode(&plannerConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	cs := storage.NewFileCatalogState(plannerConfig.ArtifactsCatalogPath)
	registry, err := tools.NewRegistry(cs)
	if err != nil {
		slog.Error("SETUP: Failed to create tool registry", "error", err)
		return
	}
	slog.Info("SETUP: Food catalog state initialized", "path", plannerConfig.ArtifactsCatalogPath)

	logger, cleanup, err := newGenerationLogger(modelConfig.ModelID)
	if err != nil {
		slog.Error("Failed to create generation logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("Failed to flush generation log", "error", err)
		}
	}()

	brc, err := newBedrockRuntimeClient(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to create Bedrock client", "error", err)
		return
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
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	store, err := quota.OpenSQLiteStore(plannerConfig.QuotaDBPath)
	if err != nil {
		slog.Error("SETUP: Failed to open quota store", "error", err)
		return
	}
	defer store.Close()

	guard := quota.NewGuard(store, plannerConfig.DailyQuota)
	window := quota.NewWindow(plannerConfig.RateLimitPerMinute, time.Minute)

	gen := bedrock.NewClient(llm, registry, bedrock.Ceilings{
		Day:  plannerConfig.MaxIterationsDay,
		Meal: plannerConfig.MaxIterationsMeal,
		Item: plannerConfig.MaxIterationsItem,
	}, logger, tracerProvider)

	metrics := planner.NewMetricsAggregator(meterProvider.Meter(macroplanner.MeterName))
	sessions := planner.NewSessionStore()
	orch := planner.NewWeeklyOrchestrator(gen, guard, window, metrics, sessions)

	targets := targetsFromEnv()
	gc := macroplanner.GenerationContext{
		UserID:  envOr("USER_ID", "local-user"),
		Profile: macroplanner.Profile(envOr("PROFILE", string(macroplanner.ProfileStandard))),
		Locale:  envOr("LOCALE", "en-US"),
	}
	cfg := macroplanner.PlanConfigPreset(envOr("PLAN_PRESET", macroplanner.PresetDefault))
	weekStart := argOr(1, time.Now().UTC().Format("2006-01-02"))

	tracer := tracerProvider.Tracer(macroplanner.TracerNameBedrock)
	ctx, span := tracer.Start(ctx, "generate-week", trace.WithAttributes(
		attribute.String("model.id", modelConfig.ModelID),
		attribute.String("week.start", weekStart),
		attribute.String("user.id", gc.UserID),
		attribute.Float64("targets.calories", targets.CaloriesPerDay),
	))
	defer span.End()

	week, err := orch.GenerateWeek(ctx, planner.WeekRequest{
		WeekStartDate: weekStart,
		Targets:       targets,
		Context:       gc,
		Config:        &cfg,
	})
	if err != nil {
		slog.Error("RESULT: Weekly generation failed", "error", err, "code", macroplanner.CodeOf(err))
		return
	}

	if tracker, ok := sessions.Get(week.SessionID); ok {
		snap := tracker.Snapshot()
		slog.Info("RESULT: Weekly generation complete",
			"session_id", snap.SessionID,
			"first_pass", snap.DaysWithinToleranceFirstPass,
			"scaled", snap.DaysFixedByScaling,
			"regenerated", snap.DaysFixedByRegeneration,
			"out_of_range", snap.DaysStillOutOfRange,
		)
	}

	if os.Getenv("DEBUG") != "" {
		macroplanner.Dump(week)
		macroplanner.Dump(metrics.Snapshot())
	}

	postSummary(ctx, week, targets)
}

// postSummary delivers the run summary to the configured webhook, or to a
// local test server when none is set so the payload is still visible.
func postSummary(ctx context.Context, week *macroplanner.WeeklyPlan, targets macroplanner.NutritionTargets) {
	webhookURL := os.Getenv("WEBHOOK_URL")
	if webhookURL == "" {
		testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := new(bytes.Buffer)
			body.ReadFrom(r.Body) // nolint: errcheck
			slog.Info("FINAL: Received request",
				"method", r.Method,
				"path", r.URL.Path,
				"body", body.String(),
			)
			w.WriteHeader(http.StatusOK)
		}))
		defer testServer.Close()
		webhookURL = testServer.URL
	}

	client := notify.NewClient(webhookURL, http.DefaultClient)
	if err := client.PostMessage(ctx, envOr("WEBHOOK_CHANNEL", "#meal-plans"), notify.WeekSummary(week, targets)); err != nil {
		slog.Error("Failed to post weekly summary", "error", err)
	}
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

func newGenerationLogger(modelID string) (macroplanner.GenerationLogger, func() error, error) {
	logFilePath := macroplanner.NewGenerationLogFilePath(modelID)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := macroplanner.NewFileGenerationLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}

func targetsFromEnv() macroplanner.NutritionTargets {
	return macroplanner.NutritionTargets{
		CaloriesPerDay: envFloat("TARGET_CALORIES", 2000),
		ProteinGrams:   envFloat("TARGET_PROTEIN_G", 150),
		CarbsGrams:     envFloat("TARGET_CARBS_G", 200),
		FatGrams:       envFloat("TARGET_FAT_G", 65),
	}
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("SETUP: Ignoring unparsable numeric env var", "key", key, "value", v)
		return def
	}
	return f
}
