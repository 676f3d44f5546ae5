package macroplanner

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,required"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=2048"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type PlannerConfig struct {
	ArtifactsCatalogPath string `env:"ARTIFACTS_CATALOG_PATH,default=artifacts/catalog.json"`

	// Tool-loop iteration ceilings per operation kind.
	MaxIterationsDay  int `env:"MAX_ITERATIONS_DAY,default=20"`
	MaxIterationsMeal int `env:"MAX_ITERATIONS_MEAL,default=10"`
	MaxIterationsItem int `env:"MAX_ITERATIONS_ITEM,default=5"`

	// Throttling. DailyQuota is enforced durably per user; RateLimitPerMinute
	// is the in-memory sliding-window burst cap.
	DailyQuota         int `env:"DAILY_QUOTA,default=50"`
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE,default=10"`

	QuotaDBPath string `env:"QUOTA_DB_PATH,default=artifacts/quota.db"`
}
