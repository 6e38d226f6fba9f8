package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	CORSOrigins string
	TablePrefix string
	Timezone    string

	// LLM configuration. The fast tier handles classification and report
	// prose; the smart tier handles reranking, SQL generation, and result
	// validation.
	AnthropicAPIKey string
	OpenAIAPIKey    string
	FastProvider    string
	FastModel       string
	SmartProvider   string
	SmartModel      string
	EmbeddingModel  string

	// QueryTimeout is the hard ceiling for one agent-generated SQL execution.
	QueryTimeout time.Duration

	// Workflow loop budgets. Zero means "use the built-in default".
	MaxSQLRetry        int
	MaxTableExpand     int
	MaxValidationRetry int
	MaxTotalLoops      int

	// Debug enables verbose workflow logging.
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),
		Timezone:    getEnv("AGENT_TIMEZONE", "UTC"),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		FastProvider:    getEnv("FAST_PROVIDER", "anthropic"),
		FastModel:       getEnv("FAST_MODEL", "claude-haiku-4-5-20251001"),
		SmartProvider:   getEnv("SMART_PROVIDER", "anthropic"),
		SmartModel:      getEnv("SMART_MODEL", "claude-sonnet-4-5-20250929"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		QueryTimeout: getDuration("QUERY_TIMEOUT_SECONDS", 30) * time.Second,

		MaxSQLRetry:        getInt("MAX_SQL_RETRY", 0),
		MaxTableExpand:     getInt("MAX_TABLE_EXPAND", 0),
		MaxValidationRetry: getInt("MAX_VALIDATION_RETRY", 0),
		MaxTotalLoops:      getInt("MAX_TOTAL_LOOPS", 0),

		// Debug defaults to on outside prod.
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n)
		}
	}
	return time.Duration(defaultSeconds)
}
