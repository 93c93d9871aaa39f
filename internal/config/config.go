package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/questforge/dialogue-engine/pkg/reconcile"
)

// Config holds the environment-driven settings of the dialogue engine.
type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	// Generation backend
	OllamaURL   string
	OllamaModel string

	// Embedding backend: "openai" or "ollama"
	EmbeddingProvider string
	EmbeddingModel    string
	OpenAIAPIKey      string
	OpenAIBaseURL     string

	// Storage
	PostgresURL string
	RedisURL    string
	SessionTTL  time.Duration

	// Pipeline tuning
	HistoryWindow   int
	BundleCacheSize int
	BundleTopK      int
	ReconcileSeed   int64

	Reconcile reconcile.Config
}

func Load() *Config {
	rc := reconcile.DefaultConfig()
	rc.AlphaModel = getFloat("RECONCILE_ALPHA_MODEL", rc.AlphaModel)
	rc.SimThreshold = getFloat("RECONCILE_SIM_THRESHOLD", rc.SimThreshold)
	rc.DiffThreshold = getFloat("RECONCILE_DIFF_THRESHOLD", rc.DiffThreshold)
	rc.Blend = getFloat("RECONCILE_BLEND", rc.Blend)
	rc.Margin = getFloat("RECONCILE_MARGIN", rc.Margin)
	rc.RandomJitter = getFloat("RECONCILE_RANDOM_JITTER", rc.RandomJitter)

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		OllamaURL:   getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel: getEnv("OLLAMA_MODEL", "llama3.1"),

		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),

		PostgresURL: getEnv("POSTGRES_URL", "postgres://localhost:5432/dialogue"),
		RedisURL:    getEnv("REDIS_URL", "localhost:6379"),
		SessionTTL:  getDuration("SESSION_TTL", 24*time.Hour),

		HistoryWindow:   getInt("HISTORY_WINDOW", 3),
		BundleCacheSize: getInt("BUNDLE_CACHE_SIZE", 128),
		BundleTopK:      getInt("BUNDLE_TOP_K", 50),
		ReconcileSeed:   int64(getInt("RECONCILE_SEED", 0)),

		Reconcile: rc,
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
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
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
