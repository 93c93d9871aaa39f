package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/questforge/dialogue-engine/internal/config"
	"github.com/questforge/dialogue-engine/internal/handlers"
	"github.com/questforge/dialogue-engine/internal/logger"
	"github.com/questforge/dialogue-engine/internal/orchestrator"
	"github.com/questforge/dialogue-engine/internal/services"
	"github.com/questforge/dialogue-engine/internal/storage"
	"github.com/questforge/dialogue-engine/pkg/embeddings"
	embollama "github.com/questforge/dialogue-engine/pkg/embeddings/ollama"
	embopenai "github.com/questforge/dialogue-engine/pkg/embeddings/openai"
	"github.com/questforge/dialogue-engine/pkg/knowledge"
	"github.com/questforge/dialogue-engine/pkg/reconcile"
	"github.com/questforge/dialogue-engine/pkg/trigger"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting Dialogue Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"generation_model", cfg.OllamaModel,
		"embedding_provider", cfg.EmbeddingProvider)

	var embedder embeddings.Provider
	var err error
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Error("OpenAI API key is required when using openai embeddings")
			os.Exit(1)
		}
		embedder, err = embopenai.New(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.OpenAIBaseURL, 30*time.Second)
	case "ollama":
		embedder, err = embollama.New(cfg.OllamaURL, cfg.EmbeddingModel, 30*time.Second)
	default:
		log.Error("Invalid embedding provider specified",
			"provider", cfg.EmbeddingProvider, "supported", []string{"openai", "ollama"})
		os.Exit(1)
	}
	if err != nil {
		log.Error("Failed to initialize embedding provider", "error", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startupCancel()

	pool, err := pgxpool.New(startupCtx, cfg.PostgresURL)
	if err != nil {
		log.Error("Failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(startupCtx); err != nil {
		log.Error("Failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	log.Info("Postgres connection established")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	defer func() { _ = redisClient.Close() }()
	sessions := storage.NewSessionStore(redisClient, cfg.SessionTTL, log)
	if err := sessions.Ping(startupCtx); err != nil {
		log.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	log.Info("Redis connection established")

	knowledgeStore := storage.NewKnowledgeStore(pool, embedder, log)

	generator := services.NewOllamaService(cfg.OllamaURL, cfg.OllamaModel, log)
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer initCancel()
	if err := generator.InitModel(initCtx, cfg.OllamaModel); err != nil {
		log.Error("Failed to initialize generation model", "error", err, "model", cfg.OllamaModel)
		os.Exit(1)
	}

	bundler, err := knowledge.NewBundler(knowledgeStore, cfg.BundleCacheSize, cfg.BundleTopK, log)
	if err != nil {
		log.Error("Failed to create knowledge bundler", "error", err)
		os.Exit(1)
	}

	gate := trigger.NewGate(embedder, generator, log)

	seed := cfg.ReconcileSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	reconciler := reconcile.New(embedder, generator, cfg.Reconcile, rand.New(rand.NewSource(seed)), log)

	orch := orchestrator.New(bundler, gate, reconciler, generator, sessions, cfg.HistoryWindow, log)

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(map[string]handlers.Pinger{
		"redis":      sessions,
		"generation": generator,
	}, log))
	mux.Handle("/v1/dialogue", handlers.NewDialogueHandler(orch, log))
	mux.Handle("/wake", handlers.NewWakeHandler(bundler, log))

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
