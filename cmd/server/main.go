package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	workflow "askdb/internal/agent"
	"askdb/internal/config"
	"askdb/internal/handler"
	"askdb/internal/handler/sse"
	"askdb/internal/middleware"
	"askdb/internal/provider"
	providerAnthropic "askdb/internal/provider/anthropic"
	providerOpenAI "askdb/internal/provider/openai"
	"askdb/internal/repository/postgres"
	"askdb/internal/schemasync"
	searchPgvector "askdb/internal/search/pgvector"
	"askdb/internal/service/query"
	"askdb/internal/sqlexec"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" || cfg.Debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	sessionRepo := postgres.NewSessionRepository(repoConfig)
	messageRepo := postgres.NewMessageRepository(repoConfig)

	// Setup LLM providers
	registry := provider.NewRegistry(
		provider.ModelRef{Provider: cfg.FastProvider, Model: cfg.FastModel},
		provider.ModelRef{Provider: cfg.SmartProvider, Model: cfg.SmartModel},
		logger,
	)
	if cfg.AnthropicAPIKey != "" {
		p, err := providerAnthropic.NewProvider(cfg.AnthropicAPIKey)
		if err != nil {
			log.Fatalf("Failed to create anthropic provider: %v", err)
		}
		registry.Register(p)
	}
	if cfg.OpenAIAPIKey != "" {
		p, err := providerOpenAI.NewProvider(cfg.OpenAIAPIKey)
		if err != nil {
			log.Fatalf("Failed to create openai provider: %v", err)
		}
		registry.Register(p)
	}
	if err := registry.Validate(); err != nil {
		log.Fatalf("LLM provider configuration invalid: %v", err)
	}

	// Embeddings power both schema sync and table retrieval
	embedder, err := providerOpenAI.NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	searcher := searchPgvector.NewSearcher(pool, tables, embedder, logger)
	executor := sqlexec.NewExecutor(pool, cfg.QueryTimeout, logger)

	limits := workflow.DefaultLimits()
	limits.Timezone = cfg.Timezone
	if cfg.MaxSQLRetry > 0 {
		limits.MaxSQLRetry = cfg.MaxSQLRetry
	}
	if cfg.MaxTableExpand > 0 {
		limits.MaxTableExpand = cfg.MaxTableExpand
	}
	if cfg.MaxValidationRetry > 0 {
		limits.MaxValidationRetry = cfg.MaxValidationRetry
	}
	if cfg.MaxTotalLoops > 0 {
		limits.MaxTotalLoops = cfg.MaxTotalLoops
	}
	engine := workflow.NewEngine(registry, searcher, executor, limits, logger)

	queryService := query.NewService(engine, sessionRepo, messageRepo, logger)

	// Schema sync: embed table docs at startup, then follow NOTIFY events
	syncer := schemasync.NewSyncer(pool, tables, embedder, logger)
	if err := syncer.Sync(ctx); err != nil {
		logger.Error("initial schema sync failed", "error", err)
	}
	watcher := schemasync.NewWatcher(pool, syncer, logger)
	go watcher.Run(ctx)

	// Create handlers
	queryHandler := handler.NewQueryHandler(queryService, sse.DefaultConfig(), logger)
	sessionHandler := handler.NewSessionHandler(queryService, logger)
	healthHandler := handler.NewHealthHandler(pool, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", healthHandler.Check)

	// Query route (SSE stream)
	mux.HandleFunc("POST /api/query", queryHandler.Ask)

	// Session routes
	mux.HandleFunc("GET /api/sessions", sessionHandler.ListSessions)
	mux.HandleFunc("GET /api/sessions/{id}/messages", sessionHandler.GetMessages)
	mux.HandleFunc("DELETE /api/sessions/{id}", sessionHandler.DeleteSession)

	// Build middleware chain
	var root http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Logging → Recovery → Routes
	root = middleware.Recovery(logger)(root)
	root = middleware.RequestLogger(logger)(root)

	// CORS - Must be outermost to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Last-Event-ID"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	// Start server, shut down cleanly on SIGINT/SIGTERM
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
