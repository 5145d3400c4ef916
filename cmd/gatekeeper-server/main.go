package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/joho/godotenv"
	"github.com/newsforge-ai/gatekeeper/internal/analyzer"
	"github.com/newsforge-ai/gatekeeper/internal/api"
	"github.com/newsforge-ai/gatekeeper/internal/guardrail"
	"github.com/newsforge-ai/gatekeeper/internal/monitor"
	"github.com/newsforge-ai/gatekeeper/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logger := mustBuildLogger(envOrDefault("GATEKEEPER_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("GATEKEEPER_HTTP_PORT", "8080")
	configPath := envOrDefault("GATEKEEPER_CONFIG", "gatekeeper.yaml")
	sourceTimeoutMs := envOrDefaultInt("GATEKEEPER_SOURCE_TIMEOUT_MS", 5000)
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	apiKeyHash := os.Getenv("GATEKEEPER_API_KEY_HASH")

	sourceTimeout := time.Duration(sourceTimeoutMs) * time.Millisecond

	logger.Info("starting gatekeeper server",
		zap.String("http_port", httpPort),
		zap.String("config", configPath),
		zap.Int("source_timeout_ms", sourceTimeoutMs),
	)

	// Chain definition
	cfg, err := guardrail.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load chain config", zap.Error(err))
	}

	// Monitor store — Postgres or in-memory fallback
	var store monitor.Store
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore := monitor.NewPostgresStore(db)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
		store = pgStore
		logger.Info("postgres store connected")
	} else {
		store = monitor.NewMemStore()
		logger.Warn("no POSTGRES_DSN set, audit trail is in-memory only")
	}
	defer func() { _ = store.Close() }()

	// Analytics mirror — ClickHouse or log fallback
	var mirror storage.EventWriter
	var trends *storage.TrendReader
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			mirror = storage.NewLogWriter(logger)
		} else {
			mirror = chWriter
			logger.Info("clickhouse mirror connected")

			trends, err = storage.NewTrendReader(clickhouseDSN, logger)
			if err != nil {
				logger.Warn("clickhouse trend reader unavailable", zap.Error(err))
				trends = nil
			} else {
				defer func() { _ = trends.Close() }()
			}
		}
	} else {
		mirror = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, mirroring events to log")
	}
	defer mirror.Close()

	mon := monitor.NewMonitor(store, mirror, logger)

	// Guardrail chain — deeper signal sources wired per config entry
	guardrails := make([]guardrail.Guardrail, 0, len(cfg.Guardrails))
	for _, spec := range cfg.Guardrails {
		patterns, err := analyzer.NewPatternSource(spec.PatternTable())
		if err != nil {
			logger.Fatal("invalid patterns", zap.String("guardrail", spec.Name), zap.Error(err))
		}

		var sources []analyzer.Source
		if spec.UseModerationAPI {
			endpoint := os.Getenv("MODERATION_API_URL")
			if endpoint == "" {
				logger.Warn("use_moderation_api set but MODERATION_API_URL empty, layer disabled",
					zap.String("guardrail", spec.Name),
				)
			} else {
				sources = append(sources, analyzer.NewModerationSource(endpoint, os.Getenv("MODERATION_API_KEY")))
			}
		}
		if spec.UseLLMJudge {
			endpoint := os.Getenv("LLM_JUDGE_URL")
			if endpoint == "" {
				logger.Warn("use_llm_judge set but LLM_JUDGE_URL empty, layer disabled",
					zap.String("guardrail", spec.Name),
				)
			} else {
				sources = append(sources, analyzer.NewJudgeSource(
					endpoint,
					os.Getenv("LLM_JUDGE_API_KEY"),
					envOrDefault("LLM_JUDGE_MODEL", "gpt-4o-mini"),
					spec.Categories,
				))
			}
		}

		a := analyzer.NewAnalyzer(spec.Categories, spec.EffectiveThreshold(), patterns, sources, sourceTimeout, logger)
		guardrails = append(guardrails, guardrail.NewContentSafety(
			spec.Name,
			spec.Description,
			spec.EffectiveExtremeThreshold(),
			a,
			mon,
			logger,
		))
		logger.Info("guardrail configured",
			zap.String("name", spec.Name),
			zap.Float64("threshold", spec.EffectiveThreshold()),
			zap.Float64("extreme_threshold", spec.EffectiveExtremeThreshold()),
			zap.Int("deep_sources", len(sources)),
		)
	}
	chain := guardrail.NewChain(guardrails...)

	// HTTP server
	deps := &api.Dependencies{
		Chain:      chain,
		Monitor:    mon,
		Trends:     trends,
		Logger:     logger,
		APIKeyHash: apiKeyHash,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("gatekeeper server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
