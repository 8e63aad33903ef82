package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/intervyn/intervyn/internal/config"
	"github.com/intervyn/intervyn/internal/dialog"
	"github.com/intervyn/intervyn/internal/httpapi"
	"github.com/intervyn/intervyn/internal/interview"
	"github.com/intervyn/intervyn/internal/llm"
	"github.com/intervyn/intervyn/internal/memory"
	"github.com/intervyn/intervyn/internal/observability"
	"github.com/intervyn/intervyn/internal/stream"
	"github.com/intervyn/intervyn/internal/transcribe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewStageWindow(512)

	ctx := context.Background()
	store, err := interview.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("conversation store init failed", zap.Error(err))
	}
	defer store.Close()

	var mirror memory.Mirror
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		mirror = memory.NewRedisMirror(redis.NewClient(opts), cfg.MemoryMirrorTTL)
		logger.Info("session memory mirror enabled", zap.Duration("ttl", cfg.MemoryMirrorTTL))
	}
	memStore := memory.NewStore(mirror, memory.MirrorBestEffort, logger)
	enricher := memory.NewEnricher(memStore)

	chain := buildProviderChain(ctx, cfg, metrics, logger)
	orchestrator := interview.NewOrchestrator(chain, memStore, cfg.Production(), logger)

	directory := buildDirectory(cfg, store, logger)

	engine := stream.NewEngine(directory, store, orchestrator, memStore, enricher, metrics, window, logger)

	var transcriber httpapi.Transcriber
	if stt := buildTranscriberChain(ctx, cfg, metrics, logger); stt != nil {
		transcriber = stt
	}

	api := httpapi.New(cfg, directory, store, orchestrator, engine, transcriber, metrics, window, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// buildProviderChain assembles the generation tiers from configured API
// keys. With no keys at all the mock provider keeps dev mode usable.
func buildProviderChain(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *zap.Logger) *llm.Chain {
	var providers []llm.Provider

	if cfg.OpenAIAPIKey != "" {
		p, err := llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		if err != nil {
			logger.Fatal("openai provider init failed", zap.Error(err))
		}
		providers = append(providers, p)
		logger.Info("llm provider enabled", zap.String("provider", p.Name()), zap.String("model", cfg.OpenAIModel))
	}
	if cfg.GeminiAPIKey != "" {
		p, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Fatal("gemini provider init failed", zap.Error(err))
		}
		providers = append(providers, p)
		logger.Info("llm provider enabled", zap.String("provider", p.Name()), zap.String("model", cfg.GeminiModel))
	}
	if len(providers) == 0 {
		if cfg.Production() {
			logger.Fatal("no llm provider configured; set OPENAI_API_KEY or GEMINI_API_KEY")
		}
		providers = append(providers, llm.NewMockProvider(""))
		logger.Warn("no llm provider configured, using mock provider")
	}

	return llm.NewChain(cfg.ProviderTimeout, logger, metrics, providers...)
}

func buildTranscriberChain(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *zap.Logger) *transcribe.Chain {
	var providers []transcribe.Provider

	if cfg.OpenAIAPIKey != "" {
		p, err := transcribe.NewWhisperProvider(cfg.OpenAIAPIKey, "", cfg.InterviewLanguage)
		if err != nil {
			logger.Fatal("whisper provider init failed", zap.Error(err))
		}
		providers = append(providers, p)
	}
	if cfg.GeminiAPIKey != "" {
		p, err := transcribe.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.InterviewLanguage)
		if err != nil {
			logger.Fatal("gemini transcriber init failed", zap.Error(err))
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		logger.Info("no transcription provider configured, audio answers disabled")
		return nil
	}
	return transcribe.NewChain(logger, metrics, providers...)
}

// buildDirectory shares the conversation store's pool when running against
// Postgres; otherwise a seeded in-memory directory keeps dev mode usable
// without the outer platform.
func buildDirectory(cfg config.Config, store interview.Store, logger *zap.Logger) interview.Directory {
	if pg, ok := store.(*interview.PostgresStore); ok {
		return interview.NewPostgresDirectory(pg.Pool())
	}

	dir := interview.NewInMemoryDirectory()
	dir.Add(
		interview.Interview{
			ID:           "dev",
			JobID:        "dev-job",
			CandidateID:  "dev-candidate",
			Language:     cfg.InterviewLanguage,
			MaxQuestions: cfg.DefaultMaxQuestions,
			Dialog: dialog.Config{
				MaxQuestions: cfg.DefaultMaxQuestions,
				Language:     cfg.InterviewLanguage,
				Requirements: []dialog.Requirement{
					{
						Label:    "Python deneyimi",
						Keywords: []string{"python", "django", "flask"},
						Followups: []string{
							"Python ile en son hangi projeyi geliştirdiniz?",
							"Python'da test yazma alışkanlıklarınız nasıl?",
						},
						Weight: 80,
					},
					{
						Label:    "Veritabanı bilgisi",
						Keywords: []string{"postgresql", "sql", "veritabanı"},
						Followups: []string{
							"Sorgu performansı problemini nasıl çözersiniz?",
						},
						Weight: 50,
					},
				},
			},
		},
		interview.CandidateToken{Token: "dev", ExpiresAt: time.Now().Add(24 * time.Hour)},
	)
	logger.Info("in-memory interview directory seeded",
		zap.String("interview_id", "dev"),
		zap.String("token", "dev"))
	return dir
}
