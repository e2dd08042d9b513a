// Package main is the entry point for the background finalize worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/live-assist/voice-platform/internal/analysis"
	"github.com/live-assist/voice-platform/internal/config"
	"github.com/live-assist/voice-platform/internal/llm"
	"github.com/live-assist/voice-platform/internal/queue"
	"github.com/live-assist/voice-platform/internal/service"
	"github.com/live-assist/voice-platform/internal/store"
	"github.com/live-assist/voice-platform/pkg/logger"
	"github.com/live-assist/voice-platform/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting finalize worker")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "voice-platform-worker", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// The worker is only useful against a durable store shared with the
	// API server.
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required for the worker")
		os.Exit(1)
	}
	if err := store.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
		log.Error("failed to run migrations", zap.Error(err))
		os.Exit(1)
	}
	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer pg.Close()

	natsClient, err := queue.Connect(queue.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	streamManager := queue.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure finalize stream", zap.Error(err))
		os.Exit(1)
	}

	chain := buildAnalysisChain(cfg, log)

	// The worker never re-enqueues; redelivery is the queue's job.
	finalizeOrch := service.NewFinalizeOrchestrator(pg, chain, nil, false, cfg.FinalizeEndReasons, log)

	// Headroom beyond the tier budgets so the locked persist still has
	// time when every tier runs its full timeout.
	jobTimeout := cfg.PrimaryTimeout + cfg.SecondaryTimeout + 10*time.Second
	worker := queue.NewWorker(natsClient, finalizeOrch, cfg.FinalizeMaxAttempts, jobTimeout, log)
	if err := worker.Start(ctx); err != nil {
		log.Error("failed to start worker", zap.Error(err))
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	worker.Stop()
	log.Info("worker stopped")
}

// buildAnalysisChain assembles the configured engine tiers, mirroring the
// API server's synchronous path.
func buildAnalysisChain(cfg *config.Config, log *logger.Logger) *analysis.Chain {
	var tiers []analysis.Tier

	if cfg.OpenAIAPIKey != "" {
		engine, err := analysis.NewStructuredEngine(cfg.OpenAIAPIKey, cfg.SummaryModel)
		if err != nil {
			log.Warn("failed to create structured analysis engine", zap.Error(err))
		} else {
			tiers = append(tiers, analysis.Tier{Engine: engine, Timeout: cfg.PrimaryTimeout})
		}
	}

	provider := llm.Provider(cfg.CompletionProvider)
	apiKey := cfg.OpenAIAPIKey
	if provider == llm.ProviderAnthropic {
		apiKey = cfg.AnthropicAPIKey
	}
	if apiKey != "" {
		client, err := llm.NewClient(provider, apiKey)
		if err != nil {
			log.Warn("failed to create completion client", zap.Error(err))
		} else {
			tiers = append(tiers, analysis.Tier{
				Engine:  analysis.NewCompletionEngine(client, cfg.SummaryModel),
				Timeout: cfg.SecondaryTimeout,
			})
		}
	}

	if len(tiers) == 0 {
		log.Warn("no LLM credentials configured, analysis will use the local fallback only")
	}
	return analysis.NewChain(log, tiers...)
}
