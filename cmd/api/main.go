// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/live-assist/voice-platform/internal/analysis"
	"github.com/live-assist/voice-platform/internal/config"
	"github.com/live-assist/voice-platform/internal/handler"
	"github.com/live-assist/voice-platform/internal/llm"
	"github.com/live-assist/voice-platform/internal/middleware"
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

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "voice-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Select the store. Without a database the platform still runs, but
	// records do not survive a restart.
	var (
		convStore store.ConversationStore
		pinger    handler.Pinger
	)
	if cfg.DatabaseURL != "" {
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
		convStore = pg
		pinger = pg
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		convStore = store.NewMemoryStore()
	}

	// Connect to NATS only when finalization runs on the background queue.
	// A failed connection degrades to synchronous finalization instead of
	// refusing to start.
	var (
		natsClient    *queue.Client
		finalizeQueue service.FinalizeQueue
	)
	if cfg.FinalizeAsync {
		natsClient, err = queue.Connect(queue.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("failed to connect to NATS, finalization will run synchronously", zap.Error(err))
		} else {
			defer natsClient.Close()
			streamManager := queue.NewStreamManager(natsClient)
			if err := streamManager.EnsureStream(ctx); err != nil {
				log.Error("failed to ensure finalize stream", zap.Error(err))
				os.Exit(1)
			}
			finalizeQueue = streamManager
		}
	}

	chain := buildAnalysisChain(cfg, log)

	conversationSvc := service.NewConversationService(convStore, cfg.RecencyWindow, log)
	finalizeOrch := service.NewFinalizeOrchestrator(
		convStore,
		chain,
		finalizeQueue,
		cfg.FinalizeAsync && finalizeQueue != nil,
		cfg.FinalizeEndReasons,
		log,
	)

	healthHandler := handler.NewHealthHandler(pinger, natsClient, cfg.FinalizeAsync && finalizeQueue != nil)
	conversationHandler := handler.NewConversationHandler(conversationSvc, finalizeOrch, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/save", conversationHandler.Save)
			r.Get("/", conversationHandler.List)
			r.Get("/stats", conversationHandler.Stats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Delete("/", conversationHandler.Delete)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// buildAnalysisChain assembles the configured engine tiers. The local
// fallback is always present, so an unconfigured deployment still
// finalizes with truncated summaries.
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
