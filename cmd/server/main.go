// Command server starts the content ranker HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/content-ranker/internal/adapter/ai/anthropic"
	"github.com/fairyhunter13/content-ranker/internal/adapter/ai/real"
	httpserver "github.com/fairyhunter13/content-ranker/internal/adapter/httpserver"
	"github.com/fairyhunter13/content-ranker/internal/adapter/observability"
	"github.com/fairyhunter13/content-ranker/internal/adapter/repo/memory"
	"github.com/fairyhunter13/content-ranker/internal/app"
	"github.com/fairyhunter13/content-ranker/internal/config"
	"github.com/fairyhunter13/content-ranker/internal/rubric"
	"github.com/fairyhunter13/content-ranker/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	if !cfg.OpenAIConfigured() {
		slog.Warn("OPENAI_API_KEY not set; jobs will fail until it is configured")
	}
	if !cfg.AnthropicConfigured() {
		slog.Warn("ANTHROPIC_API_KEY not set; consult answers will carry the provider error")
	}

	// Providers
	openai := real.New(cfg)
	claude := anthropic.New(cfg)
	var evalOpts []rubric.Option
	if cfg.RubricStrictParsing {
		evalOpts = append(evalOpts, rubric.WithParsePolicy(rubric.FailOnMalformed))
	}
	evaluator := rubric.NewEvaluator(openai, evalOpts...)

	// Usecases
	tracker := usecase.NewTracker(memory.NewJobRepo())
	rank := usecase.NewRankPipeline(evaluator, cfg.AIMaxConcurrency, cfg.SimilarityThreshold)
	analysis := usecase.AnalysisPipeline{Evaluator: evaluator, Limit: cfg.AIMaxConcurrency, Threshold: cfg.SimilarityThreshold}
	consult := usecase.NewConsultService(openai, claude)

	checks := app.BuildReadinessChecks(cfg, tracker.Accepting)
	srv := httpserver.NewServer(cfg, tracker, rank, analysis, consult, checks...)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", slog.Any("error", err))
	}
	if err := tracker.Shutdown(shutdownCtx); err != nil {
		slog.Error("job tracker shutdown", slog.Any("error", err))
	}
}
