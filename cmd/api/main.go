package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/line-gemini-relay/internal/api/router"
	"github.com/wolfman30/line-gemini-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/line-gemini-relay/internal/config"
	"github.com/wolfman30/line-gemini-relay/internal/line"
	"github.com/wolfman30/line-gemini-relay/internal/llm"
	"github.com/wolfman30/line-gemini-relay/internal/messaging"
	"github.com/wolfman30/line-gemini-relay/internal/observability/metrics"
	"github.com/wolfman30/line-gemini-relay/internal/session"
	"github.com/wolfman30/line-gemini-relay/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting line-gemini-relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"model", cfg.GeminiModelID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	metricsHandler, relayMetrics := setupRelayMetrics()

	gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		ModelID:     cfg.GeminiModelID,
		Temperature: cfg.GeminiTemperature,
	})
	if err != nil {
		return fmt.Errorf("gemini client: %w", err)
	}
	defer gemini.Close()

	lineClient, err := setupLineClient(cfg, logger)
	if err != nil {
		return err
	}

	provider, err := bootstrap.BuildContextProvider(cfg, logger)
	if err != nil {
		return err
	}
	store := session.NewMemoryStore(provider)

	sweeper := session.NewSweeper(store, bootstrap.BuildSessionPolicies(cfg), relayMetrics, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	rel, err := bootstrap.BuildRelay(bootstrap.RelayDeps{
		Store:   store,
		Chat:    gemini,
		Scorer:  gemini,
		Context: provider,
		Replier: lineClient,
		Deduper: bootstrap.BuildEventDeduper(redisClient, cfg),
		Metrics: relayMetrics,
		Config:  cfg,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	r := router.New(&router.Config{
		Logger:           logger,
		MessagingHandler: messaging.NewHandler(cfg.LineChannelSecret, rel, logger),
		MetricsHandler:   metricsHandler,
	})

	// The webhook answers only after the whole batch is processed, so the
	// write deadline has to cover the per-event timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RelayEventTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// setupRelayMetrics registers the relay collectors on a dedicated registry
// together with the Go runtime and process collectors.
func setupRelayMetrics() (http.Handler, *metrics.RelayMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewRelayMetrics(reg)
}

func setupLineClient(cfg *appconfig.Config, logger *logging.Logger) (*line.Client, error) {
	client, err := line.New(line.Config{
		BaseURL:       cfg.LineAPIBaseURL,
		AccessToken:   cfg.LineChannelAccessToken,
		ChannelSecret: cfg.LineChannelSecret,
		Timeout:       cfg.LineReplyTimeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("line client: %w", err)
	}
	return client, nil
}
