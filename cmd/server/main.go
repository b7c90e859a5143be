package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/tts-api/internal/config"
	"github.com/lexiqai/tts-api/internal/engine"
	"github.com/lexiqai/tts-api/internal/httpapi"
	"github.com/lexiqai/tts-api/internal/observability"
	"github.com/lexiqai/tts-api/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("repo_id", cfg.RepoID).
		Int("sample_rate", cfg.SampleRate).
		Str("engine_transport", cfg.EngineTransport).
		Str("engine_url", cfg.EngineURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("TTS API starting")

	client, err := engine.New(cfg.EngineTransport, cfg.EngineURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create engine client")
	}
	defer client.Close()

	registry := tts.NewRegistry(client, cfg.RepoID, cfg.EngineLoadTimeout(), logger)

	var opts []tts.SynthesizerOption
	if cfg.EngineConcurrent && cfg.EngineTransport == config.TransportGRPC {
		opts = append(opts, tts.WithConcurrentPipelines())
	}
	synth := tts.NewSynthesizer(registry, cfg.SampleRate, logger, opts...)

	handler := httpapi.NewRouter(httpapi.RouterConfig{
		ModelRepo:        cfg.RepoID,
		Limits:           cfg.Limits(),
		DefaultLang:      cfg.DefaultLanguage(),
		DefaultVoice:     cfg.DefaultVoice,
		SynthesisTimeout: cfg.SynthesisDeadline(),
		CORSOrigins:      cfg.CORSOrigins,
		MetricsEnabled:   cfg.MetricsEnabled,
		ReadinessChecks: map[string]observability.HealthCheckFunc{
			"engine": client.HealthCheck,
		},
	}, synth, logger)

	if cfg.MetricsEnabled {
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Writes are bounded by the synthesis
	// deadline rather than a server write timeout.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/tts", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().
		Interface("pipelines_loaded", registry.Loaded()).
		Msg("Server exited gracefully")
}
