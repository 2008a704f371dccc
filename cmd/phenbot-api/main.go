// Package main provides the PhenBOT API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/phenbot/study-engine/internal/app"
	"github.com/phenbot/study-engine/internal/config"
	"github.com/phenbot/study-engine/internal/observability"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Str("dataset_policy", cfg.Answer.DatasetPolicy).
		Msg("Starting PhenBOT API")

	svc, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close services")
		}
	}()

	router := NewRouter(logger, &AppConfig{
		RequestTimeout: cfg.Server.ReadTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Ingestion.MaxUploadBytes,
	}, svc)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}
