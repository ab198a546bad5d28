package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	mytischtennisadapter "github.com/mytt-tools/ttrproxy/internal/adapter/driven/mytischtennis"
	sqliteadapter "github.com/mytt-tools/ttrproxy/internal/adapter/driven/sqlite"
	httphandler "github.com/mytt-tools/ttrproxy/internal/adapter/driving/http"
	"github.com/mytt-tools/ttrproxy/internal/application"
	"github.com/mytt-tools/ttrproxy/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"base_url", cfg.BaseURL,
		"check_interval", cfg.CheckInterval,
		"force_refresh_window", cfg.ForceRefreshWindow,
		"encrypted_at_rest", cfg.SecretKey != nil,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	gateway := mytischtennisadapter.NewClient(cfg.BaseURL, cfg.UpstreamTimeout)
	refresher := mytischtennisadapter.NewRefresher(cfg.AuthURL, cfg.UpstreamTimeout)

	// 6. Load the credential (stored blob wins, env seed is the fallback).
	creds, err := application.NewCredentials(ctx, credentialStore, cfg.SeedBlob)
	if err != nil {
		return err
	}

	// 7. Create and start the expiry monitor.
	authSvc := application.NewAuthService(creds, refresher, cfg.CheckInterval, cfg.ForceRefreshWindow, cfg.WarnWindow)
	go authSvc.Start(ctx)

	// 8. Create the aggregator and the HTTP handler.
	aggregator := application.NewAggregator(gateway, authSvc, cfg.EnrichConcurrency)
	apiHandler := httphandler.NewHandler(aggregator, authSvc, gateway, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("ttrproxy started",
		"listen_addr", cfg.ListenAddr,
		"enrich_concurrency", cfg.EnrichConcurrency,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
