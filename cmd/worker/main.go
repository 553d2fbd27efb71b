// Bot worker - keeps per-token chat bots in sync with the launchpad's
// bot registry and answers their messages.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/curvelaunch/botworker/internal/api"
	"github.com/curvelaunch/botworker/internal/bot"
	"github.com/curvelaunch/botworker/internal/config"
	"github.com/curvelaunch/botworker/internal/inference"
	"github.com/curvelaunch/botworker/internal/secret"
	"github.com/curvelaunch/botworker/internal/store"
	"github.com/curvelaunch/botworker/internal/telegram"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting bot worker", "port", cfg.Port, "reconcile_interval", cfg.ReconcileInterval)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	box, err := secret.NewBox(cfg.CredentialKey)
	if err != nil {
		slog.Error("Failed to initialize credential box", "error", err)
		os.Exit(1)
	}

	generator, err := inference.NewClient(cfg.InferenceAPIKey, cfg.InferenceURL, cfg.InferenceModel,
		inference.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}))
	if err != nil {
		slog.Error("Failed to initialize inference client", "error", err)
		os.Exit(1)
	}
	slog.Info("Inference client initialized", "model", cfg.InferenceModel)

	reloader := bot.NewReloader(repo, box, generator, telegram.New, cfg.RateLimit, cfg.ReconcileInterval)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo, generator, cfg.ProbeTimeout)
	statusHandler := api.NewStatusHandler(reloader, time.Now())

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	healthHandler.RegisterRoutes(r)
	statusHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the reloader.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reloader.Start(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	// Scheduling is already stopped via ctx; tear down sessions, then
	// the HTTP surface, then the store.
	reloader.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if err := repo.Close(); err != nil {
		slog.Error("Failed to close repository", "error", err)
	}

	slog.Info("Worker stopped successfully")
}
