// docdesk - document QA workspace server
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

	"github.com/ashureev/docdesk/internal/api"
	"github.com/ashureev/docdesk/internal/config"
	"github.com/ashureev/docdesk/internal/gateway"
	"github.com/ashureev/docdesk/internal/middleware"
	"github.com/ashureev/docdesk/internal/store"
	"github.com/ashureev/docdesk/internal/workspace"
	"github.com/ashureev/docdesk/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "gateway", cfg.GatewayURL)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	gw, err := gateway.NewClient(cfg.GatewayURL, gateway.WithLogger(logger))
	if err != nil {
		return err
	}

	mgr := workspace.NewManager(repo, gw, workspace.Config{
		TTL:             cfg.Workspace.TTL,
		ReaperInterval:  cfg.Workspace.ReaperInterval,
		Retention:       cfg.Activity.Retention,
		ScrollDelay:     cfg.Workspace.ScrollSettleDelay,
		ActivityEnabled: cfg.Activity.Enabled,
	}, logger)

	// Initialize handlers.
	baseHandler := api.NewHandler(mgr, cfg)
	healthHandler := api.NewHealthHandler(repo, mgr)
	workspaceHandler := api.NewWorkspaceHandler(baseHandler)
	allowed := cfg.AllowedOrigins()
	streamHandler := api.NewStreamHandler(mgr, allowed[0], cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowed))

	healthHandler.RegisterHealth(r)
	workspaceHandler.RegisterRoutes(r)
	streamHandler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Chat and upload requests wait on the gateway, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mgr.RunReaper(gctx)
	})

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
