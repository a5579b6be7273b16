// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/linkpage/internal/api"
	"github.com/starford/linkpage/internal/auth"
	"github.com/starford/linkpage/internal/jobs"
	"github.com/starford/linkpage/internal/linkservice"
	"github.com/starford/linkpage/internal/mcpserver"
	"github.com/starford/linkpage/internal/models"
	"github.com/starford/linkpage/internal/sse"
	"github.com/starford/linkpage/internal/store"
	"github.com/starford/linkpage/internal/twofactor"
)

var errConfigRequired = errors.New("config is required")

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("two_factor", cfg.TwoFactor.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	registry, err := auth.NewRegistry(cfg.Auth.Tokens, cfg.Auth.TokensFile)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	var verifier *twofactor.Verifier
	if cfg.TwoFactor.Enabled {
		sender := app.sender
		if sender == nil {
			sender = twofactor.LogSender{Logger: logger}
		}
		verifier, err = twofactor.New(db.Conn(), sender,
			twofactor.WithCodeTTL(cfg.TwoFactor.CodeTTL),
			twofactor.WithMaxAttempts(cfg.TwoFactor.MaxAttempts))
		if err != nil {
			return fmt.Errorf("init two-factor: %w", err)
		}
	}

	// SSE broker.
	broker := sse.NewBroker(15 * time.Second)
	defer broker.Close()

	svc := linkservice.NewService(db,
		linkservice.WithPublisher(broker),
		linkservice.WithLogger(logger))
	apiRouter := api.NewRouter(svc, api.RouterOptions{
		AuthEnabled:  cfg.Auth.AuthEnabled(),
		DefaultActor: cfg.Auth.DefaultActor,
		Tokens:       registry,
		TwoFactor:    verifier,
		Events:       broker.Handler(api.ActorID),
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Conn().PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	var apiHandler http.Handler = apiRouter
	if origins := cfg.App.HTTP.CORSOrigins; len(origins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "If-Match", "If-None-Match", api.SessionHeader},
			ExposedHeaders:   []string{"ETag"},
			AllowCredentials: true,
		})
		apiHandler = c.Handler(apiRouter)
	}
	r.Mount("/api", apiHandler)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload tokens file on change.
	if cfg.Auth.AuthEnabled() {
		g.Go(func() error {
			return auth.Watch(gCtx, registry, logger, func() {
				logger.Info("tokens reloaded", slog.Int("count", registry.Len()))
			})
		})
	}

	// Periodic cleanup of expired two-factor sessions.
	if verifier != nil {
		runner := jobs.NewRunner(logger)
		err := runner.Add(gCtx, jobs.Job{
			Name:     "prune-two-factor-sessions",
			Schedule: cfg.TwoFactor.PruneSchedule,
			Run: func(ctx context.Context) error {
				n, err := verifier.Prune(ctx)
				if err == nil && n > 0 {
					logger.Info("pruned two-factor sessions", slog.Int64("count", n))
				}
				return err
			},
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return runner.Run(gCtx) })
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Unblock the tokens watcher when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio as the configured actor. Logs go to
// stderr since stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.actor == "" {
		return errors.New("mcp: actor is required")
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	svc := linkservice.NewService(db, linkservice.WithLogger(logger))
	srv := mcpserver.New(svc, models.Actor{ID: app.actor})

	logger.Info("MCP server starting", slog.String("actor", app.actor))
	return srv.ServeStdio()
}
