// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/starford/wellbeing/internal/api"
	"github.com/starford/wellbeing/internal/auth"
	"github.com/starford/wellbeing/internal/autosave"
	"github.com/starford/wellbeing/internal/entryservice"
	"github.com/starford/wellbeing/internal/inbox"
	"github.com/starford/wellbeing/internal/mcpserver"
	"github.com/starford/wellbeing/internal/metrics"
	"github.com/starford/wellbeing/internal/sse"
	"github.com/starford/wellbeing/internal/storage"
	"github.com/starford/wellbeing/internal/store"
)

// Core is the database and entry service shared by every command.
type Core struct {
	Config  *Config
	Logger  *slog.Logger
	DB      *store.DB
	Entries *entryservice.Service
	Metrics *metrics.Metrics
}

// Close releases the database.
func (c *Core) Close() error {
	return c.DB.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	app.logger = slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(app.logger)
	return app, nil
}

func (a *application) openCore(ctx context.Context, extra ...entryservice.Option) (*Core, error) {
	cfg := a.config
	db, err := store.Open(ctx, cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	m := metrics.New()
	opts := append([]entryservice.Option{
		entryservice.WithLogger(a.logger),
		entryservice.WithRecorder(m),
	}, extra...)
	svc := entryservice.NewService(db, opts...)
	svc.LoadEntries(ctx)
	if err := svc.LastError(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load entries: %w", err)
	}

	return &Core{Config: cfg, Logger: a.logger, DB: db, Entries: svc, Metrics: m}, nil
}

// Open builds the logger, opens and migrates the database and loads the
// entry cache. Commands that do not serve HTTP start here.
func Open(ctx context.Context, opts ...Option) (*Core, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return app.openCore(ctx)
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	core, err := app.openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	app.logger.Info("MCP server starting on stdio", slog.String("sqlite_path", app.config.SQLite.Path))
	return mcpserver.New(core.Entries, app.version).ServeStdio()
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(cfg.SSE.Throttle)
	defer broker.Close()

	core, err := app.openCore(ctx, entryservice.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer core.Close()

	drafts := autosave.NewManager(core.Entries,
		autosave.WithDelay(cfg.Autosave.Delay),
		autosave.WithLogger(logger),
		autosave.WithRecorder(core.Metrics),
	)

	deps := api.Deps{
		Entries:    core.Entries,
		Drafts:     drafts,
		Events:     broker,
		LoginRate:  rate.Limit(cfg.Auth.LoginRate),
		LoginBurst: cfg.Auth.LoginBurst,
	}
	if cfg.Auth.AuthEnabled() {
		authn, err := auth.New(cfg.Auth.Secret, auth.WithTTL(cfg.Auth.TokenTTL))
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
		deps.Auth = authn
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.MetricsMiddleware(core.Metrics))

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		pingCtx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := core.DB.Ping(pingCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", api.NewRouter(deps))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Import inbox: scan what is already there, then watch.
	if cfg.Inbox.Enabled() {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		files, err := storage.NewFS(cfg.Inbox.Path)
		if err != nil {
			return fmt.Errorf("init inbox storage: %w", err)
		}
		in := inbox.New(files, core.Entries,
			inbox.WithDebounce(cfg.Inbox.Debounce),
			inbox.WithLogger(logger),
		)
		g.Go(func() error {
			if _, err := in.Scan(gCtx); err != nil {
				logger.Warn("initial inbox scan failed", slog.String("error", err.Error()))
			}
			return in.Watch(gCtx)
		})
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

		timeout := cfg.App.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		// Closing the broker ends open event streams so Shutdown can drain.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Pending drafts are written before the database closes.
		if err := drafts.FlushAll(shutdownCtx); err != nil {
			logger.Error("Draft flush on shutdown failed", slog.String("error", err.Error()))
		}
		drafts.Close()

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context so the inbox watcher stops with
// the server.
var errShutdown = errors.New("shutdown")
