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
	"golang.org/x/sync/errgroup"

	"github.com/starford/laguz/internal/api"
	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/cache"
	"github.com/starford/laguz/internal/docindex"
	"github.com/starford/laguz/internal/identity"
	"github.com/starford/laguz/internal/mcpserver"
	"github.com/starford/laguz/internal/remote"
	"github.com/starford/laguz/internal/sse"
	"github.com/starford/laguz/internal/syncer"
)

// reconnectInterval is how often the app retries the remote store while
// offline.
const reconnectInterval = 30 * time.Second

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("remote_backend", cfg.Remote.Backend),
		slog.String("cache_path", cfg.Cache.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := buildStore(app)
	if err != nil {
		return fmt.Errorf("init remote store: %w", err)
	}

	db, err := cache.Open(cfg.Cache.Path, logger)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer db.Close()

	// Resolve the identity that scopes the cache. An unreachable provider
	// degrades to the configured fallback so the app can start offline.
	who, idErr := resolveIdentity(ctx, cfg)
	startOffline := false
	identityDegraded := false
	if idErr != nil {
		if !errors.Is(idErr, apperr.ErrUnreachable) || cfg.Identity.Fallback == "" {
			return fmt.Errorf("resolve identity: %w", idErr)
		}
		logger.Warn("identity provider unreachable, starting offline",
			slog.String("fallback", cfg.Identity.Fallback))
		who = cfg.Identity.Fallback
		startOffline = true
		identityDegraded = true
	}

	idx := docindex.NewManager(store, logger)
	sy := syncer.New(store, idx, db, cfg.Sync.RetryPolicy(), logger, who)

	// Seed the document list from the cached snapshot for instant display.
	if cached := sy.LoadCached(); cached != nil {
		logger.Info("cache: seeded document list", slog.Int("count", len(cached)))
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := api.NewService(sy, broker, cfg.Sync.Debounce())
	if startOffline {
		svc.SetOnline(false)
	}

	// Initial load. An unreachable store leaves the app serving the cached
	// snapshot; anything else is fatal.
	if docs, loadErr := sy.Load(ctx); loadErr != nil {
		if !errors.Is(loadErr, apperr.ErrUnreachable) {
			return fmt.Errorf("initial load: %w", loadErr)
		}
		logger.Warn("remote store unreachable, serving cached snapshot")
		svc.SetOnline(false)
	} else {
		logger.Info("initial load complete", slog.Int("count", len(docs)))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the file store for external writes and re-load on change.
	if fileStore, ok := store.(*remote.File); ok {
		g.Go(func() error {
			return remote.Watch(gCtx, fileStore.Path(), logger, func() {
				if _, err := svc.Reload(gCtx); err != nil {
					logger.Warn("reload after store change failed", slog.String("error", err.Error()))
				}
			})
		})
	}

	// Reconnect loop: while offline, periodically re-resolve the identity
	// if it fell back at startup, then retry a full load.
	g.Go(func() error {
		ticker := time.NewTicker(reconnectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if svc.Online() {
					continue
				}
				if identityDegraded && refreshIdentity(gCtx, cfg, sy, logger) {
					identityDegraded = false
				}
				if _, err := svc.Reload(gCtx); err != nil {
					logger.Debug("reconnect attempt failed", slog.String("error", err.Error()))
					continue
				}
				logger.Info("remote store reachable again")
			}
		}
	})

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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Flush open drafts first so no pending edit is lost.
		svc.Shutdown(shutdownCtx)

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP server on stdin/stdout instead of the HTTP server.
// Logs go to stderr so stdout stays clean for the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	store, err := buildStore(app)
	if err != nil {
		return fmt.Errorf("init remote store: %w", err)
	}

	db, err := cache.Open(cfg.Cache.Path, logger)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer db.Close()

	who, err := resolveIdentity(ctx, cfg)
	if err != nil {
		if !errors.Is(err, apperr.ErrUnreachable) || cfg.Identity.Fallback == "" {
			return fmt.Errorf("resolve identity: %w", err)
		}
		who = cfg.Identity.Fallback
	}

	idx := docindex.NewManager(store, logger)
	sy := syncer.New(store, idx, db, cfg.Sync.RetryPolicy(), logger, who)
	sy.LoadCached()

	if _, err := sy.Load(ctx); err != nil {
		logger.Warn("initial load failed, serving cached snapshot", slog.String("error", err.Error()))
	}

	return mcpserver.New(sy).ServeStdio()
}

// buildStore constructs the remote store from the configuration unless an
// override was injected.
func buildStore(app *application) (remote.Store, error) {
	if app.store != nil {
		return app.store, nil
	}
	cfg := app.config
	switch cfg.Remote.Backend {
	case RemoteBackendHTTP:
		return remote.NewHTTP(cfg.Remote.BaseURL, cfg.Remote.Token)
	case RemoteBackendFile:
		return remote.NewFile(cfg.Remote.Path)
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

// refreshIdentity re-resolves the identity and rescopes the synchronizer's
// cache when it changed. Returns false while the provider stays unreachable
// so the caller keeps retrying.
func refreshIdentity(ctx context.Context, cfg *Config, sy *syncer.Synchronizer, logger *slog.Logger) bool {
	who, err := resolveIdentity(ctx, cfg)
	if err != nil {
		logger.Debug("identity refresh failed", slog.String("error", err.Error()))
		return false
	}
	if who != sy.Identity() {
		sy.SetIdentity(who)
		logger.Info("identity resolved, cache rescoped", slog.String("identity", who))
	}
	return true
}

// resolveIdentity builds the configured identity provider and queries it.
func resolveIdentity(ctx context.Context, cfg *Config) (string, error) {
	var provider identity.Provider
	switch cfg.Identity.Mode {
	case IdentityModeRemote:
		provider = identity.NewHTTP(cfg.Identity.URL)
	default:
		provider = identity.Static{Name: cfg.Identity.Name}
	}
	return provider.Whoami(ctx)
}
