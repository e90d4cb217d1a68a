// Package app assembles the userboard server from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brattlof/userboard/internal/api"
	"github.com/brattlof/userboard/internal/app/config"
	"github.com/brattlof/userboard/internal/app/render"
	"github.com/brattlof/userboard/internal/app/server"
	"github.com/brattlof/userboard/internal/dashboard"
	"github.com/brattlof/userboard/internal/live"
	"github.com/brattlof/userboard/internal/observability"
	"github.com/brattlof/userboard/internal/templates"
	"github.com/brattlof/userboard/pkg/plugin"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	Version string
	// Plugins are the factories plugins.enabled may name.
	Plugins map[string]plugin.Factory
}

type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	client   *api.Client
	hub      *live.Hub
	registry *dashboard.Registry
	plugins  *plugin.Registry
	loader   *plugin.Loader
	server   *server.Server
	http     *http.Server
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{cfg: cfg, logger: logger}

	if cfg.Metrics.Enabled {
		a.metrics = observability.NewMetrics()
	}

	a.client = api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(cfg.APITimeout()),
		api.WithUserAgent(cfg.API.UserAgent),
		api.WithCollapsing(cfg.API.CollapseRequests),
		api.WithObserver(a.metrics),
	)

	a.hub = live.NewHub(logger.With("component", "live"))
	a.registry = dashboard.NewRegistry(dashboard.Deps{
		Fetcher: a.client,
		Logger:  logger.With("component", "dashboard"),
		Metrics: a.metrics,
		OnChange: func(viewID string, version uint64) {
			a.hub.Publish(viewID, live.Message{Type: live.TypeState, View: viewID, Version: version})
		},
	}, dashboard.RegistryOptions{
		IdleTimeout: cfg.IdleTimeout(),
		MaxViews:    cfg.Views.Max,
		IsActive: func(viewID string) bool {
			return a.hub.Count(viewID) > 0
		},
	})

	a.plugins = plugin.NewRegistry(logger)
	a.loader = plugin.NewLoader(a.plugins, opts.Plugins, logger)
	if err := a.loader.LoadFromConfig(ctx, cfg.Plugins.Enabled, cfg.Plugins.Config); err != nil {
		a.loader.Close()
		return nil, fmt.Errorf("load plugins: %w", err)
	}

	dash := dashboard.NewHandler(a.registry, a.hub, render.NewRenderer(), dashboard.HandlerOptions{
		Title:  cfg.Rendering.Title,
		Locale: templates.ParseLocale(cfg.Rendering.Locale),
		Logger: logger,
	})

	a.server = server.New(cfg, logger, a.metrics)
	a.server.SetupMiddlewares(a.plugins.Middlewares()...)
	for _, h := range a.plugins.RouterHooks() {
		if err := h.OnRouterInit(a.server); err != nil {
			a.loader.Close()
			return nil, fmt.Errorf("plugin router hook: %w", err)
		}
	}
	a.server.SetupRoutes(dash, server.Status{Version: opts.Version, Views: a.registry.Len})

	a.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Hub is the live connection hub; dev mode broadcasts reloads through it.
func (a *App) Hub() *live.Hub {
	return a.hub
}

func (a *App) Plugins() *plugin.Registry {
	return a.plugins
}

// Run serves until ctx is canceled, then shuts down gracefully: sockets are
// closed, in-flight requests get shutdownTimeout to finish and every view is
// unmounted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.registry.Run(ctx, a.cfg.ReapInterval())

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting userboard server",
			"addr", a.cfg.Addr(),
			"api", a.client.BaseURL(),
			"plugins", a.plugins.Names(),
		)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.close()
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	a.hub.Close()
	err := a.http.Shutdown(shutdownCtx)
	a.close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	a.logger.Info("Server exited")
	return nil
}

func (a *App) close() {
	a.registry.Close()
	a.hub.Close()
	if err := a.loader.Close(); err != nil {
		a.logger.Warn("Plugin shutdown failed", "error", err)
	}
}
