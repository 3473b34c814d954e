// Package app initializes and orchestrates the main components of the
// MergeMate service: the HTTP trigger surface, the review worker pool, and
// the request registry sweeper.
package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/jobs"
	"github.com/mergemate/mergemate/internal/registry"
	"github.com/mergemate/mergemate/internal/server"
	"github.com/mergemate/mergemate/internal/storage"
)

// sweepInterval bounds how long expired terminal records linger in memory.
const sweepInterval = 10 * time.Minute

// App holds the main application components. Cfg, Store and Logger are
// exported for the CLI, which reuses the wired instances directly.
type App struct {
	Cfg    *config.Config
	Store  storage.Store
	Logger *slog.Logger

	ctx        context.Context
	server     *server.Server
	registry   *registry.Registry
	dispatcher *jobs.Dispatcher
}

// NewApp assembles the application from its wired dependencies.
func NewApp(
	ctx context.Context,
	cfg *config.Config,
	srv *server.Server,
	reg *registry.Registry,
	dispatcher *jobs.Dispatcher,
	store storage.Store,
	logger *slog.Logger,
) *App {
	return &App{
		Cfg:        cfg,
		Store:      store,
		Logger:     logger,
		ctx:        ctx,
		server:     srv,
		registry:   reg,
		dispatcher: dispatcher,
	}
}

// Start runs the HTTP server and the registry sweep loop. It blocks until
// the server stops or the application context is cancelled.
func (a *App) Start() error {
	a.Logger.Info("starting MergeMate",
		"server_port", a.Cfg.Server.Port,
		"max_workers", a.Cfg.Review.MaxWorkers,
		"ai_provider", a.Cfg.AI.Provider)

	g, ctx := errgroup.WithContext(a.ctx)

	g.Go(func() error {
		return a.server.Start()
	})

	g.Go(func() error {
		a.sweepLoop(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		a.Logger.Error("application run failed", "error", err)
		return err
	}
	return nil
}

// sweepLoop periodically drops expired terminal records from the registry.
func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.registry.Sweep()
		}
	}
}

// Stop shuts down the application cleanly. The HTTP server stops first so no
// new triggers arrive while in-flight reviews drain.
func (a *App) Stop() error {
	a.Logger.Info("shutting down MergeMate services")

	serverErr := a.server.Stop()
	if serverErr != nil {
		a.Logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop other components even if the server failed.
	}

	a.dispatcher.Stop()

	if serverErr != nil {
		return serverErr
	}

	a.Logger.Info("MergeMate stopped successfully")
	return nil
}
