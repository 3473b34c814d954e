// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"

	"github.com/mergemate/mergemate/internal/app"
	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/db"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/jobs"
	"github.com/mergemate/mergemate/internal/logger"
	"github.com/mergemate/mergemate/internal/payload"
	"github.com/mergemate/mergemate/internal/storage"
)

// InitializeApp creates and wires all application dependencies.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logWriter := provideLogWriter(cfg)
	slogLogger := logger.NewLogger(cfg.Logging, logWriter)

	// Database
	dbConn, dbCleanup, err := db.NewDatabase(provideDBConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Storage
	store := storage.NewStore(dbConn.DB)

	// Request Registry
	reg := provideRegistry(cfg, slogLogger)

	// Slack Gateway
	gateway := provideGateway(cfg, slogLogger)

	// Git Client
	gitClient := gitutil.NewClient(slogLogger)

	// Git Host (App installation or PAT)
	access, err := provideGitAccess(ctx, cfg, slogLogger)
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create git host client: %w", err)
	}

	// Issue Fetcher
	issues, err := provideIssueFetcher(cfg, slogLogger)
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create issue fetcher: %w", err)
	}

	// Context Collector
	col, err := provideCollector(cfg, gitClient, access, issues, slogLogger)
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create collector: %w", err)
	}

	// Payload Builder
	templates, err := payload.NewTemplateSet()
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to load payload templates: %w", err)
	}
	builder := provideBuilder(templates, cfg, slogLogger)

	// Review Model
	model, err := provideReviewModel(ctx, cfg, slogLogger)
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create review model: %w", err)
	}
	reviewer := provideReviewer(model, cfg, slogLogger)

	// Review Dispatcher
	reviewDispatcher := provideReviewDispatcher(reg, reviewer, cfg, slogLogger)

	// Result Router
	resultRouter := provideRouter(gateway, access, reg, cfg, slogLogger)

	// Review Job
	reviewJob := jobs.NewReviewJob(col, builder, reviewDispatcher, resultRouter, store, slogLogger)

	// Job Dispatcher
	jobDispatcher := provideJobDispatcher(reviewJob, cfg, slogLogger)

	// Server
	srv := provideServer(ctx, cfg, jobDispatcher, reg, gateway, gitClient, slogLogger)

	// App
	application := app.NewApp(ctx, cfg, srv, reg, jobDispatcher, store, slogLogger)

	cleanup := func() {
		dbCleanup()
	}

	return application, cleanup, nil
}
