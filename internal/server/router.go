package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/registry"
	"github.com/mergemate/mergemate/internal/server/handler"
	slackgw "github.com/mergemate/mergemate/internal/slack"
)

// NewRouter creates and configures a new HTTP router with middleware and API routes.
func NewRouter(cfg *config.Config, dispatcher core.JobDispatcher, reg *registry.Registry, gw slackgw.Gateway, git *gitutil.Client, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Configure middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		ciHandler := handler.NewCIWebhookHandler(cfg, dispatcher, reg, logger)
		slackHandler := handler.NewSlackEventsHandler(cfg, dispatcher, reg, gw, git, logger)

		r.Post("/webhook/ci", ciHandler.Handle)
		r.Post("/webhook/slack", slackHandler.HandleEvent)
		r.Post("/slack/command", slackHandler.HandleCommand)
	})

	return r
}
