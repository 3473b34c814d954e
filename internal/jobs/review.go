package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mergemate/mergemate/internal/collector"
	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/dispatch"
	"github.com/mergemate/mergemate/internal/payload"
	"github.com/mergemate/mergemate/internal/router"
	"github.com/mergemate/mergemate/internal/storage"
)

// ReviewJob orchestrates one review end to end: collect context, build the
// payload, dispatch to the provider, route the result, persist it.
type ReviewJob struct {
	collector  *collector.Collector
	builder    *payload.Builder
	dispatcher *dispatch.Dispatcher
	router     *router.Router
	store      storage.Store // nil disables persistence
	logger     *slog.Logger
}

// NewReviewJob creates a new ReviewJob. store may be nil.
func NewReviewJob(
	col *collector.Collector,
	builder *payload.Builder,
	disp *dispatch.Dispatcher,
	rt *router.Router,
	store storage.Store,
	logger *slog.Logger,
) core.Job {
	if col == nil {
		panic("collector cannot be nil")
	}
	if builder == nil {
		panic("payload builder cannot be nil")
	}
	if disp == nil {
		panic("review dispatcher cannot be nil")
	}
	if rt == nil {
		panic("result router cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &ReviewJob{
		collector:  col,
		builder:    builder,
		dispatcher: disp,
		router:     rt,
		store:      store,
		logger:     logger,
	}
}

// Run executes the review flow for one trigger event.
func (j *ReviewJob) Run(ctx context.Context, event *core.TriggerEvent) error {
	if err := j.validateInputs(ctx, event); err != nil {
		j.logger.Error("input validation failed", "error", err)
		return fmt.Errorf("input validation failed: %w", err)
	}

	j.logger.Info("starting review job", "source", event.Source, "request_key", event.RequestKey)

	req, repoCfg, err := j.collector.Collect(ctx, event)
	if err != nil {
		// Unusable input is told to the user once and never retried.
		var ctxErr *core.ContextError
		if errors.As(err, &ctxErr) {
			if notifyErr := j.router.RouteFailure(ctx, event.Target, event.RequestKey, ctxErr.Err); notifyErr != nil {
				j.logger.Error("failed to notify user about bad input", "request_key", event.RequestKey, "error", notifyErr)
			}
		}
		return fmt.Errorf("context collection failed: %w", err)
	}

	templateID := payload.TemplateForSource(req.Source)
	if repoCfg.Template != "" {
		templateID = core.TemplateID(repoCfg.Template)
	}

	pl, err := j.builder.Build(req, templateID)
	if err != nil {
		if notifyErr := j.router.RouteFailure(ctx, req.Target, req.RequestKey, err); notifyErr != nil {
			j.logger.Error("failed to notify user about payload failure", "request_key", req.RequestKey, "error", notifyErr)
		}
		return fmt.Errorf("payload build failed: %w", err)
	}

	result, err := j.dispatcher.Dispatch(ctx, pl, req)
	if errors.Is(err, core.ErrDuplicateRequest) {
		// A re-delivered trigger: the first delivery already answered the
		// user, absorb silently.
		j.logger.Info("duplicate trigger absorbed", "request_key", req.RequestKey)
		return nil
	}
	if err != nil {
		if notifyErr := j.router.RouteFailure(ctx, req.Target, req.RequestKey, err); notifyErr != nil {
			j.logger.Error("failed to notify user about provider failure", "request_key", req.RequestKey, "error", notifyErr)
		}
		return fmt.Errorf("review dispatch failed: %w", err)
	}

	outcome, err := j.router.Route(ctx, req, pl, result, repoCfg)
	if err != nil {
		return fmt.Errorf("result delivery failed: %w", err)
	}

	j.persist(ctx, req, pl, result, outcome)

	j.logger.Info("review job completed", "request_key", req.RequestKey, "messages", outcome.MessagesPosted)
	return nil
}

// persist stores the delivered review. Persistence trouble is logged, never
// surfaced: the user already has the result.
func (j *ReviewJob) persist(ctx context.Context, req *core.ReviewRequest, pl *core.ReviewPayload, result *core.ReviewResult, outcome *router.Outcome) {
	if j.store == nil {
		return
	}
	rec := &storage.ReviewRecord{
		RequestKey:    req.RequestKey,
		Source:        string(req.Source),
		RepoFullName:  req.RepoFullName,
		Branch:        req.Branch,
		CommitSHA:     req.CommitSHA,
		SlackChannel:  outcome.Channel,
		SlackThreadTS: outcome.ThreadTS,
		Summary:       result.Summary,
		Recommended:   string(result.Recommended),
		Suggestions:   len(result.Suggestions),
		Truncated:     pl.Truncated,
	}
	if err := j.store.SaveReview(ctx, rec); err != nil {
		j.logger.Error("failed to persist review", "request_key", req.RequestKey, "error", err)
	}
}

// validateInputs ensures the event contains all required fields.
func (j *ReviewJob) validateInputs(ctx context.Context, event *core.TriggerEvent) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.RequestKey == "" {
		return fmt.Errorf("request key cannot be empty")
	}
	if event.Target.ChannelID == "" {
		return fmt.Errorf("delivery channel cannot be empty")
	}
	switch event.Source {
	case core.SourceSlackUpload:
		if len(event.FileContent) == 0 {
			return fmt.Errorf("upload trigger carries no file content")
		}
	case core.SourceCIPush, core.SourceCIMerge:
		if event.CommitSHA == "" {
			return fmt.Errorf("CI trigger carries no commit SHA")
		}
	default:
		return fmt.Errorf("unknown trigger source %q", event.Source)
	}
	return nil
}
