// Package llm talks to the review provider and normalizes its free-form
// output into the structured result the router can deliver.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/goframe/llms"

	"github.com/mergemate/mergemate/internal/core"
)

// ErrMalformedResponse marks provider output that could not be normalized.
// Unlike timeouts or transport failures it is not worth retrying: the same
// payload tends to produce the same malformed answer.
var ErrMalformedResponse = errors.New("malformed provider response")

// Reviewer is the provider capability injected into the dispatcher. Each call
// is a stateless, single-shot interaction; no conversation state is kept
// between calls.
type Reviewer interface {
	// Review sends the rendered payload and returns the normalized result.
	Review(ctx context.Context, payload *core.ReviewPayload) (*core.ReviewResult, error)
}

type modelReviewer struct {
	model   llms.Model
	timeout time.Duration
	logger  *slog.Logger
}

// NewModelReviewer wraps a goframe model as a Reviewer with a hard per-call
// timeout.
func NewModelReviewer(model llms.Model, timeout time.Duration, logger *slog.Logger) Reviewer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &modelReviewer{model: model, timeout: timeout, logger: logger}
}

func (r *modelReviewer) Review(ctx context.Context, payload *core.ReviewPayload) (*core.ReviewResult, error) {
	if payload == nil || payload.RenderedText == "" {
		return nil, fmt.Errorf("payload cannot be empty")
	}

	raw, err := r.callWithTimeout(ctx, payload.RenderedText)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("provider returned an empty review")
	}

	result, err := ParseReviewMarkdown(raw)
	if err != nil {
		r.logger.Error("failed to parse provider response", "error", err, "template", payload.TemplateID)
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return result, nil
}

// callWithTimeout wraps model generation with a hard timeout. The goroutine
// never blocks once the parent deadline fires.
func (r *modelReviewer) callWithTimeout(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		resp string
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := r.model.Call(ctx, prompt)
		select {
		case resultCh <- result{resp, err}:
		case <-ctx.Done():
		}
	}()

	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
