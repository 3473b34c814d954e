// Package dispatch sends review payloads to the provider, gated by the
// request registry so each logical review triggers at most one provider call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/llm"
	"github.com/mergemate/mergemate/internal/registry"
)

// Dispatcher owns the provider call for one review request: the registry
// claim, the bounded retry loop, and the terminal state transition.
type Dispatcher struct {
	registry    *registry.Registry
	reviewer    llm.Reviewer
	maxAttempts int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// New creates a Dispatcher. maxAttempts bounds provider calls per request
// (including the first); baseBackoff is doubled after every failed attempt.
func New(reg *registry.Registry, reviewer llm.Reviewer, maxAttempts int, baseBackoff time.Duration, logger *slog.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseBackoff <= 0 {
		baseBackoff = 2 * time.Second
	}
	return &Dispatcher{
		registry:    reg,
		reviewer:    reviewer,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		logger:      logger,
	}
}

// Dispatch claims the request key and issues the provider call. For a key
// that is already claimed it returns core.ErrDuplicateRequest, with the
// cached result attached when the earlier attempt already finished. The
// registry lock is never held across the network call.
func (d *Dispatcher) Dispatch(ctx context.Context, payload *core.ReviewPayload, req *core.ReviewRequest) (*core.ReviewResult, error) {
	rec, err := d.registry.Begin(req.RequestKey, req.Source, req.Target)
	if errors.Is(err, core.ErrDuplicateRequest) {
		d.logger.Info("duplicate review request absorbed",
			"request_key", req.RequestKey,
			"state", rec.State,
		)
		if rec.State == core.StateDone && rec.Result != nil {
			return rec.Result, core.ErrDuplicateRequest
		}
		return nil, core.ErrDuplicateRequest
	}
	if err != nil {
		return nil, err
	}

	result, err := d.callWithRetry(ctx, payload, req.RequestKey)
	if err != nil {
		d.registry.Fail(req.RequestKey)
		return nil, err
	}

	d.registry.Complete(req.RequestKey, result)
	return result, nil
}

// callWithRetry retries transient provider failures with exponential backoff.
// Malformed responses are not retried: the same payload tends to produce the
// same malformed answer.
func (d *Dispatcher) callWithRetry(ctx context.Context, payload *core.ReviewPayload, key string) (*core.ReviewResult, error) {
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := d.baseBackoff * time.Duration(1<<(attempt-2))
			d.logger.Warn("provider call failed, retrying",
				"request_key", key,
				"attempt", attempt,
				"max_attempts", d.maxAttempts,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, &core.ProviderError{RequestKey: key, Transient: true, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		result, err := d.reviewer.Review(ctx, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, llm.ErrMalformedResponse) {
			return nil, &core.ProviderError{RequestKey: key, Transient: false, Err: err}
		}
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, &core.ProviderError{
			RequestKey: key,
			Transient:  true,
			Err:        fmt.Errorf("%w after %d attempts", core.ErrProviderTimeout, d.maxAttempts),
		}
	}
	return nil, &core.ProviderError{
		RequestKey: key,
		Transient:  true,
		Err:        fmt.Errorf("provider failed after %d attempts: %w", d.maxAttempts, lastErr),
	}
}
