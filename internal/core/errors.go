package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the orchestrator distinguishes.
// Callers match them with errors.Is after unwrapping the typed wrappers below.
var (
	// ErrDuplicateRequest means the request key is already in flight or done.
	// Not a user-facing failure; the caller either absorbs it or resolves it
	// to the cached result.
	ErrDuplicateRequest = errors.New("duplicate review request")

	// ErrProviderTimeout means the review provider did not answer within the
	// configured deadline, including a stale in-flight record whose age
	// exceeded the liveness threshold.
	ErrProviderTimeout = errors.New("review provider timed out")

	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds configured size limit")
	ErrEmptyDiff           = errors.New("trigger carries no reviewable changes")
)

// ContextError reports unusable trigger input. It is surfaced to the
// triggering user and never retried.
type ContextError struct {
	RequestKey string
	Err        error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("context collection failed for request %s: %v", e.RequestKey, e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }

// ProviderError reports a failed provider call. Transient errors are retried
// up to the configured budget before the record is marked failed.
type ProviderError struct {
	RequestKey string
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("review provider failed for request %s: %v", e.RequestKey, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ApprovalError reports a failed auto-approval. It is non-fatal: the summary
// is still posted, flagged so a human approves manually.
type ApprovalError struct {
	RequestKey string
	Err        error
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("auto-approval failed for request %s: %v", e.RequestKey, e.Err)
}

func (e *ApprovalError) Unwrap() error { return e.Err }
