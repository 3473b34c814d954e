// Package router delivers finished review results back to Slack and, when
// enabled, reflects the verdict onto the Git host.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/githost"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/registry"
	slackgw "github.com/mergemate/mergemate/internal/slack"
)

// Options are the global delivery switches. Repository-level opt-in still
// applies on top of AutoApprove.
type Options struct {
	// AutoApprove lets an approve verdict on a merge event approve the merge
	// request on the host.
	AutoApprove bool

	// LinkMergeRequests makes push reviews link (or open) the merge request
	// for the branch in the summary.
	LinkMergeRequests bool
}

// Outcome reports what delivery actually did, mostly for logging and tests.
type Outcome struct {
	Channel         string
	ThreadTS        string
	MessagesPosted  int
	ApprovalGranted bool
	ApprovalErr     error
}

// Router posts results to the trigger's Slack target. It never mutates the
// result; a delivery error after the provider call leaves the record done.
type Router struct {
	slack    slackgw.Gateway
	host     githost.Client // nil when no host credentials are configured
	registry *registry.Registry
	opts     Options
	logger   *slog.Logger
}

// New creates a Router. host may be nil; approval and linking are then skipped.
func New(gw slackgw.Gateway, host githost.Client, reg *registry.Registry, opts Options, logger *slog.Logger) *Router {
	return &Router{
		slack:    gw,
		host:     host,
		registry: reg,
		opts:     opts,
		logger:   logger,
	}
}

// Route posts the summary message, threads per-file suggestions under it, and
// performs the optional host-side actions. Approval trouble is non-fatal and
// is flagged in the summary instead.
func (r *Router) Route(ctx context.Context, req *core.ReviewRequest, payload *core.ReviewPayload, result *core.ReviewResult, repoCfg *core.RepoConfig) (*Outcome, error) {
	outcome := &Outcome{Channel: req.Target.ChannelID}

	// A reclaimed retry keeps the thread of the first delivery, so replies
	// land where the user already looked.
	threadTS := req.Target.ThreadTS
	if rec, ok := r.registry.Get(req.RequestKey); ok && rec.Target.ThreadTS != "" {
		threadTS = rec.Target.ThreadTS
	}

	sc := summaryContext{Truncated: payload != nil && payload.Truncated}

	if mrURL := r.linkMergeRequest(ctx, req); mrURL != "" {
		sc.MergeRequestURL = mrURL
	}

	if r.shouldApprove(req, result, repoCfg) {
		outcome.ApprovalErr = r.approve(ctx, req)
		if outcome.ApprovalErr != nil {
			r.logger.Warn("auto-approval failed", "request_key", req.RequestKey, "error", outcome.ApprovalErr)
			sc.ApprovalFailed = true
		} else {
			outcome.ApprovalGranted = true
			sc.ApprovalGranted = true
		}
	}

	summary := formatSummary(req, result, sc)
	ts, err := r.slack.PostMessage(ctx, req.Target.ChannelID, threadTS, summary)
	if err != nil {
		return outcome, fmt.Errorf("failed to deliver review %s: %w", req.RequestKey, err)
	}
	outcome.MessagesPosted++

	if threadTS == "" {
		threadTS = ts
		r.registry.SetThread(req.RequestKey, ts)
	}
	outcome.ThreadTS = threadTS

	for _, group := range groupSuggestions(req, result.Suggestions) {
		body := formatSuggestionGroup(group.path, group.sugs)
		if _, err := r.slack.PostMessage(ctx, req.Target.ChannelID, threadTS, body); err != nil {
			return outcome, fmt.Errorf("failed to deliver suggestions for %s: %w", req.RequestKey, err)
		}
		outcome.MessagesPosted++
	}

	r.logger.Info("review delivered",
		"request_key", req.RequestKey,
		"channel", outcome.Channel,
		"messages", outcome.MessagesPosted,
		"approved", outcome.ApprovalGranted,
	)
	return outcome, nil
}

// RouteFailure posts the user-facing notice for a review that did not produce
// a result. The notice always carries the request key.
func (r *Router) RouteFailure(ctx context.Context, target core.SlackTarget, requestKey string, cause error) error {
	_, err := r.slack.PostMessage(ctx, target.ChannelID, target.ThreadTS, formatFailure(requestKey, cause))
	if err != nil {
		r.logger.Error("failed to deliver failure notice", "request_key", requestKey, "error", err)
		return err
	}
	return nil
}

func (r *Router) shouldApprove(req *core.ReviewRequest, result *core.ReviewResult, repoCfg *core.RepoConfig) bool {
	return r.host != nil &&
		r.opts.AutoApprove &&
		repoCfg != nil && repoCfg.AutoApprove &&
		req.Source == core.SourceCIMerge &&
		result.Recommended == core.ActionApprove
}

func (r *Router) approve(ctx context.Context, req *core.ReviewRequest) error {
	owner, repo, err := gitutil.SplitFullName(req.RepoFullName)
	if err != nil {
		return &core.ApprovalError{RequestKey: req.RequestKey, Err: err}
	}

	mr, err := r.host.FindMergeRequestForBranch(ctx, owner, repo, req.Branch)
	if err != nil {
		return &core.ApprovalError{RequestKey: req.RequestKey, Err: err}
	}
	if mr == nil {
		return &core.ApprovalError{RequestKey: req.RequestKey, Err: fmt.Errorf("no open merge request for branch %s", req.Branch)}
	}

	body := fmt.Sprintf("Automated review found no blocking issues. (request %s)", req.RequestKey)
	if err := r.host.ApproveMergeRequest(ctx, owner, repo, mr.Number, body); err != nil {
		return &core.ApprovalError{RequestKey: req.RequestKey, Err: err}
	}
	return nil
}

// linkMergeRequest resolves the merge request for a push review, opening one
// when the payload named a target branch. Best effort only.
func (r *Router) linkMergeRequest(ctx context.Context, req *core.ReviewRequest) string {
	if r.host == nil || !r.opts.LinkMergeRequests || req.Source != core.SourceCIPush || req.RepoFullName == "" {
		return ""
	}

	owner, repo, err := gitutil.SplitFullName(req.RepoFullName)
	if err != nil {
		return ""
	}

	var mr *githost.MergeRequest
	if req.TargetBranch != "" {
		title := fmt.Sprintf("Review: %s", req.Branch)
		mr, err = r.host.FindOrCreateMergeRequest(ctx, owner, repo, req.Branch, req.TargetBranch, title)
	} else {
		mr, err = r.host.FindMergeRequestForBranch(ctx, owner, repo, req.Branch)
	}
	if err != nil {
		r.logger.Warn("could not resolve merge request for branch", "branch", req.Branch, "error", err)
		return ""
	}
	if mr == nil {
		return ""
	}
	return mr.URL
}

type suggestionGroup struct {
	path string
	sugs []core.Suggestion
}

// groupSuggestions buckets suggestions by file, preserving first-seen order.
// Suggestions the provider could not anchor to a changed file are collected
// under a trailing general bucket rather than dropped.
func groupSuggestions(req *core.ReviewRequest, sugs []core.Suggestion) []suggestionGroup {
	known := make(map[string]bool, len(req.ChangedFiles))
	for _, f := range req.ChangedFiles {
		known[f.Path] = true
	}
	// An upload of a raw patch may have no file list at all; then every
	// anchored path counts as known.
	trustAll := len(known) == 0

	var order []string
	byPath := make(map[string][]core.Suggestion)
	var general []core.Suggestion

	for _, sug := range sugs {
		anchored := sug.FilePath != "" && sug.FilePath != "unknown" && (trustAll || known[sug.FilePath])
		if !anchored {
			general = append(general, sug)
			continue
		}
		if _, ok := byPath[sug.FilePath]; !ok {
			order = append(order, sug.FilePath)
		}
		byPath[sug.FilePath] = append(byPath[sug.FilePath], sug)
	}

	groups := make([]suggestionGroup, 0, len(order)+1)
	for _, path := range order {
		groups = append(groups, suggestionGroup{path: path, sugs: byPath[path]})
	}
	if len(general) > 0 {
		groups = append(groups, suggestionGroup{path: "general notes", sugs: general})
	}
	return groups
}
