// Package githost provides functionality for interacting with the GitHub API.
package githost

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
)

// MergeRequest is the host-neutral view of a pull request the router and CLI
// work with.
type MergeRequest struct {
	Number     int
	Title      string
	URL        string
	HeadSHA    string
	BaseBranch string
}

// Client defines the operations the review flow needs against the Git host:
// reading diffs, linking merge requests, and approving them.
//
//go:generate mockgen -destination=../../mocks/mock_githost_client.go -package=mocks . Client
type Client interface {
	GetMergeRequestDiff(ctx context.Context, owner, repo string, number int) (string, error)
	FindMergeRequestForBranch(ctx context.Context, owner, repo, branch string) (*MergeRequest, error)
	// FindOrCreateMergeRequest returns the open merge request for branch, or
	// opens a new one against targetBranch. Repeated calls with the same
	// arguments converge on the same merge request.
	FindOrCreateMergeRequest(ctx context.Context, owner, repo, branch, targetBranch, title string) (*MergeRequest, error)
	ApproveMergeRequest(ctx context.Context, owner, repo string, number int, body string) error
}

type gitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewClient wraps the official go-github client to provide a focused,
// testable interface for the operations the review flow performs.
func NewClient(client *github.Client, logger *slog.Logger) Client {
	return &gitHubClient{client: client, logger: logger}
}

// NewPATClient creates a client authenticated with a Personal Access Token.
// This is useful for CLI tools or local development where an App installation
// is not available.
func NewPATClient(ctx context.Context, token string, logger *slog.Logger) Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return &gitHubClient{client: github.NewClient(tc), logger: logger}
}

// GetMergeRequestDiff retrieves the unified diff of a merge request.
func (g *gitHubClient) GetMergeRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, _, err := g.client.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{
		Type: github.Diff,
	})
	if err != nil {
		g.logger.Error("failed to get merge request diff", "owner", owner, "repo", repo, "number", number, "error", err)
		return "", err
	}
	return diff, nil
}

// FindMergeRequestForBranch returns the open merge request whose source is
// branch, or nil when none exists.
func (g *gitHubClient) FindMergeRequestForBranch(ctx context.Context, owner, repo, branch string) (*MergeRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		Head:        fmt.Sprintf("%s:%s", owner, branch),
		ListOptions: github.ListOptions{PerPage: 10},
	}
	prs, _, err := g.client.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		g.logger.Error("failed to list merge requests", "owner", owner, "repo", repo, "branch", branch, "error", err)
		return nil, err
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return fromGitHubPR(prs[0]), nil
}

// FindOrCreateMergeRequest finds the open merge request for branch or creates
// one. The find-first order makes the operation idempotent under webhook
// retries.
func (g *gitHubClient) FindOrCreateMergeRequest(ctx context.Context, owner, repo, branch, targetBranch, title string) (*MergeRequest, error) {
	existing, err := g.FindMergeRequestForBranch(ctx, owner, repo, branch)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	newPR := &github.NewPullRequest{
		Title: github.Ptr(title),
		Head:  github.Ptr(branch),
		Base:  github.Ptr(targetBranch),
	}
	pr, _, err := g.client.PullRequests.Create(ctx, owner, repo, newPR)
	if err != nil {
		g.logger.Error("failed to create merge request", "owner", owner, "repo", repo, "branch", branch, "error", err)
		return nil, fmt.Errorf("failed to create merge request for %s/%s branch %s: %w", owner, repo, branch, err)
	}

	g.logger.Info("created merge request", "owner", owner, "repo", repo, "branch", branch, "number", pr.GetNumber())
	return fromGitHubPR(pr), nil
}

// ApproveMergeRequest submits an approving review with the given body.
func (g *gitHubClient) ApproveMergeRequest(ctx context.Context, owner, repo string, number int, body string) error {
	review := &github.PullRequestReviewRequest{
		Body:  github.Ptr(body),
		Event: github.Ptr("APPROVE"),
	}
	_, _, err := g.client.PullRequests.CreateReview(ctx, owner, repo, number, review)
	if err != nil {
		g.logger.Error("failed to approve merge request", "owner", owner, "repo", repo, "number", number, "error", err)
		return fmt.Errorf("failed to approve merge request %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

func fromGitHubPR(pr *github.PullRequest) *MergeRequest {
	return &MergeRequest{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		URL:        pr.GetHTMLURL(),
		HeadSHA:    pr.GetHead().GetSHA(),
		BaseBranch: pr.GetBase().GetRef(),
	}
}
