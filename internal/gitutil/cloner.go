// Package gitutil provides a client for working with Git repositories.
package gitutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Client handles interacting with Git repositories.
type Client struct {
	Logger *slog.Logger
}

// NewClient returns a new Client instance.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Logger: logger}
}

// Open opens a Git repository at a given path.
func (c *Client) Open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return repo, nil
}

// Clone clones a repository to a specific path without checking out a
// specific SHA. The git CLI is used so core.longpaths can be forced on.
func (c *Client) Clone(ctx context.Context, repoURL, path, token string) (*git.Repository, error) {
	authURL, err := c.getAuthenticatedURL(repoURL, token)
	if err != nil {
		return nil, err
	}

	c.Logger.InfoContext(ctx, "cloning repository", "url", repoURL, "path", path)
	cmd := exec.CommandContext(ctx, "git", "-c", "core.longpaths=true", "clone", authURL, path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("git clone failed: %s: %w", string(out), err)
	}

	// Open with go-git so diff operations can work on the object store.
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cloned repo: %w", err)
	}
	return repo, nil
}

// Fetch fetches updates from the 'origin' remote, retrying transient errors
// with exponential backoff.
func (c *Client) Fetch(ctx context.Context, path string, refSpecs ...string) error {
	c.Logger.InfoContext(ctx, "fetching latest changes from origin")

	args := []string{"-c", "core.longpaths=true", "fetch", "origin", "--force"}
	args = append(args, refSpecs...)

	const maxRetries = 3
	const baseDelay = 2 * time.Second

	var err error
	for i := 0; i <= maxRetries; i++ {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = path

		if i > 0 {
			delay := baseDelay * time.Duration(1<<(i-1))
			c.Logger.WarnContext(ctx, "git fetch failed, retrying",
				"attempt", i,
				"max_retries", maxRetries,
				"delay", delay,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if out, cmdErr := cmd.CombinedOutput(); cmdErr != nil {
			err = fmt.Errorf("git fetch failed: %s: %w", string(out), cmdErr)
			continue
		}

		c.Logger.InfoContext(ctx, "fetch complete")
		return nil
	}

	return err
}

// Checkout switches the repository's worktree to a specific commit.
func (c *Client) Checkout(ctx context.Context, path, sha string) error {
	c.Logger.Info("checking out commit", "sha", sha)

	cmd := exec.CommandContext(ctx, "git", "-c", "core.longpaths=true", "checkout", "--force", sha)
	cmd.Dir = path

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout failed: %s: %w", string(out), err)
	}
	return nil
}

// GetRemoteHeadSHA fetches the HEAD commit SHA of a remote branch without
// cloning.
func (c *Client) GetRemoteHeadSHA(ctx context.Context, repoURL, branch, token string) (string, error) {
	authURL, err := c.getAuthenticatedURL(repoURL, token)
	if err != nil {
		return "", err
	}

	ref := fmt.Sprintf("refs/heads/%s", branch)
	out, err := exec.CommandContext(ctx, "git", "ls-remote", authURL, ref).Output()
	if err != nil {
		return "", fmt.Errorf("git ls-remote failed: %w. Ensure branch '%s' exists", err, branch)
	}

	output := strings.TrimSpace(string(out))
	if output == "" {
		return "", fmt.Errorf("branch '%s' not found or repository is empty", branch)
	}
	return strings.Fields(output)[0], nil
}

// UnifiedDiff renders the changes between two SHAs as a unified diff and
// returns the text together with the paths touched.
func (c *Client) UnifiedDiff(ctx context.Context, repo *git.Repository, oldSHA, newSHA string) (string, []string, error) {
	oldCommit, err := repo.CommitObject(plumbing.NewHash(oldSHA))
	if err != nil {
		return "", nil, fmt.Errorf("failed to get commit object for old SHA %s: %w", oldSHA, err)
	}
	newCommit, err := repo.CommitObject(plumbing.NewHash(newSHA))
	if err != nil {
		return "", nil, fmt.Errorf("failed to get commit object for new SHA %s: %w", newSHA, err)
	}

	patch, err := oldCommit.PatchContext(ctx, newCommit)
	if err != nil {
		return "", nil, fmt.Errorf("failed to compute patch between %s and %s: %w", oldSHA, newSHA, err)
	}

	var paths []string
	seen := make(map[string]struct{})
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		name := ""
		if to != nil {
			name = to.Path()
		} else if from != nil {
			name = from.Path()
		}
		if name == "" {
			continue
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			paths = append(paths, name)
		}
	}

	return patch.String(), paths, nil
}

// ParentSHA returns the first parent of a commit. Root commits have no
// parent and yield an error.
func (c *Client) ParentSHA(repo *git.Repository, sha string) (string, error) {
	commit, err := repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return "", fmt.Errorf("failed to get commit object for SHA %s: %w", sha, err)
	}
	if commit.NumParents() == 0 {
		return "", fmt.Errorf("commit %s has no parent", sha)
	}
	return commit.ParentHashes[0].String(), nil
}

// CommitMessage returns the full message of a commit.
func (c *Client) CommitMessage(repo *git.Repository, sha string) (string, error) {
	commit, err := repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return "", fmt.Errorf("failed to get commit object for SHA %s: %w", sha, err)
	}
	return commit.Message, nil
}

// ReadFileCapped reads a file from a checked-out worktree, truncating the
// content at maxBytes. A zero or negative cap reads the whole file.
func (c *Client) ReadFileCapped(repoPath, relPath string, maxBytes int) (string, error) {
	data, err := os.ReadFile(filepath.Join(repoPath, relPath))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		data = data[:maxBytes]
	}
	return string(data), nil
}

// CloneAndCheckoutTemp clones a repo into a temporary directory, checks out a
// commit, and returns the path with a cleanup function.
func (c *Client) CloneAndCheckoutTemp(ctx context.Context, repoURL, sha, token string) (string, func(), error) {
	repoPath, err := os.MkdirTemp("", "mergemate-repo-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup := func() {
		c.Logger.Info("cleaning up temporary repository", "path", repoPath)
		if removeErr := os.RemoveAll(repoPath); removeErr != nil {
			c.Logger.Error("failed to remove temp repo", "path", repoPath, "error", removeErr)
		}
	}

	if _, err := c.Clone(ctx, repoURL, repoPath, token); err != nil {
		cleanup()
		return "", nil, err
	}

	if err := c.Checkout(ctx, repoPath, sha); err != nil {
		cleanup()
		return "", nil, err
	}

	c.Logger.InfoContext(ctx, "repository cloned and checked out successfully")
	return repoPath, cleanup, nil
}

func (c *Client) getAuthenticatedURL(repoURL, token string) (string, error) {
	// Handle local paths directly. file:// is intentionally unsupported.
	if !strings.Contains(repoURL, "://") {
		return repoURL, nil
	}

	if !strings.HasPrefix(repoURL, "https://") && !strings.HasPrefix(repoURL, "http://") {
		return "", fmt.Errorf("invalid repository URL: %s", repoURL)
	}

	parsedURL, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse repository URL '%s': %w", repoURL, err)
	}
	if token != "" {
		parsedURL.User = url.UserPassword("x-access-token", token)
	}
	return parsedURL.String(), nil
}

// GetHeadSHA returns the current HEAD SHA of the repository at the given path.
func (c *Client) GetHeadSHA(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-c", "core.longpaths=true", "rev-parse", "HEAD")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
