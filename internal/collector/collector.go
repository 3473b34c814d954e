// Package collector turns a normalized trigger into an immutable review
// request: it validates uploads, obtains the diff, filters the changed files,
// and enriches the request with issue-tracker metadata.
package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/issue"
)

// Config tunes validation limits and filtering. Zero values fall back to the
// defaults below.
type Config struct {
	AllowedUploadExts []string
	MaxUploadBytes    int64
	MaxExcerptBytes   int
	MaxFiles          int
	ExcludeDirs       []string
	ExcludeExts       []string
	IssueKeyPattern   string
	IssueFetchTimeout time.Duration

	// GitToken authenticates clone URLs when the collector has to compute
	// the diff itself.
	GitToken string
}

var defaultAllowedExts = []string{
	".patch", ".diff",
	".go", ".py", ".js", ".ts", ".tsx", ".java", ".rb", ".rs",
	".c", ".cc", ".cpp", ".h", ".cs", ".kt", ".swift",
	".sql", ".sh", ".yaml", ".yml", ".json", ".toml", ".md",
}

var defaultExcludeDirs = []string{".git", "vendor", "node_modules", "dist", "build"}

var defaultExcludeExts = []string{
	".png", ".jpg", ".jpeg", ".gif", ".ico", ".pdf",
	".zip", ".tar", ".gz", ".jar", ".exe", ".bin", ".lock",
}

const defaultIssueKeyPattern = `[A-Z][A-Z0-9]+-\d+`

// Collector assembles review requests. It is safe for concurrent use.
type Collector struct {
	cfg        Config
	git        *gitutil.Client
	issues     issue.Fetcher // nil disables issue enrichment
	issueKeyRe *regexp.Regexp
	logger     *slog.Logger
}

// New creates a Collector. issues may be nil when no tracker is configured.
func New(cfg Config, git *gitutil.Client, issues issue.Fetcher, logger *slog.Logger) (*Collector, error) {
	if len(cfg.AllowedUploadExts) == 0 {
		cfg.AllowedUploadExts = defaultAllowedExts
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	if cfg.MaxExcerptBytes <= 0 {
		cfg.MaxExcerptBytes = 8 << 10
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 50
	}
	if len(cfg.ExcludeDirs) == 0 {
		cfg.ExcludeDirs = defaultExcludeDirs
	}
	if len(cfg.ExcludeExts) == 0 {
		cfg.ExcludeExts = defaultExcludeExts
	}
	if cfg.IssueKeyPattern == "" {
		cfg.IssueKeyPattern = defaultIssueKeyPattern
	}
	if cfg.IssueFetchTimeout <= 0 {
		cfg.IssueFetchTimeout = 5 * time.Second
	}

	re, err := regexp.Compile(cfg.IssueKeyPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid issue key pattern %q: %w", cfg.IssueKeyPattern, err)
	}

	return &Collector{
		cfg:        cfg,
		git:        git,
		issues:     issues,
		issueKeyRe: re,
		logger:     logger,
	}, nil
}

// Collect builds the review request for a trigger. Unusable input surfaces as
// *core.ContextError carrying the request key; such failures are never
// retried. The returned RepoConfig is the repository's own tuning, or the
// defaults when none could be loaded.
func (c *Collector) Collect(ctx context.Context, ev *core.TriggerEvent) (*core.ReviewRequest, *core.RepoConfig, error) {
	switch ev.Source {
	case core.SourceSlackUpload:
		return c.collectFromUpload(ev)
	case core.SourceCIPush, core.SourceCIMerge:
		return c.collectFromCI(ctx, ev)
	default:
		return nil, nil, &core.ContextError{
			RequestKey: ev.RequestKey,
			Err:        fmt.Errorf("unknown trigger source %q", ev.Source),
		}
	}
}

func (c *Collector) collectFromUpload(ev *core.TriggerEvent) (*core.ReviewRequest, *core.RepoConfig, error) {
	if int64(len(ev.FileContent)) > c.cfg.MaxUploadBytes {
		return nil, nil, &core.ContextError{
			RequestKey: ev.RequestKey,
			Err:        fmt.Errorf("%w: %s is %d bytes, limit is %d", core.ErrFileTooLarge, ev.FileName, len(ev.FileContent), c.cfg.MaxUploadBytes),
		}
	}

	ext := strings.ToLower(filepath.Ext(ev.FileName))
	if !c.extAllowed(ext) {
		return nil, nil, &core.ContextError{
			RequestKey: ev.RequestKey,
			Err:        fmt.Errorf("%w: %q", core.ErrUnsupportedFileType, ext),
		}
	}
	if bytes.IndexByte(ev.FileContent, 0) >= 0 {
		return nil, nil, &core.ContextError{
			RequestKey: ev.RequestKey,
			Err:        fmt.Errorf("%w: %s looks binary", core.ErrUnsupportedFileType, ev.FileName),
		}
	}

	content := string(ev.FileContent)
	req := &core.ReviewRequest{
		Source:     ev.Source,
		RequestKey: ev.RequestKey,
		Target:     ev.Target,
	}

	if ext == ".patch" || ext == ".diff" {
		req.RawDiff = content
		for _, path := range pathsFromDiff(content) {
			req.ChangedFiles = append(req.ChangedFiles, core.ChangedFile{Path: path})
		}
	} else {
		req.ChangedFiles = []core.ChangedFile{{Path: ev.FileName, Excerpt: capExcerpt(content, c.cfg.MaxExcerptBytes)}}
	}

	// Uploads carry no branch, so the only issue hint is the content itself.
	if key := c.issueKeyRe.FindString(ev.FileName + "\n" + content); key != "" {
		req.Issue = c.fetchIssue(key, ev.RequestKey)
	}

	return req, core.DefaultRepoConfig(), nil
}

func (c *Collector) collectFromCI(ctx context.Context, ev *core.TriggerEvent) (*core.ReviewRequest, *core.RepoConfig, error) {
	req := &core.ReviewRequest{
		Source:       ev.Source,
		RequestKey:   ev.RequestKey,
		Target:       ev.Target,
		RepoFullName: ev.RepoFullName,
		Branch:       ev.Branch,
		TargetBranch: ev.TargetBranch,
		CommitSHA:    ev.CommitSHA,
	}

	diff := ev.Diff
	paths := ev.ChangedPaths
	repoCfg := core.DefaultRepoConfig()
	excerpts := map[string]string{}
	commitMsg := ""

	if diff == "" {
		computed, err := c.computeDiff(ctx, ev)
		if err != nil {
			return nil, nil, &core.ContextError{RequestKey: ev.RequestKey, Err: err}
		}
		diff = computed.diff
		paths = computed.paths
		repoCfg = computed.repoCfg
		excerpts = computed.excerpts
		commitMsg = computed.commitMsg
	} else if len(paths) == 0 {
		paths = pathsFromDiff(diff)
	}

	if strings.TrimSpace(diff) == "" {
		return nil, nil, &core.ContextError{RequestKey: ev.RequestKey, Err: core.ErrEmptyDiff}
	}
	req.RawDiff = diff

	for _, path := range c.filterPaths(paths, repoCfg) {
		req.ChangedFiles = append(req.ChangedFiles, core.ChangedFile{Path: path, Excerpt: excerpts[path]})
	}

	if key := c.findIssueKey(ev, commitMsg); key != "" {
		req.Issue = c.fetchIssue(key, ev.RequestKey)
	}

	return req, repoCfg, nil
}

type computedContext struct {
	diff      string
	paths     []string
	repoCfg   *core.RepoConfig
	excerpts  map[string]string
	commitMsg string
}

// computeDiff clones the repository and derives the diff the webhook did not
// carry. For a push the base is the commit's parent; for a merge event it is
// the head of the target branch.
func (c *Collector) computeDiff(ctx context.Context, ev *core.TriggerEvent) (*computedContext, error) {
	repoPath, cleanup, err := c.git.CloneAndCheckoutTemp(ctx, ev.RepoCloneURL, ev.CommitSHA, c.cfg.GitToken)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare repository: %w", err)
	}
	defer cleanup()

	repo, err := c.git.Open(repoPath)
	if err != nil {
		return nil, err
	}

	var baseSHA string
	if ev.Source == core.SourceCIMerge {
		baseSHA, err = c.git.GetRemoteHeadSHA(ctx, ev.RepoCloneURL, ev.TargetBranch, c.cfg.GitToken)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve target branch %s: %w", ev.TargetBranch, err)
		}
		if err := c.git.Fetch(ctx, repoPath, baseSHA); err != nil {
			return nil, err
		}
	} else {
		baseSHA, err = c.git.ParentSHA(repo, ev.CommitSHA)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve diff base: %w", err)
		}
	}

	diff, paths, err := c.git.UnifiedDiff(ctx, repo, baseSHA, ev.CommitSHA)
	if err != nil {
		return nil, err
	}

	out := &computedContext{diff: diff, paths: paths, repoCfg: core.DefaultRepoConfig(), excerpts: map[string]string{}}

	if loaded, loadErr := config.LoadRepoConfig(repoPath); loadErr == nil {
		out.repoCfg = loaded
	} else if !errors.Is(loadErr, config.ErrRepoConfigNotFound) {
		c.logger.Warn("ignoring unreadable repo config", "repo", ev.RepoFullName, "error", loadErr)
	}

	if msg, msgErr := c.git.CommitMessage(repo, ev.CommitSHA); msgErr == nil {
		out.commitMsg = msg
	}

	// Excerpts come from the checked-out worktree while we still have it.
	// Deleted files simply have no content to read.
	for _, path := range c.filterPaths(paths, out.repoCfg) {
		content, readErr := c.git.ReadFileCapped(repoPath, path, c.cfg.MaxExcerptBytes)
		if readErr != nil {
			continue
		}
		out.excerpts[path] = content
	}

	return out, nil
}

// filterPaths applies directory and extension exclusions and the file cap,
// preserving the incoming order.
func (c *Collector) filterPaths(paths []string, repoCfg *core.RepoConfig) []string {
	excludeDirs := append(append([]string{}, c.cfg.ExcludeDirs...), repoCfg.ExcludeDirs...)
	excludeExts := append(append([]string{}, c.cfg.ExcludeExts...), repoCfg.ExcludeExts...)

	var kept []string
	for _, path := range paths {
		if inExcludedDir(path, excludeDirs) || hasExcludedExt(path, excludeExts) {
			continue
		}
		kept = append(kept, path)
		if len(kept) >= c.cfg.MaxFiles {
			c.logger.Warn("changed file list capped", "cap", c.cfg.MaxFiles)
			break
		}
	}
	return kept
}

func (c *Collector) findIssueKey(ev *core.TriggerEvent, commitMsg string) string {
	for _, candidate := range []string{ev.IssueRefHint, ev.Branch, commitMsg} {
		if candidate == "" {
			continue
		}
		if key := c.issueKeyRe.FindString(strings.ToUpper(candidate)); key != "" {
			return key
		}
	}
	return ""
}

// fetchIssue is best effort: tracker trouble degrades the payload, it never
// fails the review.
func (c *Collector) fetchIssue(key, requestKey string) *core.IssueMeta {
	if c.issues == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.IssueFetchTimeout)
	defer cancel()

	meta, err := c.issues.Fetch(ctx, key)
	if err != nil {
		c.logger.Warn("issue metadata unavailable, reviewing without it",
			"issue_key", key,
			"request_key", requestKey,
			"error", err,
		)
		return nil
	}
	return meta
}

func (c *Collector) extAllowed(ext string) bool {
	for _, allowed := range c.cfg.AllowedUploadExts {
		if ext == allowed {
			return true
		}
	}
	return false
}

func inExcludedDir(path string, dirs []string) bool {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for _, seg := range segments[:max(len(segments)-1, 0)] {
		for _, dir := range dirs {
			if seg == dir {
				return true
			}
		}
	}
	return false
}

func hasExcludedExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

var diffPathRegex = regexp.MustCompile(`(?m)^\+\+\+ (?:b/)?(\S+)`)

// pathsFromDiff extracts changed file paths from unified diff headers.
func pathsFromDiff(diff string) []string {
	var paths []string
	seen := make(map[string]struct{})
	for _, m := range diffPathRegex.FindAllStringSubmatch(diff, -1) {
		path := m[1]
		if path == "/dev/null" {
			continue
		}
		if _, ok := seen[path]; !ok {
			seen[path] = struct{}{}
			paths = append(paths, path)
		}
	}
	return paths
}

func capExcerpt(s string, maxBytes int) string {
	if maxBytes > 0 && len(s) > maxBytes {
		return s[:maxBytes]
	}
	return s
}
