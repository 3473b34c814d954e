// Package issue fetches ticket metadata from a Jira-style REST API. Results
// are cached in-process; the review flow treats missing metadata as a
// degraded payload, never a failure.
package issue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/mergemate/mergemate/internal/core"
)

// Fetcher resolves an issue key like "PROJ-123" to its metadata.
//
//go:generate mockgen -destination=../../mocks/mock_issue_fetcher.go -package=mocks . Fetcher
type Fetcher interface {
	Fetch(ctx context.Context, key string) (*core.IssueMeta, error)
}

// Config holds the tracker endpoint and credentials.
type Config struct {
	BaseURL      string
	Email        string
	APIToken     string
	FetchTimeout time.Duration
	CacheTTL     time.Duration
}

type jiraFetcher struct {
	cfg    Config
	client *http.Client
	cache  *ristretto.Cache[string, *core.IssueMeta]
	logger *slog.Logger
}

// NewJiraFetcher creates a Fetcher against a Jira-compatible REST API.
func NewJiraFetcher(cfg Config, logger *slog.Logger) (Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("issue tracker base URL is required")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *core.IssueMeta]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create issue cache: %w", err)
	}

	return &jiraFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		cache:  cache,
		logger: logger,
	}, nil
}

// issueResponse mirrors the subset of the Jira issue resource we read.
type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

func (f *jiraFetcher) Fetch(ctx context.Context, key string) (*core.IssueMeta, error) {
	if meta, ok := f.cache.Get(key); ok {
		f.logger.Debug("issue cache hit", "key", key)
		return meta, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=summary,description,status",
		f.cfg.BaseURL, url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build issue request for %s: %w", key, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.cfg.Email != "" {
		req.SetBasicAuth(f.cfg.Email, f.cfg.APIToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("issue fetch for %s failed: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("issue fetch for %s returned %d: %s", key, resp.StatusCode, string(body))
	}

	var parsed issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode issue %s: %w", key, err)
	}

	meta := &core.IssueMeta{
		Key:         key,
		Title:       parsed.Fields.Summary,
		Description: parsed.Fields.Description,
		Status:      parsed.Fields.Status.Name,
	}
	f.cache.SetWithTTL(key, meta, 1, f.cfg.CacheTTL)

	f.logger.Debug("fetched issue metadata", "key", key, "status", meta.Status)
	return meta, nil
}
