package wire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/mergemate/mergemate/internal/app"
	"github.com/mergemate/mergemate/internal/collector"
	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/db"
	"github.com/mergemate/mergemate/internal/dispatch"
	"github.com/mergemate/mergemate/internal/githost"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/issue"
	"github.com/mergemate/mergemate/internal/jobs"
	"github.com/mergemate/mergemate/internal/llm"
	"github.com/mergemate/mergemate/internal/logger"
	"github.com/mergemate/mergemate/internal/payload"
	"github.com/mergemate/mergemate/internal/registry"
	"github.com/mergemate/mergemate/internal/router"
	"github.com/mergemate/mergemate/internal/server"
	slackgw "github.com/mergemate/mergemate/internal/slack"
	"github.com/mergemate/mergemate/internal/storage"
)

var AppSet = wire.NewSet(
	app.NewApp,
	logger.NewLogger,
	config.LoadConfig,
	db.NewDatabase,
	storage.NewStore,
	gitutil.NewClient,
	jobs.NewReviewJob,
	payload.NewTemplateSet,
	provideRegistry,
	provideGateway,
	provideGitAccess,
	provideIssueFetcher,
	provideCollector,
	provideBuilder,
	provideReviewModel,
	provideReviewer,
	provideReviewDispatcher,
	provideRouter,
	provideJobDispatcher,
	provideServer,
	provideDBConfig,
	provideLoggerConfig,
	provideLogWriter,
)

// gitAccess pairs the Git host API client with the token used to
// authenticate clone URLs. Both are empty when no credentials are
// configured; reviews still run, merge request linking and approval
// are disabled.
type gitAccess struct {
	host  githost.Client
	token string
}

func provideGitAccess(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gitAccess, error) {
	switch {
	case cfg.GitHub.AppID != 0 && cfg.GitHub.InstallationID != 0:
		host, token, err := githost.CreateInstallationClient(ctx, githost.AppCredentials{
			AppID:          cfg.GitHub.AppID,
			InstallationID: cfg.GitHub.InstallationID,
			PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create installation client: %w", err)
		}
		return &gitAccess{host: host, token: token}, nil

	case cfg.GitHub.Token != "":
		return &gitAccess{
			host:  githost.NewPATClient(ctx, cfg.GitHub.Token, logger),
			token: cfg.GitHub.Token,
		}, nil

	default:
		logger.Warn("no git host credentials configured, merge request linking and auto-approval are disabled")
		return &gitAccess{}, nil
	}
}

func provideRegistry(cfg *config.Config, logger *slog.Logger) *registry.Registry {
	return registry.New(cfg.Review.Retention, cfg.Review.Liveness, cfg.Review.MaxRecords, logger)
}

func provideGateway(cfg *config.Config, logger *slog.Logger) slackgw.Gateway {
	return slackgw.NewGateway(cfg.Slack.BotToken, logger)
}

func provideIssueFetcher(cfg *config.Config, logger *slog.Logger) (issue.Fetcher, error) {
	if cfg.Issue.BaseURL == "" {
		logger.Info("issue tracker not configured, issue enrichment disabled")
		return nil, nil
	}
	return issue.NewJiraFetcher(issue.Config{
		BaseURL:      cfg.Issue.BaseURL,
		Email:        cfg.Issue.Email,
		APIToken:     cfg.Issue.APIToken,
		FetchTimeout: cfg.Issue.FetchTimeout,
		CacheTTL:     cfg.Issue.CacheTTL,
	}, logger)
}

func provideCollector(cfg *config.Config, git *gitutil.Client, access *gitAccess, issues issue.Fetcher, logger *slog.Logger) (*collector.Collector, error) {
	return collector.New(collector.Config{
		MaxUploadBytes:    cfg.Review.MaxUploadBytes,
		MaxFiles:          cfg.Review.MaxFiles,
		IssueKeyPattern:   cfg.Issue.KeyPattern,
		IssueFetchTimeout: cfg.Issue.FetchTimeout,
		GitToken:          access.token,
	}, git, issues, logger)
}

func provideBuilder(templates *payload.TemplateSet, cfg *config.Config, logger *slog.Logger) *payload.Builder {
	return payload.NewBuilder(templates, cfg.AI.Provider, cfg.AI.TokenBudget, logger)
}

func provideReviewModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llms.Model, error) {
	switch cfg.AI.Provider {
	case "gemini":
		if cfg.AI.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set in environment for gemini provider")
		}
		return gemini.New(ctx,
			gemini.WithModel(cfg.AI.ModelName),
			gemini.WithAPIKey(cfg.AI.GeminiAPIKey),
		)
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.AI.OllamaHost),
			ollama.WithHTTPClient(newOllamaHTTPClient()),
			ollama.WithModel(cfg.AI.ModelName),
			ollama.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.AI.Provider)
	}
}

func provideReviewer(model llms.Model, cfg *config.Config, logger *slog.Logger) llm.Reviewer {
	return llm.NewModelReviewer(model, cfg.AI.CallTimeout, logger)
}

func provideReviewDispatcher(reg *registry.Registry, reviewer llm.Reviewer, cfg *config.Config, logger *slog.Logger) *dispatch.Dispatcher {
	return dispatch.New(reg, reviewer, cfg.AI.MaxAttempts, cfg.AI.BackoffBase, logger)
}

func provideRouter(gw slackgw.Gateway, access *gitAccess, reg *registry.Registry, cfg *config.Config, logger *slog.Logger) *router.Router {
	return router.New(gw, access.host, reg, router.Options{
		AutoApprove:       cfg.Review.AutoApprove,
		LinkMergeRequests: cfg.Review.LinkMergeRequests,
	}, logger)
}

func provideJobDispatcher(reviewJob core.Job, cfg *config.Config, logger *slog.Logger) *jobs.Dispatcher {
	return jobs.NewDispatcher(reviewJob, cfg.Review.MaxWorkers, logger)
}

func provideServer(ctx context.Context, cfg *config.Config, dispatcher *jobs.Dispatcher, reg *registry.Registry, gw slackgw.Gateway, git *gitutil.Client, logger *slog.Logger) *server.Server {
	return server.NewServer(ctx, cfg, dispatcher, reg, gw, git, logger)
}

// newOllamaHTTPClient creates an HTTP client with longer timeouts.
// Local models can take minutes on large diffs.
func newOllamaHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableKeepAlives:   false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   5 * time.Minute,
	}
}

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.Logging
}

func provideLogWriter(cfg *config.Config) io.Writer {
	switch cfg.Logging.Output {
	case "stderr":
		return os.Stderr
	case "file":
		f, err := os.OpenFile("mergemate.log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}

func provideDBConfig(cfg *config.Config) *config.DBConfig {
	return &cfg.Database
}
