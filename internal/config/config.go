// Package config loads the application configuration from environment
// variables and an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mergemate/mergemate/internal/logger"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port string
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SlackConfig holds the bot credentials and channel routing.
type SlackConfig struct {
	BotToken      string
	SigningSecret string

	// DefaultChannel receives reviews for repositories without an explicit
	// mapping.
	DefaultChannel string

	// ChannelByRepo maps "owner/repo" to a channel ID. Parsed from
	// SLACK_CHANNEL_MAP, e.g. "acme/widgets:C0123,acme/api:C0456".
	ChannelByRepo map[string]string
}

// GitHubConfig holds App and token credentials for the Git host.
type GitHubConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string

	// Token is a PAT used by the CLI and as a fallback when no App
	// installation is configured.
	Token string
}

// CIConfig guards the CI webhook endpoint.
type CIConfig struct {
	// WebhookToken must match the X-MergeMate-Token header on CI posts.
	// Empty disables the check (local development only).
	WebhookToken string
}

// IssueConfig points at the Jira-compatible issue tracker. An empty BaseURL
// disables issue enrichment.
type IssueConfig struct {
	BaseURL      string
	Email        string
	APIToken     string
	KeyPattern   string
	FetchTimeout time.Duration
	CacheTTL     time.Duration
}

// AIConfig selects and tunes the review provider.
type AIConfig struct {
	Provider     string
	ModelName    string
	GeminiAPIKey string
	OllamaHost   string
	CallTimeout  time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	TokenBudget  int
}

// ReviewConfig tunes the orchestration flow itself.
type ReviewConfig struct {
	MaxWorkers        int
	AutoApprove       bool
	LinkMergeRequests bool
	MaxUploadBytes    int64
	MaxFiles          int

	// Registry bounds.
	Retention  time.Duration
	Liveness   time.Duration
	MaxRecords int
}

// Config holds the application's configuration values.
type Config struct {
	Server   ServerConfig
	Database DBConfig
	Slack    SlackConfig
	GitHub   GitHubConfig
	CI       CIConfig
	Issue    IssueConfig
	AI       AIConfig
	Review   ReviewConfig
	Logging  logger.Config
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("LOG_OUTPUT", "stdout")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "mergemate")
	viper.SetDefault("DB_NAME", "mergemate")
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	viper.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")

	viper.SetDefault("AI_PROVIDER", "ollama")
	viper.SetDefault("AI_MODEL_NAME", "gemma3:latest")
	viper.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	viper.SetDefault("AI_CALL_TIMEOUT", "120s")
	viper.SetDefault("AI_MAX_ATTEMPTS", 3)
	viper.SetDefault("AI_BACKOFF_BASE", "2s")
	viper.SetDefault("AI_TOKEN_BUDGET", 16000)

	viper.SetDefault("ISSUE_KEY_PATTERN", `[A-Z][A-Z0-9]+-\d+`)
	viper.SetDefault("ISSUE_FETCH_TIMEOUT", "5s")
	viper.SetDefault("ISSUE_CACHE_TTL", "10m")

	viper.SetDefault("MAX_WORKERS", 5)
	viper.SetDefault("MAX_UPLOAD_BYTES", 1<<20)
	viper.SetDefault("MAX_FILES", 50)
	viper.SetDefault("REGISTRY_RETENTION", "24h")
	viper.SetDefault("REGISTRY_LIVENESS", "15m")
	viper.SetDefault("REGISTRY_MAX_RECORDS", 10000)

	viper.SetDefault("GITHUB_PRIVATE_KEY_PATH", "keys/mergemate-app.private-key.pem")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", "error", err)
		}
	}

	if viper.GetString("SLACK_BOT_TOKEN") == "" {
		return nil, fmt.Errorf("SLACK_BOT_TOKEN must be set")
	}
	if viper.GetString("SLACK_DEFAULT_CHANNEL") == "" && viper.GetString("SLACK_CHANNEL_MAP") == "" {
		return nil, fmt.Errorf("SLACK_DEFAULT_CHANNEL or SLACK_CHANNEL_MAP must be set")
	}

	channelMap, err := parseChannelMap(viper.GetString("SLACK_CHANNEL_MAP"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("SERVER_PORT"),
		},
		Database: DBConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			Username:        viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			ConnMaxLifetime: viper.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: viper.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		Slack: SlackConfig{
			BotToken:       viper.GetString("SLACK_BOT_TOKEN"),
			SigningSecret:  viper.GetString("SLACK_SIGNING_SECRET"),
			DefaultChannel: viper.GetString("SLACK_DEFAULT_CHANNEL"),
			ChannelByRepo:  channelMap,
		},
		GitHub: GitHubConfig{
			AppID:          viper.GetInt64("GITHUB_APP_ID"),
			InstallationID: viper.GetInt64("GITHUB_INSTALLATION_ID"),
			PrivateKeyPath: viper.GetString("GITHUB_PRIVATE_KEY_PATH"),
			Token:          viper.GetString("GITHUB_TOKEN"),
		},
		CI: CIConfig{
			WebhookToken: viper.GetString("CI_WEBHOOK_TOKEN"),
		},
		Issue: IssueConfig{
			BaseURL:      viper.GetString("ISSUE_BASE_URL"),
			Email:        viper.GetString("ISSUE_EMAIL"),
			APIToken:     viper.GetString("ISSUE_API_TOKEN"),
			KeyPattern:   viper.GetString("ISSUE_KEY_PATTERN"),
			FetchTimeout: viper.GetDuration("ISSUE_FETCH_TIMEOUT"),
			CacheTTL:     viper.GetDuration("ISSUE_CACHE_TTL"),
		},
		AI: AIConfig{
			Provider:     viper.GetString("AI_PROVIDER"),
			ModelName:    modelNameForProvider(),
			GeminiAPIKey: viper.GetString("GEMINI_API_KEY"),
			OllamaHost:   viper.GetString("OLLAMA_HOST"),
			CallTimeout:  viper.GetDuration("AI_CALL_TIMEOUT"),
			MaxAttempts:  viper.GetInt("AI_MAX_ATTEMPTS"),
			BackoffBase:  viper.GetDuration("AI_BACKOFF_BASE"),
			TokenBudget:  viper.GetInt("AI_TOKEN_BUDGET"),
		},
		Review: ReviewConfig{
			MaxWorkers:        viper.GetInt("MAX_WORKERS"),
			AutoApprove:       viper.GetBool("AUTO_APPROVE"),
			LinkMergeRequests: viper.GetBool("LINK_MERGE_REQUESTS"),
			MaxUploadBytes:    viper.GetInt64("MAX_UPLOAD_BYTES"),
			MaxFiles:          viper.GetInt("MAX_FILES"),
			Retention:         viper.GetDuration("REGISTRY_RETENTION"),
			Liveness:          viper.GetDuration("REGISTRY_LIVENESS"),
			MaxRecords:        viper.GetInt("REGISTRY_MAX_RECORDS"),
		},
		Logging: logger.Config{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
			Output: viper.GetString("LOG_OUTPUT"),
		},
	}, nil
}

// ChannelForRepo resolves the Slack channel a repository's reviews go to.
func (c *Config) ChannelForRepo(repoFullName string) string {
	if ch, ok := c.Slack.ChannelByRepo[repoFullName]; ok {
		return ch
	}
	return c.Slack.DefaultChannel
}

// modelNameForProvider prefers a provider-specific model override.
func modelNameForProvider() string {
	model := viper.GetString("AI_MODEL_NAME")
	if viper.GetString("AI_PROVIDER") == "gemini" {
		if geminiModel := viper.GetString("GEMINI_MODEL_NAME"); geminiModel != "" {
			return geminiModel
		}
		return "gemini-2.5-flash"
	}
	return model
}

// parseChannelMap parses "owner/repo:CHANNEL,owner2/repo2:CHANNEL2".
func parseChannelMap(raw string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.LastIndex(pair, ":")
		if idx <= 0 || idx == len(pair)-1 {
			return nil, fmt.Errorf("invalid SLACK_CHANNEL_MAP entry %q, want owner/repo:CHANNEL", pair)
		}
		out[strings.TrimSpace(pair[:idx])] = strings.TrimSpace(pair[idx+1:])
	}
	return out, nil
}
