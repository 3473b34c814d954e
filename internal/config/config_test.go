package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_RequiresSlackCredentials(t *testing.T) {
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_BOT_TOKEN")
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_DEFAULT_CHANNEL", "C123")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.AI.Provider)
	assert.Equal(t, 3, cfg.AI.MaxAttempts)
	assert.Equal(t, 16000, cfg.AI.TokenBudget)
	assert.Equal(t, 5, cfg.Review.MaxWorkers)
	assert.Equal(t, int64(1<<20), cfg.Review.MaxUploadBytes)
	assert.Equal(t, 10000, cfg.Review.MaxRecords)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadConfig_GeminiModelOverride(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_DEFAULT_CHANNEL", "C123")
	t.Setenv("AI_PROVIDER", "gemini")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", cfg.AI.ModelName)
}

func TestParseChannelMap(t *testing.T) {
	m, err := parseChannelMap("acme/widgets:C0123, acme/api:C0456")
	require.NoError(t, err)
	assert.Equal(t, "C0123", m["acme/widgets"])
	assert.Equal(t, "C0456", m["acme/api"])

	_, err = parseChannelMap("missing-channel")
	assert.Error(t, err)

	m, err = parseChannelMap("")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestChannelForRepo(t *testing.T) {
	cfg := &Config{Slack: SlackConfig{
		DefaultChannel: "CDEF",
		ChannelByRepo:  map[string]string{"acme/widgets": "C0123"},
	}}

	assert.Equal(t, "C0123", cfg.ChannelForRepo("acme/widgets"))
	assert.Equal(t, "CDEF", cfg.ChannelForRepo("other/repo"))
}
