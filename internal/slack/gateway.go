// Package slack wraps the Slack Web API behind the small surface the
// orchestrator needs: posting messages (optionally threaded) and downloading
// shared files.
package slack

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
)

// Gateway is the outbound Slack capability. Implementations must be safe for
// concurrent use; the worker pool posts from multiple goroutines.
//
//go:generate mockgen -destination=../../mocks/mock_slack_gateway.go -package=mocks . Gateway
type Gateway interface {
	// PostMessage posts text to a channel. A non-empty threadTS makes the
	// message a threaded reply. It returns the timestamp of the posted
	// message, which doubles as the thread identifier for later replies.
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)

	// DownloadFile fetches a shared file's name and content by file ID.
	DownloadFile(ctx context.Context, fileID string) (string, []byte, error)
}

type gateway struct {
	api    *slack.Client
	logger *slog.Logger
}

// NewGateway creates a Gateway backed by the Slack Web API.
func NewGateway(botToken string, logger *slog.Logger) Gateway {
	return &gateway{
		api:    slack.New(botToken),
		logger: logger,
	}
}

func (g *gateway) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, ts, err := g.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		g.logger.Error("failed to post slack message", "channel", channelID, "thread_ts", threadTS, "error", err)
		return "", fmt.Errorf("failed to post slack message: %w", err)
	}
	return ts, nil
}

func (g *gateway) DownloadFile(ctx context.Context, fileID string) (string, []byte, error) {
	file, _, _, err := g.api.GetFileInfoContext(ctx, fileID, 0, 0)
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up slack file %s: %w", fileID, err)
	}

	var buf bytes.Buffer
	if err := g.api.GetFileContext(ctx, file.URLPrivateDownload, &buf); err != nil {
		return "", nil, fmt.Errorf("failed to download slack file %s: %w", fileID, err)
	}

	g.logger.Debug("downloaded slack file", "file_id", fileID, "name", file.Name, "bytes", buf.Len())
	return file.Name, buf.Bytes(), nil
}
