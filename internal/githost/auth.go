package githost

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
)

// AppCredentials holds what is needed to authenticate as a GitHub App
// installation.
type AppCredentials struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

// CreateInstallationClient authenticates as the App installation and returns
// the client together with the raw installation token. The token is also used
// to authenticate clone URLs.
func CreateInstallationClient(ctx context.Context, creds AppCredentials, logger *slog.Logger) (Client, string, error) {
	logger.Info("creating installation client", "installation_id", creds.InstallationID)

	privateKey, err := os.ReadFile(creds.PrivateKeyPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read private key from %s: %w", creds.PrivateKeyPath, err)
	}

	appTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, creds.AppID, privateKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create app transport: %w", err)
	}
	appClient := github.NewClient(&http.Client{Transport: appTransport})

	token, _, err := appClient.Apps.CreateInstallationToken(ctx, creds.InstallationID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create installation token for installation ID %d: %w", creds.InstallationID, err)
	}
	if token.GetToken() == "" {
		return nil, "", fmt.Errorf("received an empty installation token")
	}
	logger.Info("created installation token", "installation_id", creds.InstallationID, "expires_at", token.GetExpiresAt())

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.GetToken()})
	tc := oauth2.NewClient(ctx, ts)
	installationClient := github.NewClient(tc)

	return NewClient(installationClient, logger), token.GetToken(), nil
}
