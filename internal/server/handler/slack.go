package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/registry"
	slackgw "github.com/mergemate/mergemate/internal/slack"
)

// SlackEventsHandler accepts the Slack Events API callbacks (file uploads)
// and the slash command.
type SlackEventsHandler struct {
	cfg        *config.Config
	dispatcher core.JobDispatcher
	registry   *registry.Registry
	gateway    slackgw.Gateway
	git        *gitutil.Client
	logger     *slog.Logger
}

// NewSlackEventsHandler creates the handler for the Slack endpoints.
func NewSlackEventsHandler(cfg *config.Config, dispatcher core.JobDispatcher, reg *registry.Registry, gw slackgw.Gateway, git *gitutil.Client, logger *slog.Logger) *SlackEventsHandler {
	return &SlackEventsHandler{
		cfg:        cfg,
		dispatcher: dispatcher,
		registry:   reg,
		gateway:    gw,
		git:        git,
		logger:     logger,
	}
}

// HandleEvent processes POST /api/v1/webhook/slack. Slack expects a fast 200;
// all real work happens on the job queue.
func (h *SlackEventsHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r.Header, body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.Error("could not parse slack event", "error", err)
		http.Error(w, "could not parse event", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))

	case slackevents.CallbackEvent:
		h.handleCallback(w, r, event.InnerEvent)

	default:
		h.logger.Debug("ignoring slack event", "type", event.Type)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *SlackEventsHandler) handleCallback(w http.ResponseWriter, r *http.Request, inner slackevents.EventsAPIInnerEvent) {
	switch ev := inner.Data.(type) {
	case *slackevents.FileSharedEvent:
		h.handleFileShared(w, r, ev)
	default:
		h.logger.Debug("ignoring callback event", "type", inner.Type)
		w.WriteHeader(http.StatusOK)
	}
}

// handleFileShared downloads the shared file and queues a review. Validation
// of type and size happens in the collector; duplicates are absorbed by the
// registry claim.
func (h *SlackEventsHandler) handleFileShared(w http.ResponseWriter, r *http.Request, ev *slackevents.FileSharedEvent) {
	name, content, err := h.gateway.DownloadFile(r.Context(), ev.FileID)
	if err != nil {
		h.logger.Error("could not download shared file", "file_id", ev.FileID, "error", err)
		// Still 200: Slack retries on error statuses and the download will
		// not get better.
		w.WriteHeader(http.StatusOK)
		return
	}

	trigger, err := core.TriggerFromSlackUpload(ev.UserID, ev.ChannelID, "", name, content)
	if err != nil {
		h.logger.Warn("ignoring incomplete file_shared event", "file_id", ev.FileID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if rec, ok := h.registry.Get(trigger.RequestKey); ok {
		h.logger.Info("duplicate upload absorbed", "request_key", trigger.RequestKey, "state", rec.State)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), trigger); err != nil {
		h.logger.Error("failed to queue upload review", "request_key", trigger.RequestKey, "error", err)
		http.Error(w, "review queue is full", http.StatusServiceUnavailable)
		return
	}

	h.logger.Info("upload review queued", "request_key", trigger.RequestKey, "file", name)
	w.WriteHeader(http.StatusOK)
}

// HandleCommand processes POST /api/v1/slack/command, the /mergemate slash
// command. Supported: "review <clone-url> <branch>".
func (h *SlackEventsHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}
	if !h.verifySignature(r.Header, body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		http.Error(w, "could not parse command", http.StatusBadRequest)
		return
	}

	fields := strings.Fields(cmd.Text)
	if len(fields) != 3 || fields[0] != "review" {
		replyText(w, "Usage: `/mergemate review <clone-url> <branch>`")
		return
	}
	cloneURL, branch := fields[1], fields[2]

	sha, err := h.git.GetRemoteHeadSHA(r.Context(), cloneURL, branch, h.cfg.GitHub.Token)
	if err != nil {
		h.logger.Warn("slash command could not resolve branch", "url", cloneURL, "branch", branch, "error", err)
		replyText(w, fmt.Sprintf("Could not resolve `%s` on that repository: %v", branch, err))
		return
	}

	fullName, err := gitutil.RepoFullNameFromURL(cloneURL)
	if err != nil {
		replyText(w, "That does not look like a repository URL.")
		return
	}

	payload := &core.CIWebhookPayload{
		Event:        "push",
		RepoFullName: fullName,
		RepoCloneURL: cloneURL,
		Branch:       branch,
		CommitSHA:    sha,
	}
	trigger, err := core.TriggerFromCIWebhook(payload, core.SlackTarget{ChannelID: cmd.ChannelID})
	if err != nil {
		replyText(w, fmt.Sprintf("Cannot review that: %v", err))
		return
	}

	if rec, ok := h.registry.Get(trigger.RequestKey); ok {
		replyText(w, fmt.Sprintf("That branch head is already reviewed or in progress (request %s, state %s).", trigger.RequestKey, rec.State))
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), trigger); err != nil {
		replyText(w, "The review queue is full right now, please retry shortly.")
		return
	}

	replyText(w, fmt.Sprintf("Review queued for `%s` at `%s` (request %s).", branch, sha[:min(12, len(sha))], trigger.RequestKey))
}

// verifySignature checks the Slack signing secret. An unset secret skips the
// check, for local development.
func (h *SlackEventsHandler) verifySignature(header http.Header, body []byte) bool {
	secret := h.cfg.Slack.SigningSecret
	if secret == "" {
		return true
	}
	verifier, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		h.logger.Warn("could not build slack signature verifier", "error", err)
		return false
	}
	if _, err := verifier.Write(body); err != nil {
		return false
	}
	if err := verifier.Ensure(); err != nil {
		h.logger.Warn("slack signature mismatch", "error", err)
		return false
	}
	return true
}

func replyText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}
