// Package handler provides the HTTP handlers for inbound triggers.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/registry"
)

// ciTokenHeader authenticates CI runners. Compared verbatim against the
// configured webhook token.
const ciTokenHeader = "X-MergeMate-Token"

// CIWebhookHandler accepts push and merge notifications from CI runners.
type CIWebhookHandler struct {
	cfg        *config.Config
	dispatcher core.JobDispatcher
	registry   *registry.Registry
	logger     *slog.Logger
}

// NewCIWebhookHandler creates the handler for POST /api/v1/webhook/ci.
func NewCIWebhookHandler(cfg *config.Config, dispatcher core.JobDispatcher, reg *registry.Registry, logger *slog.Logger) *CIWebhookHandler {
	return &CIWebhookHandler{
		cfg:        cfg,
		dispatcher: dispatcher,
		registry:   reg,
		logger:     logger,
	}
}

type ciResponse struct {
	Status     string `json:"status"`
	RequestKey string `json:"request_key,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Handle validates the payload, absorbs duplicates with 409, and queues the
// review with 202. The review itself runs asynchronously.
func (h *CIWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cfg.CI.WebhookToken != "" && r.Header.Get(ciTokenHeader) != h.cfg.CI.WebhookToken {
		h.logger.Warn("rejected CI webhook with bad token", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, ciResponse{Status: "unauthorized"})
		return
	}

	var payload core.CIWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Error("could not decode CI webhook payload", "error", err)
		writeJSON(w, http.StatusBadRequest, ciResponse{Status: "invalid", Error: "malformed JSON payload"})
		return
	}

	target := core.SlackTarget{ChannelID: h.cfg.ChannelForRepo(payload.RepoFullName)}
	trigger, err := core.TriggerFromCIWebhook(&payload, target)
	if err != nil {
		h.logger.Warn("rejected incomplete CI webhook", "repo", payload.RepoFullName, "error", err)
		writeJSON(w, http.StatusBadRequest, ciResponse{Status: "invalid", Error: err.Error()})
		return
	}

	// Advisory duplicate check so the CI runner learns immediately; the
	// registry claim inside the worker remains the authoritative gate.
	if rec, ok := h.registry.Get(trigger.RequestKey); ok {
		h.logger.Info("duplicate CI webhook absorbed", "request_key", trigger.RequestKey, "state", rec.State)
		writeJSON(w, http.StatusConflict, ciResponse{Status: "duplicate", RequestKey: trigger.RequestKey})
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), trigger); err != nil {
		h.logger.Error("failed to queue review job", "request_key", trigger.RequestKey, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, ciResponse{Status: "overloaded", Error: "review queue is full"})
		return
	}

	h.logger.Info("review job queued", "repo", payload.RepoFullName, "request_key", trigger.RequestKey)
	writeJSON(w, http.StatusAccepted, ciResponse{Status: "accepted", RequestKey: trigger.RequestKey})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
