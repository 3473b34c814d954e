package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/registry"
	"github.com/mergemate/mergemate/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry() *registry.Registry {
	return registry.New(time.Hour, time.Minute, 1000, testLogger())
}

type fakeDispatcher struct {
	events []*core.TriggerEvent
	err    error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev *core.TriggerEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Slack: config.SlackConfig{DefaultChannel: "C-default"},
	}
}

func ciBody(t *testing.T, payload core.CIWebhookPayload) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func validPush() core.CIWebhookPayload {
	return core.CIWebhookPayload{
		Event:        "push",
		RepoFullName: "acme/widgets",
		Branch:       "feature/x",
		CommitSHA:    "abc123",
		Diff:         "+x",
	}
}

func TestCIWebhook_AcceptsPush(t *testing.T) {
	disp := &fakeDispatcher{}
	h := NewCIWebhookHandler(testConfig(), disp, testRegistry(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/ci", ciBody(t, validPush()))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp ciResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.NotEmpty(t, resp.RequestKey)

	require.Len(t, disp.events, 1)
	assert.Equal(t, core.SourceCIPush, disp.events[0].Source)
	assert.Equal(t, "C-default", disp.events[0].Target.ChannelID)
}

func TestCIWebhook_MalformedJSON(t *testing.T) {
	h := NewCIWebhookHandler(testConfig(), &fakeDispatcher{}, testRegistry(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/ci", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCIWebhook_IncompletePayload(t *testing.T) {
	payload := validPush()
	payload.CommitSHA = ""

	h := NewCIWebhookHandler(testConfig(), &fakeDispatcher{}, testRegistry(), testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/ci", ciBody(t, payload))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "commit SHA")
}

func TestCIWebhook_DuplicateReturnsConflict(t *testing.T) {
	reg := testRegistry()
	payload := validPush()
	key := core.RequestKeyForCommit(payload.CommitSHA, payload.Branch)
	_, err := reg.Begin(key, core.SourceCIPush, core.SlackTarget{ChannelID: "C-default"})
	require.NoError(t, err)

	disp := &fakeDispatcher{}
	h := NewCIWebhookHandler(testConfig(), disp, reg, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/ci", ciBody(t, payload))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, disp.events, "duplicate is not queued again")
}

func TestCIWebhook_QueueFull(t *testing.T) {
	disp := &fakeDispatcher{err: fmt.Errorf("job queue is full")}
	h := NewCIWebhookHandler(testConfig(), disp, testRegistry(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/ci", ciBody(t, validPush()))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCIWebhook_RejectsBadToken(t *testing.T) {
	cfg := testConfig()
	cfg.CI.WebhookToken = "secret"

	h := NewCIWebhookHandler(cfg, &fakeDispatcher{}, testRegistry(), testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/ci", ciBody(t, validPush()))
	req.Header.Set(ciTokenHeader, "wrong")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func newSlackHandler(t *testing.T, disp core.JobDispatcher, reg *registry.Registry) (*SlackEventsHandler, *mocks.MockGateway) {
	t.Helper()
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	h := NewSlackEventsHandler(testConfig(), disp, reg, gw, gitutil.NewClient(testLogger()), testLogger())
	return h, gw
}

func TestSlackEvents_URLVerification(t *testing.T) {
	h, _ := newSlackHandler(t, &fakeDispatcher{}, testRegistry())

	body := `{"type":"url_verification","challenge":"c0ffee"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/slack", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c0ffee", rec.Body.String())
}

func TestSlackEvents_FileSharedQueuesReview(t *testing.T) {
	disp := &fakeDispatcher{}
	h, gw := newSlackHandler(t, disp, testRegistry())

	gw.EXPECT().
		DownloadFile(gomock.Any(), "F123").
		Return("change.patch", []byte("+++ b/a.go\n+x\n"), nil)

	body := `{
		"type": "event_callback",
		"event": {"type": "file_shared", "file_id": "F123", "channel_id": "C9", "user_id": "U7"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/slack", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, disp.events, 1)
	ev := disp.events[0]
	assert.Equal(t, core.SourceSlackUpload, ev.Source)
	assert.Equal(t, "C9", ev.Target.ChannelID)
	assert.Equal(t, "change.patch", ev.FileName)
}

func TestSlackEvents_DuplicateUploadAbsorbed(t *testing.T) {
	reg := testRegistry()
	content := []byte("+++ b/a.go\n+x\n")
	key := core.RequestKeyForUpload(content)
	_, err := reg.Begin(key, core.SourceSlackUpload, core.SlackTarget{ChannelID: "C9"})
	require.NoError(t, err)

	disp := &fakeDispatcher{}
	h, gw := newSlackHandler(t, disp, reg)
	gw.EXPECT().
		DownloadFile(gomock.Any(), "F123").
		Return("change.patch", content, nil)

	body := `{
		"type": "event_callback",
		"event": {"type": "file_shared", "file_id": "F123", "channel_id": "C9", "user_id": "U7"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/slack", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "Slack never sees duplicate errors")
	assert.Empty(t, disp.events)
}

func TestSlackCommand_Usage(t *testing.T) {
	h, _ := newSlackHandler(t, &fakeDispatcher{}, testRegistry())

	form := "command=%2Fmergemate&text=help&channel_id=C9"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/slack/command", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandleCommand(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Usage")
}
