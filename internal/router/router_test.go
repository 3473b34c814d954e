package router

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/githost"
	"github.com/mergemate/mergemate/internal/registry"
	"github.com/mergemate/mergemate/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry() *registry.Registry {
	return registry.New(time.Hour, time.Minute, 1000, testLogger())
}

type postedMessage struct {
	channel  string
	threadTS string
	text     string
}

// recordingGateway wires a MockGateway that accepts every post and records it.
func recordingGateway(ctrl *gomock.Controller, posted *[]postedMessage) *mocks.MockGateway {
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().
		PostMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, channel, threadTS, text string) (string, error) {
			*posted = append(*posted, postedMessage{channel, threadTS, text})
			return fmt.Sprintf("ts-%d", len(*posted)), nil
		}).
		AnyTimes()
	return gw
}

func reviewRequest(source core.TriggerSource) *core.ReviewRequest {
	return &core.ReviewRequest{
		Source:       source,
		RequestKey:   "deadbeef",
		RawDiff:      "+x",
		ChangedFiles: []core.ChangedFile{{Path: "internal/server/server.go"}, {Path: "main.go"}},
		Target:       core.SlackTarget{ChannelID: "C1"},
		RepoFullName: "acme/widgets",
		Branch:       "feature/x",
	}
}

func reviewResult() *core.ReviewResult {
	return &core.ReviewResult{
		Summary:     "Mostly fine.",
		Recommended: core.ActionRequestChanges,
		Suggestions: []core.Suggestion{
			{FilePath: "internal/server/server.go", StartLine: 42, Severity: "High", Category: "Bug", Comment: "Leaked body."},
			{FilePath: "internal/server/server.go", StartLine: 50, Severity: "Low", Comment: "Nit."},
			{FilePath: "main.go", StartLine: 3, Severity: "Medium", Comment: "Shadowed err."},
		},
	}
}

func TestRoute_PostsSummaryAndThreadedSuggestions(t *testing.T) {
	ctrl := gomock.NewController(t)
	var posted []postedMessage
	gw := recordingGateway(ctrl, &posted)
	reg := testRegistry()

	req := reviewRequest(core.SourceCIPush)
	_, err := reg.Begin(req.RequestKey, req.Source, req.Target)
	require.NoError(t, err)

	r := New(gw, nil, reg, Options{}, testLogger())
	outcome, err := r.Route(context.Background(), req, &core.ReviewPayload{}, reviewResult(), core.DefaultRepoConfig())
	require.NoError(t, err)

	// One summary plus one reply per file.
	require.Len(t, posted, 3)
	assert.Equal(t, 3, outcome.MessagesPosted)

	summary := posted[0]
	assert.Equal(t, "C1", summary.channel)
	assert.Empty(t, summary.threadTS, "summary starts the thread")
	assert.Contains(t, summary.text, "Mostly fine.")
	assert.Contains(t, summary.text, "deadbeef", "request key is user visible")
	assert.Contains(t, summary.text, "🟠 High: 1")

	for _, reply := range posted[1:] {
		assert.Equal(t, "ts-1", reply.threadTS, "suggestions land in the summary thread")
	}
	assert.Contains(t, posted[1].text, "internal/server/server.go")
	assert.Contains(t, posted[2].text, "main.go")

	rec, ok := reg.Get(req.RequestKey)
	require.True(t, ok)
	assert.Equal(t, "ts-1", rec.Target.ThreadTS, "thread recorded for follow-ups")
}

func TestRoute_ReusesExistingThread(t *testing.T) {
	ctrl := gomock.NewController(t)
	var posted []postedMessage
	gw := recordingGateway(ctrl, &posted)
	reg := testRegistry()

	req := reviewRequest(core.SourceCIPush)
	_, err := reg.Begin(req.RequestKey, req.Source, req.Target)
	require.NoError(t, err)
	reg.SetThread(req.RequestKey, "earlier-ts")

	r := New(gw, nil, reg, Options{}, testLogger())
	_, err = r.Route(context.Background(), req, &core.ReviewPayload{}, reviewResult(), core.DefaultRepoConfig())
	require.NoError(t, err)

	require.NotEmpty(t, posted)
	assert.Equal(t, "earlier-ts", posted[0].threadTS, "delivery joins the earlier thread")
}

func TestRoute_AutoApprovesMergeEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	var posted []postedMessage
	gw := recordingGateway(ctrl, &posted)
	reg := testRegistry()

	host := mocks.NewMockClient(ctrl)
	host.EXPECT().
		FindMergeRequestForBranch(gomock.Any(), "acme", "widgets", "feature/x").
		Return(&githost.MergeRequest{Number: 7, URL: "https://github.com/acme/widgets/pull/7"}, nil)
	host.EXPECT().
		ApproveMergeRequest(gomock.Any(), "acme", "widgets", 7, gomock.Any()).
		Return(nil)

	req := reviewRequest(core.SourceCIMerge)
	result := &core.ReviewResult{Summary: "Ship it.", Recommended: core.ActionApprove}
	repoCfg := &core.RepoConfig{AutoApprove: true}

	r := New(gw, host, reg, Options{AutoApprove: true}, testLogger())
	outcome, err := r.Route(context.Background(), req, &core.ReviewPayload{}, result, repoCfg)
	require.NoError(t, err)

	assert.True(t, outcome.ApprovalGranted)
	assert.Contains(t, posted[0].text, "approved automatically")
}

func TestRoute_ApprovalFailureIsNonFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	var posted []postedMessage
	gw := recordingGateway(ctrl, &posted)
	reg := testRegistry()

	host := mocks.NewMockClient(ctrl)
	host.EXPECT().
		FindMergeRequestForBranch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&githost.MergeRequest{Number: 7}, nil)
	host.EXPECT().
		ApproveMergeRequest(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("403 insufficient permissions"))

	req := reviewRequest(core.SourceCIMerge)
	result := &core.ReviewResult{Summary: "Ship it.", Recommended: core.ActionApprove}
	repoCfg := &core.RepoConfig{AutoApprove: true}

	r := New(gw, host, reg, Options{AutoApprove: true}, testLogger())
	outcome, err := r.Route(context.Background(), req, &core.ReviewPayload{}, result, repoCfg)
	require.NoError(t, err, "approval trouble must not fail delivery")

	var appErr *core.ApprovalError
	require.ErrorAs(t, outcome.ApprovalErr, &appErr)
	assert.Equal(t, "deadbeef", appErr.RequestKey)
	assert.Contains(t, posted[0].text, "approve manually")
}

func TestRoute_NoApprovalForPushSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	var posted []postedMessage
	gw := recordingGateway(ctrl, &posted)
	reg := testRegistry()

	// Host mock with no expectations: any call would fail the test.
	host := mocks.NewMockClient(ctrl)

	req := reviewRequest(core.SourceCIPush)
	result := &core.ReviewResult{Summary: "Fine.", Recommended: core.ActionApprove}
	repoCfg := &core.RepoConfig{AutoApprove: true}

	r := New(gw, host, reg, Options{AutoApprove: true}, testLogger())
	outcome, err := r.Route(context.Background(), req, &core.ReviewPayload{}, result, repoCfg)
	require.NoError(t, err)
	assert.False(t, outcome.ApprovalGranted)
}

func TestRoute_TruncationIsFlagged(t *testing.T) {
	ctrl := gomock.NewController(t)
	var posted []postedMessage
	gw := recordingGateway(ctrl, &posted)

	r := New(gw, nil, testRegistry(), Options{}, testLogger())
	payload := &core.ReviewPayload{Truncated: true}
	_, err := r.Route(context.Background(), reviewRequest(core.SourceCIPush), payload, &core.ReviewResult{Summary: "ok"}, core.DefaultRepoConfig())
	require.NoError(t, err)

	assert.Contains(t, posted[0].text, "truncated form")
}

func TestRouteFailure_CarriesRequestKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	var posted []postedMessage
	gw := recordingGateway(ctrl, &posted)

	r := New(gw, nil, testRegistry(), Options{}, testLogger())
	err := r.RouteFailure(context.Background(), core.SlackTarget{ChannelID: "C1"}, "deadbeef", fmt.Errorf("provider down"))
	require.NoError(t, err)

	require.Len(t, posted, 1)
	assert.Contains(t, posted[0].text, "deadbeef")
	assert.Contains(t, posted[0].text, "provider down")
}

func TestGroupSuggestions_UnanchoredGoToGeneralBucket(t *testing.T) {
	req := reviewRequest(core.SourceCIPush)
	sugs := []core.Suggestion{
		{FilePath: "main.go", Comment: "anchored"},
		{FilePath: "unknown", Comment: "lost"},
		{FilePath: "made/up/file.go", Comment: "hallucinated path"},
	}

	groups := groupSuggestions(req, sugs)
	require.Len(t, groups, 2)
	assert.Equal(t, "main.go", groups[0].path)
	assert.Equal(t, "general notes", groups[1].path)
	assert.Len(t, groups[1].sugs, 2)
}
