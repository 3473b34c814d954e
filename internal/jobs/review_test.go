package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mergemate/mergemate/internal/collector"
	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/dispatch"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/payload"
	"github.com/mergemate/mergemate/internal/registry"
	"github.com/mergemate/mergemate/internal/router"
	"github.com/mergemate/mergemate/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type scriptedReviewer struct {
	calls atomic.Int32
	err   error
}

func (s *scriptedReviewer) Review(_ context.Context, _ *core.ReviewPayload) (*core.ReviewResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &core.ReviewResult{
		Summary:     "Looks reasonable.",
		Recommended: core.ActionNone,
		Suggestions: []core.Suggestion{
			{FilePath: "internal/server/server.go", StartLine: 42, Severity: "High", Comment: "Leak."},
		},
	}, nil
}

type postedMessage struct {
	threadTS string
	text     string
}

// newTestJob assembles the real pipeline around a scripted provider and a
// recording Slack gateway.
func newTestJob(t *testing.T, reviewer *scriptedReviewer, posted *[]postedMessage) core.Job {
	t.Helper()
	logger := testLogger()

	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().
		PostMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, threadTS, text string) (string, error) {
			*posted = append(*posted, postedMessage{threadTS, text})
			return fmt.Sprintf("ts-%d", len(*posted)), nil
		}).
		AnyTimes()

	col, err := collector.New(collector.Config{}, gitutil.NewClient(logger), nil, logger)
	require.NoError(t, err)

	templates, err := payload.NewTemplateSet()
	require.NoError(t, err)
	builder := payload.NewBuilder(templates, "default", 16000, logger)

	reg := registry.New(time.Hour, time.Minute, 1000, logger)
	disp := dispatch.New(reg, reviewer, 2, time.Millisecond, logger)
	rt := router.New(gw, nil, reg, router.Options{}, logger)

	return NewReviewJob(col, builder, disp, rt, nil, logger)
}

const samplePatch = `diff --git a/internal/server/server.go b/internal/server/server.go
--- a/internal/server/server.go
+++ b/internal/server/server.go
@@ -1,3 +1,4 @@
+import "log/slog"
`

func uploadEvent(t *testing.T, name string, content []byte) *core.TriggerEvent {
	t.Helper()
	ev, err := core.TriggerFromSlackUpload("U1", "C1", "", name, content)
	require.NoError(t, err)
	return ev
}

func TestReviewJob_UploadFlowEndToEnd(t *testing.T) {
	reviewer := &scriptedReviewer{}
	var posted []postedMessage
	job := newTestJob(t, reviewer, &posted)

	ev := uploadEvent(t, "change.patch", []byte(samplePatch))
	require.NoError(t, job.Run(context.Background(), ev))

	assert.Equal(t, int32(1), reviewer.calls.Load())
	require.Len(t, posted, 2, "summary plus one suggestion thread")
	assert.Contains(t, posted[0].text, "Looks reasonable.")
	assert.Contains(t, posted[0].text, ev.RequestKey)
	assert.Equal(t, "ts-1", posted[1].threadTS)
}

func TestReviewJob_DuplicateTriggerIsAbsorbed(t *testing.T) {
	reviewer := &scriptedReviewer{}
	var posted []postedMessage
	job := newTestJob(t, reviewer, &posted)

	ev := uploadEvent(t, "change.patch", []byte(samplePatch))
	require.NoError(t, job.Run(context.Background(), ev))
	firstCount := len(posted)

	// Same content re-shared: same request key.
	dup := uploadEvent(t, "change.patch", []byte(samplePatch))
	require.NoError(t, job.Run(context.Background(), dup))

	assert.Equal(t, int32(1), reviewer.calls.Load(), "provider called once")
	assert.Len(t, posted, firstCount, "no second delivery")
}

func TestReviewJob_BadUploadNotifiesUser(t *testing.T) {
	reviewer := &scriptedReviewer{}
	var posted []postedMessage
	job := newTestJob(t, reviewer, &posted)

	ev := uploadEvent(t, "photo.exe", []byte("MZ"))
	err := job.Run(context.Background(), ev)
	require.Error(t, err)

	assert.Equal(t, int32(0), reviewer.calls.Load(), "no provider call for bad input")
	require.Len(t, posted, 1)
	assert.Contains(t, posted[0].text, "Review failed")
	assert.Contains(t, posted[0].text, ev.RequestKey)
}

func TestReviewJob_ProviderFailureNotifiesUser(t *testing.T) {
	reviewer := &scriptedReviewer{err: fmt.Errorf("provider down")}
	var posted []postedMessage
	job := newTestJob(t, reviewer, &posted)

	ev := uploadEvent(t, "change.patch", []byte(samplePatch))
	err := job.Run(context.Background(), ev)
	require.Error(t, err)

	require.Len(t, posted, 1)
	assert.Contains(t, posted[0].text, ev.RequestKey)
	assert.True(t, strings.Contains(posted[0].text, "provider"), "failure cause visible to the user")
}

func TestReviewJob_RejectsIncompleteEvents(t *testing.T) {
	reviewer := &scriptedReviewer{}
	var posted []postedMessage
	job := newTestJob(t, reviewer, &posted)

	err := job.Run(context.Background(), &core.TriggerEvent{Source: core.SourceCIPush})
	require.Error(t, err)
	assert.Empty(t, posted)
}

func TestDispatcherQueue_Backpressure(t *testing.T) {
	// A job that blocks forever would leak; use one that returns instantly.
	reviewer := &scriptedReviewer{}
	var posted []postedMessage
	job := newTestJob(t, reviewer, &posted)

	d := NewDispatcher(job, 2, testLogger())
	defer d.Stop()

	ev := uploadEvent(t, "change.patch", []byte(samplePatch))
	require.NoError(t, d.Dispatch(context.Background(), ev))
}
