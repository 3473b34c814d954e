package collector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/issue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeIssueFetcher struct {
	meta   *core.IssueMeta
	err    error
	called int
}

func (f *fakeIssueFetcher) Fetch(_ context.Context, key string) (*core.IssueMeta, error) {
	f.called++
	if f.err != nil {
		return nil, f.err
	}
	if f.meta != nil {
		return f.meta, nil
	}
	return &core.IssueMeta{Key: key, Title: "stub"}, nil
}

func newTestCollector(t *testing.T, cfg Config, issues *fakeIssueFetcher) *Collector {
	t.Helper()
	var fetcher issue.Fetcher
	if issues != nil {
		fetcher = issues
	}
	c, err := New(cfg, gitutil.NewClient(testLogger()), fetcher, testLogger())
	require.NoError(t, err)
	return c
}

const samplePatch = `diff --git a/internal/server/server.go b/internal/server/server.go
--- a/internal/server/server.go
+++ b/internal/server/server.go
@@ -1,3 +1,4 @@
+import "log/slog"
diff --git a/vendor/dep/dep.go b/vendor/dep/dep.go
--- a/vendor/dep/dep.go
+++ b/vendor/dep/dep.go
@@ -1 +1,2 @@
+// vendored
`

func uploadTrigger(t *testing.T, name string, content []byte) *core.TriggerEvent {
	t.Helper()
	ev, err := core.TriggerFromSlackUpload("U123", "C123", "", name, content)
	require.NoError(t, err)
	return ev
}

func TestCollect_PatchUpload(t *testing.T) {
	c := newTestCollector(t, Config{}, nil)

	ev := uploadTrigger(t, "change.patch", []byte(samplePatch))
	req, repoCfg, err := c.Collect(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, repoCfg)

	assert.Equal(t, samplePatch, req.RawDiff)
	require.Len(t, req.ChangedFiles, 2, "paths come straight from the diff headers")
	assert.Equal(t, "internal/server/server.go", req.ChangedFiles[0].Path)
	assert.Equal(t, ev.RequestKey, req.RequestKey)
}

func TestCollect_SourceFileUpload(t *testing.T) {
	c := newTestCollector(t, Config{}, nil)

	content := []byte("package main\n\nfunc main() {}\n")
	req, _, err := c.Collect(context.Background(), uploadTrigger(t, "main.go", content))
	require.NoError(t, err)

	assert.Empty(t, req.RawDiff)
	require.Len(t, req.ChangedFiles, 1)
	assert.Equal(t, "main.go", req.ChangedFiles[0].Path)
	assert.Contains(t, req.ChangedFiles[0].Excerpt, "func main()")
}

func TestCollect_UploadTooLarge(t *testing.T) {
	c := newTestCollector(t, Config{MaxUploadBytes: 64}, nil)

	big := []byte(strings.Repeat("x", 65))
	_, _, err := c.Collect(context.Background(), uploadTrigger(t, "big.patch", big))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrFileTooLarge)

	var ctxErr *core.ContextError
	require.ErrorAs(t, err, &ctxErr)
	assert.NotEmpty(t, ctxErr.RequestKey)
}

func TestCollect_UploadUnsupportedExtension(t *testing.T) {
	c := newTestCollector(t, Config{}, nil)

	_, _, err := c.Collect(context.Background(), uploadTrigger(t, "binary.exe", []byte("MZ")))
	assert.ErrorIs(t, err, core.ErrUnsupportedFileType)
}

func TestCollect_UploadBinaryContentRejected(t *testing.T) {
	c := newTestCollector(t, Config{}, nil)

	content := []byte("looks like go\x00but is not")
	_, _, err := c.Collect(context.Background(), uploadTrigger(t, "sneaky.go", content))
	assert.ErrorIs(t, err, core.ErrUnsupportedFileType)
}

func ciTrigger(t *testing.T, diff string, paths []string) *core.TriggerEvent {
	t.Helper()
	ev, err := core.TriggerFromCIWebhook(&core.CIWebhookPayload{
		Event:        "push",
		RepoFullName: "acme/widgets",
		Branch:       "feature/PROJ-42-cleanup",
		CommitSHA:    "abc123",
		Diff:         diff,
		ChangedFiles: paths,
	}, core.SlackTarget{ChannelID: "C1"})
	require.NoError(t, err)
	return ev
}

func TestCollect_CIWithInlineDiff(t *testing.T) {
	c := newTestCollector(t, Config{}, nil)

	req, _, err := c.Collect(context.Background(), ciTrigger(t, samplePatch, nil))
	require.NoError(t, err)

	assert.Equal(t, samplePatch, req.RawDiff)
	require.Len(t, req.ChangedFiles, 1, "vendored path is filtered out")
	assert.Equal(t, "internal/server/server.go", req.ChangedFiles[0].Path)
}

func TestCollect_CIFiltersExcludedExtensions(t *testing.T) {
	c := newTestCollector(t, Config{}, nil)

	paths := []string{"logo.png", "main.go", "go.sum"}
	req, _, err := c.Collect(context.Background(), ciTrigger(t, "+x", paths))
	require.NoError(t, err)

	var kept []string
	for _, f := range req.ChangedFiles {
		kept = append(kept, f.Path)
	}
	assert.Equal(t, []string{"main.go", "go.sum"}, kept)
}

func TestCollect_CIFileCap(t *testing.T) {
	c := newTestCollector(t, Config{MaxFiles: 2}, nil)

	paths := []string{"a.go", "b.go", "c.go", "d.go"}
	req, _, err := c.Collect(context.Background(), ciTrigger(t, "+x", paths))
	require.NoError(t, err)
	assert.Len(t, req.ChangedFiles, 2)
}

func TestCollect_IssueKeyFromBranch(t *testing.T) {
	issues := &fakeIssueFetcher{meta: &core.IssueMeta{Key: "PROJ-42", Title: "Cleanup"}}
	c := newTestCollector(t, Config{}, issues)

	req, _, err := c.Collect(context.Background(), ciTrigger(t, samplePatch, nil))
	require.NoError(t, err)

	require.NotNil(t, req.Issue)
	assert.Equal(t, "PROJ-42", req.Issue.Key)
	assert.Equal(t, 1, issues.called)
}

func TestCollect_IssueFetchFailureIsNonFatal(t *testing.T) {
	issues := &fakeIssueFetcher{err: fmt.Errorf("tracker is down")}
	c := newTestCollector(t, Config{}, issues)

	req, _, err := c.Collect(context.Background(), ciTrigger(t, samplePatch, nil))
	require.NoError(t, err, "tracker trouble must not fail the review")
	assert.Nil(t, req.Issue)
	assert.Equal(t, 1, issues.called)
}

func TestPathsFromDiff(t *testing.T) {
	paths := pathsFromDiff(samplePatch)
	assert.Equal(t, []string{"internal/server/server.go", "vendor/dep/dep.go"}, paths)

	assert.Empty(t, pathsFromDiff("no diff markers here"))
}
