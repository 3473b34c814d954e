package payload

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergemate/mergemate/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestBuilder(t *testing.T, budget int) *Builder {
	t.Helper()
	ts, err := NewTemplateSet()
	require.NoError(t, err)
	return NewBuilder(ts, "default", budget, testLogger())
}

func smallRequest() *core.ReviewRequest {
	return &core.ReviewRequest{
		Source:       core.SourceSlackUpload,
		RequestKey:   "abc123",
		RawDiff:      "--- a/main.go\n+++ b/main.go\n@@ -1,3 +1,4 @@\n+fmt.Println(\"hi\")",
		ChangedFiles: []core.ChangedFile{{Path: "main.go", Excerpt: "package main\n"}},
	}
}

func TestBuild_SmallInputIsNotTruncated(t *testing.T) {
	b := newTestBuilder(t, 16000)

	p, err := b.Build(smallRequest(), core.TemplateSlackUpload)
	require.NoError(t, err)

	assert.False(t, p.Truncated)
	assert.Contains(t, p.RenderedText, "main.go")
	assert.Contains(t, p.RenderedText, `fmt.Println("hi")`)
}

func TestBuild_IsDeterministic(t *testing.T) {
	b := newTestBuilder(t, 400)

	req := &core.ReviewRequest{
		Source:     core.SourceCIPush,
		RequestKey: "det-1",
		RawDiff:    strings.Repeat("+added line\n", 50),
		ChangedFiles: []core.ChangedFile{
			{Path: "a.go", Excerpt: strings.Repeat("a", 600)},
			{Path: "b.go", Excerpt: strings.Repeat("b", 400)},
		},
		RepoFullName: "acme/widgets",
		Branch:       "feature/x",
		CommitSHA:    "deadbeef",
	}

	first, err := b.Build(req, core.TemplateCIPush)
	require.NoError(t, err)
	second, err := b.Build(req, core.TemplateCIPush)
	require.NoError(t, err)

	assert.Equal(t, first.RenderedText, second.RenderedText)
	assert.Equal(t, first.Truncated, second.Truncated)
}

func TestBuild_TruncatesLongestExcerptFirst(t *testing.T) {
	b := newTestBuilder(t, 400)

	req := &core.ReviewRequest{
		Source:     core.SourceCIPush,
		RequestKey: "trunc-1",
		RawDiff:    "+short diff\n",
		ChangedFiles: []core.ChangedFile{
			{Path: "small.go", Excerpt: strings.Repeat("s", 80)},
			{Path: "huge.go", Excerpt: strings.Repeat("h", 2000)},
		},
		RepoFullName: "acme/widgets",
		Branch:       "main",
		CommitSHA:    "deadbeef",
	}

	p, err := b.Build(req, core.TemplateCIPush)
	require.NoError(t, err)

	assert.True(t, p.Truncated)
	// The small excerpt survives untouched while the big one was cut.
	assert.Contains(t, p.RenderedText, strings.Repeat("s", 80))
	assert.NotContains(t, p.RenderedText, strings.Repeat("h", 2000))
	assert.LessOrEqual(t, len(p.RenderedText)/3, 400+1)
}

func TestBuild_IssueMetadataIsNeverDropped(t *testing.T) {
	b := newTestBuilder(t, 250)

	req := &core.ReviewRequest{
		Source:     core.SourceCIPush,
		RequestKey: "issue-1",
		RawDiff:    strings.Repeat("+changed\n", 200),
		ChangedFiles: []core.ChangedFile{
			{Path: "big.go", Excerpt: strings.Repeat("x", 3000)},
		},
		Issue: &core.IssueMeta{
			Key:         "PROJ-42",
			Title:       "Widget frobnication fails on empty input",
			Description: "Steps to reproduce: call frobnicate with nil.",
		},
		RepoFullName: "acme/widgets",
		Branch:       "fix/proj-42",
		CommitSHA:    "cafebabe",
	}

	p, err := b.Build(req, core.TemplateCIPush)
	require.NoError(t, err)

	assert.True(t, p.Truncated)
	assert.Contains(t, p.RenderedText, "PROJ-42")
	assert.Contains(t, p.RenderedText, "Widget frobnication fails on empty input")
	assert.Contains(t, p.RenderedText, "Steps to reproduce: call frobnicate with nil.")
}

func TestBuild_DiffIsCutOnlyAfterExcerpts(t *testing.T) {
	b := newTestBuilder(t, 400)

	diffHead := "--- a/app.go\n+++ b/app.go\n"
	req := &core.ReviewRequest{
		Source:       core.SourceCIPush,
		RequestKey:   "diff-1",
		RawDiff:      diffHead + strings.Repeat("+line\n", 500),
		ChangedFiles: []core.ChangedFile{{Path: "app.go", Excerpt: strings.Repeat("e", 500)}},
		RepoFullName: "acme/widgets",
		Branch:       "main",
		CommitSHA:    "0123abcd",
	}

	p, err := b.Build(req, core.TemplateCIPush)
	require.NoError(t, err)

	assert.True(t, p.Truncated)
	// The diff keeps its head: only its tail is cut, and only after the
	// excerpt budget is exhausted.
	assert.Contains(t, p.RenderedText, diffHead)
}

func TestTemplateForSource(t *testing.T) {
	tests := []struct {
		source core.TriggerSource
		want   core.TemplateID
	}{
		{core.SourceSlackUpload, core.TemplateSlackUpload},
		{core.SourceCIPush, core.TemplateCIPush},
		{core.SourceCIMerge, core.TemplateCIMerge},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TemplateForSource(tt.source))
	}
}

func TestTemplateSet_FallsBackToDefaultProvider(t *testing.T) {
	ts, err := NewTemplateSet()
	require.NoError(t, err)

	tmpl, err := ts.Get(core.TemplateCIPush, ModelProvider("some-exotic-model"))
	require.NoError(t, err)
	assert.NotNil(t, tmpl)
}
