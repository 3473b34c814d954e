package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergemate/mergemate/internal/core"
)

const fullReview = `# Review Summary
The change looks solid overall. One resource leak and a naming nit.

# Verdict
REQUEST_CHANGES

# Suggestions
## Suggestion [internal/server/server.go:42]
**Severity:** High
**Category:** Bug
### Comment
The response body is never closed, leaking connections under load.

## Suggestion [internal/util/naming.go:10-14]
**Severity:** Low
**Category:** Style
### Comment
Prefer a descriptive name over ` + "`tmp`" + `.
`

func TestParseReviewMarkdown_FullDocument(t *testing.T) {
	result, err := ParseReviewMarkdown(fullReview)
	require.NoError(t, err)

	assert.Contains(t, result.Summary, "resource leak")
	assert.Equal(t, core.ActionRequestChanges, result.Recommended)
	require.Len(t, result.Suggestions, 2)

	first := result.Suggestions[0]
	assert.Equal(t, "internal/server/server.go", first.FilePath)
	assert.Equal(t, 42, first.StartLine)
	assert.Equal(t, 42, first.EndLine)
	assert.Equal(t, "High", first.Severity)
	assert.Equal(t, "Bug", first.Category)
	assert.Contains(t, first.Comment, "never closed")

	second := result.Suggestions[1]
	assert.Equal(t, 10, second.StartLine)
	assert.Equal(t, 14, second.EndLine)
}

func TestParseReviewMarkdown_ApproveVerdict(t *testing.T) {
	doc := "# Review Summary\nClean change.\n\n# Verdict\nAPPROVE\n"
	result, err := ParseReviewMarkdown(doc)
	require.NoError(t, err)

	assert.Equal(t, core.ActionApprove, result.Recommended)
	assert.Empty(t, result.Suggestions)
}

func TestParseReviewMarkdown_StripsWrappingFence(t *testing.T) {
	doc := "```markdown\n# Review Summary\nFine.\n\n# Verdict\nCOMMENT\n```"
	result, err := ParseReviewMarkdown(doc)
	require.NoError(t, err)

	assert.Equal(t, "Fine.", result.Summary)
	assert.Equal(t, core.ActionNone, result.Recommended)
}

func TestParseReviewMarkdown_MissingVerdictDefaultsToNone(t *testing.T) {
	doc := "# Review Summary\nNothing to flag.\n"
	result, err := ParseReviewMarkdown(doc)
	require.NoError(t, err)

	assert.Equal(t, core.ActionNone, result.Recommended)
}

func TestParseReviewMarkdown_MalformedSuggestionHeaderKept(t *testing.T) {
	doc := `# Review Summary
One odd finding.

# Suggestions
## Suggestion somewhere unclear
**Severity:** Medium
### Comment
Could not pin down the file.
`
	result, err := ParseReviewMarkdown(doc)
	require.NoError(t, err)

	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, "unknown", result.Suggestions[0].FilePath)
	assert.Equal(t, "Medium", result.Suggestions[0].Severity)
}

func TestParseReviewMarkdown_GarbageFails(t *testing.T) {
	_, err := ParseReviewMarkdown("totally unrelated text with no headings")
	assert.Error(t, err)
}

func TestNormalizeVerdict(t *testing.T) {
	tests := []struct {
		in   string
		want core.RecommendedAction
	}{
		{"APPROVE", core.ActionApprove},
		{"approve", core.ActionApprove},
		{"**APPROVE**", core.ActionApprove},
		{"REQUEST_CHANGES", core.ActionRequestChanges},
		{"Request Changes", core.ActionRequestChanges},
		{"COMMENT", core.ActionNone},
		{"something else", core.ActionNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeVerdict(tt.in), "verdict %q", tt.in)
	}
}
