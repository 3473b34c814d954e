package router

import (
	"fmt"
	"strings"

	"github.com/mergemate/mergemate/internal/core"
)

// summaryContext carries the delivery-time facts the summary message mentions
// beyond the review result itself.
type summaryContext struct {
	Truncated       bool
	ApprovalGranted bool
	ApprovalFailed  bool
	MergeRequestURL string
}

// formatSummary renders the top-level Slack message for a finished review.
func formatSummary(req *core.ReviewRequest, result *core.ReviewResult, sc summaryContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s *Review: %s*\n", verdictEmoji(result.Recommended), verdictLabel(result.Recommended))
	if req.RepoFullName != "" {
		fmt.Fprintf(&sb, "_%s_", req.RepoFullName)
		if req.Branch != "" {
			fmt.Fprintf(&sb, " `%s`", req.Branch)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(result.Summary)
	sb.WriteString("\n")

	if counts := severityCounts(result.Suggestions); len(counts) > 0 {
		sb.WriteString("\n")
		order := []string{"Critical", "High", "Medium", "Low"}
		var parts []string
		for _, sev := range order {
			if n := counts[sev]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s %s: %d", severityEmoji(sev), sev, n))
			}
		}
		if other := counts[""]; other > 0 {
			parts = append(parts, fmt.Sprintf("⚪ Other: %d", other))
		}
		sb.WriteString(strings.Join(parts, " | "))
		sb.WriteString("\n")
	}

	if req.Issue != nil {
		fmt.Fprintf(&sb, "\nLinked issue: *%s* %s\n", req.Issue.Key, req.Issue.Title)
	}
	if sc.MergeRequestURL != "" {
		fmt.Fprintf(&sb, "\nMerge request: %s\n", sc.MergeRequestURL)
	}
	if sc.Truncated {
		sb.WriteString("\n:scissors: The change set was too large and was reviewed in truncated form.\n")
	}
	if sc.ApprovalGranted {
		sb.WriteString("\n:white_check_mark: Merge request approved automatically.\n")
	}
	if sc.ApprovalFailed {
		sb.WriteString("\n:warning: Auto-approval failed, please approve manually.\n")
	}

	fmt.Fprintf(&sb, "\n_request %s_", req.RequestKey)
	return sb.String()
}

// formatSuggestionGroup renders all suggestions for one file as a single
// threaded reply.
func formatSuggestionGroup(path string, sugs []core.Suggestion) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*`%s`*\n", path)

	for i, sug := range sugs {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s *%s*", severityEmoji(sug.Severity), orUnrated(sug.Severity))
		if sug.Category != "" {
			fmt.Fprintf(&sb, " | %s", sug.Category)
		}
		if sug.StartLine > 0 {
			if sug.EndLine > sug.StartLine {
				fmt.Fprintf(&sb, " | L%d-%d", sug.StartLine, sug.EndLine)
			} else {
				fmt.Fprintf(&sb, " | L%d", sug.StartLine)
			}
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(sug.Comment))
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatFailure renders the user-facing notice for a review that could not be
// delivered. The request key always appears so logs can be correlated.
func formatFailure(requestKey string, err error) string {
	return fmt.Sprintf(":x: Review failed: %v\n_request %s_", err, requestKey)
}

func severityCounts(sugs []core.Suggestion) map[string]int {
	if len(sugs) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, sug := range sugs {
		switch sug.Severity {
		case "Critical", "High", "Medium", "Low":
			counts[sug.Severity]++
		default:
			counts[""]++
		}
	}
	return counts
}

func severityEmoji(severity string) string {
	switch severity {
	case "Critical":
		return "🔴"
	case "High":
		return "🟠"
	case "Medium":
		return "🟡"
	case "Low":
		return "🟢"
	default:
		return "⚪"
	}
}

func verdictEmoji(action core.RecommendedAction) string {
	switch action {
	case core.ActionApprove:
		return "✅"
	case core.ActionRequestChanges:
		return "🚫"
	default:
		return "💬"
	}
}

func verdictLabel(action core.RecommendedAction) string {
	switch action {
	case core.ActionApprove:
		return "Approve"
	case core.ActionRequestChanges:
		return "Changes requested"
	default:
		return "Comments"
	}
}

func orUnrated(severity string) string {
	if severity == "" {
		return "Unrated"
	}
	return severity
}
