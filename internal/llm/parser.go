package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mergemate/mergemate/internal/core"
)

var (
	// Matches: ## Suggestion [path/to/file.go:123] or a range [file.go:10-14].
	suggestionHeaderRegex = regexp.MustCompile(`(?i)##\s+Suggestion\s+\[(.*?):\s*(\d+)(?:\s*-\s*(\d+))?\]`)
	severityRegex         = regexp.MustCompile(`(?i)\*\*Severity:?\*\*\s*(.*)`)
	categoryRegex         = regexp.MustCompile(`(?i)\*\*Category:?\*\*\s*(.*)`)
)

// ParseReviewMarkdown extracts a structured result from the provider's
// Markdown output. It tolerates several common model quirks:
// - Response wrapped in ```markdown ... ``` fences
// - Inconsistent heading levels or casing
// - Missing sections (only Summary is strictly required)
func ParseReviewMarkdown(markdown string) (*core.ReviewResult, error) {
	markdown = stripMarkdownFence(markdown)

	result := &core.ReviewResult{Recommended: core.ActionNone}
	lines := strings.Split(markdown, "\n")

	var currentSection string
	var currentSuggestion *core.Suggestion
	var commentBuilder strings.Builder
	var summaryBuilder strings.Builder

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		upperLine := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upperLine, "# REVIEW SUMMARY"):
			flushSuggestion(result, currentSuggestion, &commentBuilder)
			currentSuggestion = nil
			currentSection = "SUMMARY"
			continue
		case strings.HasPrefix(upperLine, "# VERDICT"):
			flushSuggestion(result, currentSuggestion, &commentBuilder)
			currentSuggestion = nil
			currentSection = "VERDICT"
			continue
		case strings.HasPrefix(upperLine, "# SUGGESTIONS"):
			flushSuggestion(result, currentSuggestion, &commentBuilder)
			currentSuggestion = nil
			currentSection = "SUGGESTIONS"
			continue
		}

		if strings.HasPrefix(strings.ToLower(line), "## suggestion") {
			flushSuggestion(result, currentSuggestion, &commentBuilder)

			matches := suggestionHeaderRegex.FindStringSubmatch(line)
			if len(matches) >= 3 {
				start, _ := strconv.Atoi(matches[2])
				end := start
				if matches[3] != "" {
					if n, err := strconv.Atoi(matches[3]); err == nil && n >= start {
						end = n
					}
				}
				currentSuggestion = &core.Suggestion{
					FilePath:  strings.TrimSpace(matches[1]),
					StartLine: start,
					EndLine:   end,
				}
			} else {
				// Header exists but the location did not parse; keep the
				// suggestion with best-effort info.
				currentSuggestion = &core.Suggestion{FilePath: "unknown"}
			}
			currentSection = "SUGGESTION_CONTENT"
			continue
		}

		switch currentSection {
		case "SUMMARY":
			if line != "" && !strings.HasPrefix(line, "#") {
				if summaryBuilder.Len() > 0 {
					summaryBuilder.WriteString("\n")
				}
				summaryBuilder.WriteString(line)
			}
		case "VERDICT":
			if line != "" && !strings.HasPrefix(line, "#") {
				result.Recommended = normalizeVerdict(line)
				currentSection = "DONE_VERDICT"
			}
		case "SUGGESTION_CONTENT":
			if currentSuggestion == nil {
				continue
			}

			if strings.HasPrefix(line, "**Severity") {
				if m := severityRegex.FindStringSubmatch(line); len(m) > 1 {
					currentSuggestion.Severity = strings.TrimSpace(m[1])
				}
				continue
			}
			if strings.HasPrefix(line, "**Category") {
				if m := categoryRegex.FindStringSubmatch(line); len(m) > 1 {
					currentSuggestion.Category = strings.TrimSpace(m[1])
				}
				continue
			}
			if strings.HasPrefix(line, "### Comment") {
				continue
			}
			if strings.HasPrefix(line, "### Fix") {
				commentBuilder.WriteString("\n\n**Fix:**\n")
				continue
			}

			// Accumulate content, preserving original indentation.
			if line != "" || commentBuilder.Len() > 0 {
				commentBuilder.WriteString(lines[i] + "\n")
			}
		}
	}

	result.Summary = summaryBuilder.String()
	flushSuggestion(result, currentSuggestion, &commentBuilder)

	if result.Summary == "" && len(result.Suggestions) == 0 {
		return nil, fmt.Errorf("failed to parse review: no recognized sections found")
	}

	return result, nil
}

// normalizeVerdict maps the provider's free-form verdict line onto the
// recommended action enum.
func normalizeVerdict(line string) core.RecommendedAction {
	v := strings.ToUpper(strings.TrimSpace(line))
	v = strings.Trim(v, "*`")
	switch {
	case strings.HasPrefix(v, "APPROVE"):
		return core.ActionApprove
	case strings.HasPrefix(v, "REQUEST_CHANGES"), strings.HasPrefix(v, "REQUEST CHANGES"):
		return core.ActionRequestChanges
	default:
		return core.ActionNone
	}
}

// flushSuggestion appends the current suggestion (if any) to the result and
// resets the builder.
func flushSuggestion(result *core.ReviewResult, s *core.Suggestion, builder *strings.Builder) {
	if s == nil {
		return
	}
	if builder.Len() > 0 {
		s.Comment = strings.TrimSpace(builder.String())
		builder.Reset()
	}
	result.Suggestions = append(result.Suggestions, *s)
}

// stripMarkdownFence removes ```markdown ... ``` wrapping that some models add
// around their output.
func stripMarkdownFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```markdown") || strings.HasPrefix(trimmed, "```md") {
		idx := strings.Index(trimmed, "\n")
		if idx < 0 {
			return s
		}
		inner := trimmed[idx+1:]
		if lastFence := strings.LastIndex(inner, "```"); lastFence >= 0 {
			inner = inner[:lastFence]
		}
		return strings.TrimSpace(inner)
	}
	return s
}
