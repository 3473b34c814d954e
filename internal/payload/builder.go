package payload

import (
	"fmt"
	"log/slog"

	"github.com/mergemate/mergemate/internal/core"
)

// truncationMarker is appended to every excerpt or diff that was cut down to
// fit the budget.
const truncationMarker = "\n... [truncated]"

// Builder renders a ReviewRequest into a size-bounded ReviewPayload. Building
// is deterministic: the same request and template ID always produce the same
// rendered text and truncation flag.
type Builder struct {
	templates   *TemplateSet
	provider    ModelProvider
	tokenBudget int
	logger      *slog.Logger
}

// NewBuilder creates a Builder enforcing the given token budget. Tokens are
// estimated at one per three characters, matching the provider-side estimate.
func NewBuilder(templates *TemplateSet, provider string, tokenBudget int, logger *slog.Logger) *Builder {
	if tokenBudget <= 0 {
		tokenBudget = 16000
	}
	return &Builder{
		templates:   templates,
		provider:    ModelProvider(provider),
		tokenBudget: tokenBudget,
		logger:      logger,
	}
}

// promptData is the template rendering input. It carries no timestamps or
// other non-deterministic fields.
type promptData struct {
	Repo         string
	Branch       string
	TargetBranch string
	CommitSHA    string
	Issue        *core.IssueMeta
	Diff         string
	Files        []core.ChangedFile
}

// TemplateForSource maps a trigger source to its default template.
func TemplateForSource(source core.TriggerSource) core.TemplateID {
	switch source {
	case core.SourceCIPush:
		return core.TemplateCIPush
	case core.SourceCIMerge:
		return core.TemplateCIMerge
	default:
		return core.TemplateSlackUpload
	}
}

// Build renders the request through the selected template and enforces the
// token ceiling. When the rendered text exceeds the budget, file excerpts are
// cut first (longest first), then the diff tail; issue metadata is never
// dropped. The Truncated flag is set whenever anything was cut.
func (b *Builder) Build(req *core.ReviewRequest, id core.TemplateID) (*core.ReviewPayload, error) {
	if req == nil {
		return nil, fmt.Errorf("review request cannot be nil")
	}

	data := promptData{
		Repo:         req.RepoFullName,
		Branch:       req.Branch,
		TargetBranch: req.TargetBranch,
		CommitSHA:    req.CommitSHA,
		Issue:        req.Issue,
		Diff:         req.RawDiff,
		Files:        append([]core.ChangedFile(nil), req.ChangedFiles...),
	}

	rendered, err := b.templates.Render(id, b.provider, data)
	if err != nil {
		return nil, err
	}

	truncated := false
	for estimateTokens(rendered) > b.tokenBudget {
		overshoot := (estimateTokens(rendered) - b.tokenBudget) * charsPerToken
		if !cutLongestExcerpt(&data, overshoot) {
			if len(data.Diff) == 0 {
				break
			}
			data.Diff = cutTail(data.Diff, overshoot)
		}
		truncated = true

		rendered, err = b.templates.Render(id, b.provider, data)
		if err != nil {
			return nil, err
		}
	}

	if truncated {
		b.logger.Debug("payload truncated to fit token budget",
			"request_key", req.RequestKey,
			"template", id,
			"tokens", estimateTokens(rendered),
			"budget", b.tokenBudget,
		)
	}

	return &core.ReviewPayload{
		TemplateID:   id,
		RenderedText: rendered,
		Truncated:    truncated,
	}, nil
}

const charsPerToken = 3

// estimateTokens is a fast character-based token estimate, the same heuristic
// the provider adapter uses when the model exposes no tokenizer.
func estimateTokens(text string) int {
	return len(text) / charsPerToken
}

// cutLongestExcerpt removes up to overshoot characters from the longest file
// excerpt. It returns false when no excerpt has content left to cut. Ties are
// broken by path order so truncation stays deterministic.
func cutLongestExcerpt(data *promptData, overshoot int) bool {
	idx := -1
	for i, f := range data.Files {
		if len(f.Excerpt) == 0 {
			continue
		}
		if idx == -1 || len(f.Excerpt) > len(data.Files[idx].Excerpt) {
			idx = i
		}
	}
	if idx == -1 {
		return false
	}
	data.Files[idx].Excerpt = cutTail(data.Files[idx].Excerpt, overshoot)

	// Drop files whose excerpt is fully consumed so the template does not
	// render empty sections.
	kept := data.Files[:0]
	for _, f := range data.Files {
		if len(f.Excerpt) > 0 {
			kept = append(kept, f)
		}
	}
	data.Files = kept
	return true
}

// cutTail removes n characters from the end of s and appends the truncation
// marker, or returns the empty string when nothing meaningful would remain.
func cutTail(s string, n int) string {
	if n >= len(s) {
		return ""
	}
	remaining := len(s) - n
	if remaining <= len(truncationMarker) {
		return ""
	}
	return s[:remaining-len(truncationMarker)] + truncationMarker
}
