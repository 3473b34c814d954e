// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// TriggerSource identifies which inbound path produced a review request.
type TriggerSource string

const (
	SourceSlackUpload TriggerSource = "slack-upload"
	SourceCIPush      TriggerSource = "ci-push"
	SourceCIMerge     TriggerSource = "ci-merge-event"
)

// SlackTarget identifies where review output is delivered. ThreadTS is empty
// for a new top-level message and carries the parent message timestamp when
// replies must land in an existing thread.
type SlackTarget struct {
	ChannelID string
	ThreadTS  string
}

// ChangedFile pairs a file path with the excerpt of its final content that is
// included in the review payload. Order is preserved from the trigger.
type ChangedFile struct {
	Path    string
	Excerpt string
}

// IssueMeta holds metadata fetched from the issue tracker for a matched issue key.
type IssueMeta struct {
	Key         string
	Title       string
	Description string
	Status      string
}

// ReviewRequest is one immutable review unit, assembled by the context
// collector from a trigger. Everything the payload builder needs is here;
// nothing is mutated after collection.
type ReviewRequest struct {
	Source     TriggerSource
	RequestKey string

	RawDiff      string
	ChangedFiles []ChangedFile
	Issue        *IssueMeta

	Target       SlackTarget
	RepoFullName string
	Branch       string
	TargetBranch string
	CommitSHA    string
}

// TemplateID selects one of the fixed prompt templates.
type TemplateID string

const (
	TemplateSlackUpload TemplateID = "slack_upload"
	TemplateCIPush      TemplateID = "ci_push"
	TemplateCIMerge     TemplateID = "ci_merge"
)

// ReviewPayload is the bounded artifact sent to the review provider. It is
// derived deterministically from a ReviewRequest and never mutated.
type ReviewPayload struct {
	TemplateID   TemplateID
	RenderedText string
	Truncated    bool
}

// RecommendedAction is the provider's verdict, normalized.
type RecommendedAction string

const (
	ActionNone           RecommendedAction = "none"
	ActionApprove        RecommendedAction = "approve"
	ActionRequestChanges RecommendedAction = "request-changes"
)

// Suggestion is a single piece of feedback anchored to a line range of a file.
type Suggestion struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Severity  string `json:"severity"` // e.g. "Low", "Medium", "High", "Critical"
	Category  string `json:"category"` // e.g. "Bug", "Style", "Security"
	Comment   string `json:"comment"`
}

// ReviewResult is the provider's response normalized into a routable form.
type ReviewResult struct {
	Summary     string            `json:"summary"`
	Suggestions []Suggestion      `json:"suggestions"`
	Recommended RecommendedAction `json:"recommended_action"`
}

// RequestKeyForCommit derives the deterministic request key for a CI trigger.
// SHA and branch together form the logical review identity, so a repeated
// webhook for the same branch head maps onto the same key while the same
// commit landing on another branch starts a fresh review.
func RequestKeyForCommit(commitSHA, branch string) string {
	sum := sha256.Sum256([]byte(commitSHA + "\n" + branch))
	return hex.EncodeToString(sum[:16])
}

// RequestKeyForUpload derives the deterministic request key for a Slack upload
// from the uploaded content itself.
func RequestKeyForUpload(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:16])
}
