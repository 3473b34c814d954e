package core

import (
	"fmt"
	"strings"
)

// TriggerEvent is the normalized, internal view of an inbound trigger, whether
// it arrived as a Slack event or a CI webhook. It is the unit queued onto the
// job dispatcher.
type TriggerEvent struct {
	Source     TriggerSource
	RequestKey string

	// Slack path.
	SlackUser   string
	Target      SlackTarget
	FileName    string
	FileContent []byte

	// CI path.
	RepoFullName string
	RepoCloneURL string
	Branch       string
	TargetBranch string
	CommitSHA    string
	Diff         string
	ChangedPaths []string
	IssueRefHint string
}

// CIWebhookPayload is the body the CI runner posts. ChangedFiles and Diff may
// be empty, in which case the collector computes the diff itself from the
// clone URL.
type CIWebhookPayload struct {
	Event        string   `json:"event"` // "push" or "merge"
	RepoFullName string   `json:"repo_full_name"`
	RepoCloneURL string   `json:"repo_clone_url"`
	Branch       string   `json:"branch"`
	TargetBranch string   `json:"target_branch,omitempty"`
	CommitSHA    string   `json:"commit_sha"`
	Diff         string   `json:"diff,omitempty"`
	ChangedFiles []string `json:"changed_files,omitempty"`
	IssueRefHint string   `json:"issue_ref_hint,omitempty"`
}

// TriggerFromCIWebhook transforms a raw CI webhook payload into the internal
// TriggerEvent representation. It acts as an anti-corruption layer, rejecting
// payloads that are missing the fields a review cannot proceed without.
func TriggerFromCIWebhook(p *CIWebhookPayload, target SlackTarget) (*TriggerEvent, error) {
	if p == nil {
		return nil, fmt.Errorf("payload cannot be nil")
	}
	if p.RepoFullName == "" {
		return nil, fmt.Errorf("repository full name is missing from the payload")
	}
	if p.Branch == "" {
		return nil, fmt.Errorf("branch is missing from the payload")
	}
	if p.CommitSHA == "" {
		return nil, fmt.Errorf("commit SHA is missing from the payload")
	}
	if p.Diff == "" && p.RepoCloneURL == "" {
		return nil, fmt.Errorf("payload carries neither a diff nor a clone URL to compute one")
	}
	if target.ChannelID == "" {
		return nil, fmt.Errorf("no Slack channel configured for repository %s", p.RepoFullName)
	}

	source := SourceCIPush
	if strings.EqualFold(strings.TrimSpace(p.Event), "merge") {
		source = SourceCIMerge
		if p.TargetBranch == "" {
			return nil, fmt.Errorf("merge event is missing the target branch")
		}
	}

	return &TriggerEvent{
		Source:       source,
		RequestKey:   RequestKeyForCommit(p.CommitSHA, p.Branch),
		Target:       target,
		RepoFullName: p.RepoFullName,
		RepoCloneURL: p.RepoCloneURL,
		Branch:       p.Branch,
		TargetBranch: p.TargetBranch,
		CommitSHA:    p.CommitSHA,
		Diff:         p.Diff,
		ChangedPaths: p.ChangedFiles,
		IssueRefHint: p.IssueRefHint,
	}, nil
}

// TriggerFromSlackUpload builds a TriggerEvent from a downloaded Slack file
// upload. Content validation against the allow-list happens later in the
// collector; this only checks the event is structurally complete.
func TriggerFromSlackUpload(user, channelID, threadTS, fileName string, content []byte) (*TriggerEvent, error) {
	if user == "" {
		return nil, fmt.Errorf("uploader information is missing from the event")
	}
	if channelID == "" {
		return nil, fmt.Errorf("channel information is missing from the event")
	}
	if fileName == "" {
		return nil, fmt.Errorf("file name is missing from the event")
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("uploaded file is empty")
	}

	return &TriggerEvent{
		Source:      SourceSlackUpload,
		RequestKey:  RequestKeyForUpload(content),
		SlackUser:   user,
		Target:      SlackTarget{ChannelID: channelID, ThreadTS: threadTS},
		FileName:    fileName,
		FileContent: content,
	}, nil
}
