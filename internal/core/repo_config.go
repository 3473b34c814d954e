package core

// RepoConfig represents the structure of the .mergemate.yml file a repository
// may carry to tune its own reviews.
type RepoConfig struct {
	// AutoApprove lets this repository opt in to merge-request approval when
	// the review verdict recommends it. The global switch must also be on.
	AutoApprove bool `yaml:"auto_approve"`

	// High-performance exclusion of entire directories by name.
	// Example: ["dist", "build", "docs"]
	ExcludeDirs []string `yaml:"exclude_dirs"`

	// Exclusion of files based on their extension.
	// The leading dot is optional. Example: [".md", "lock", ".log"]
	ExcludeExts []string `yaml:"exclude_exts"`

	// Template overrides the prompt template chosen from the trigger source.
	// Empty means use the source default.
	Template string `yaml:"template"`
}

// DefaultRepoConfig returns a config with default values.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		ExcludeDirs: []string{},
		ExcludeExts: []string{},
	}
}
