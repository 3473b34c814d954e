package gitutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var mrURLRegex = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)$`)

// ParseMergeRequestURL extracts the owner, repo, and number from a merge
// request URL. Supported format: https://github.com/{owner}/{repo}/pull/{number}
func ParseMergeRequestURL(url string) (owner, repo string, number int, err error) {
	url = strings.TrimSuffix(url, "/")

	matches := mrURLRegex.FindStringSubmatch(url)
	if len(matches) != 4 {
		return "", "", 0, fmt.Errorf("invalid merge request URL format: %s", url)
	}

	owner = matches[1]
	repo = matches[2]

	number, err = strconv.Atoi(matches[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid merge request number '%s': %w", matches[3], err)
	}

	return owner, repo, number, nil
}

// SplitFullName splits an "owner/repo" full name into its parts.
func SplitFullName(fullName string) (owner, repo string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository full name: %q", fullName)
	}
	return parts[0], parts[1], nil
}

// RepoFullNameFromURL derives "owner/repo" from an HTTPS clone URL.
func RepoFullNameFromURL(cloneURL string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(cloneURL, "/"), ".git")
	idx := strings.Index(trimmed, "://")
	if idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 {
		return "", fmt.Errorf("cannot derive repository name from URL: %q", cloneURL)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}
