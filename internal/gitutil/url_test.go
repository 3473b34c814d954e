package gitutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMergeRequestURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantID    int
		wantErr   bool
	}{
		{
			name:      "Valid HTTPS URL",
			url:       "https://github.com/acme/widgets/pull/123",
			wantOwner: "acme",
			wantRepo:  "widgets",
			wantID:    123,
			wantErr:   false,
		},
		{
			name:      "Valid URL without scheme",
			url:       "github.com/acme/widgets/pull/456",
			wantOwner: "acme",
			wantRepo:  "widgets",
			wantID:    456,
			wantErr:   false,
		},
		{
			name:      "URL with trailing slash",
			url:       "https://github.com/acme/widgets/pull/789/",
			wantOwner: "acme",
			wantRepo:  "widgets",
			wantID:    789,
			wantErr:   false,
		},
		{
			name:    "Invalid number",
			url:     "https://github.com/acme/widgets/pull/abc",
			wantErr: true,
		},
		{
			name:    "Invalid format (missing pull)",
			url:     "https://github.com/acme/widgets/issues/123",
			wantErr: true,
		},
		{
			name:    "Invalid format (too many segments)",
			url:     "https://github.com/acme/widgets/pull/123/files",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, id, err := ParseMergeRequestURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantOwner, owner)
				assert.Equal(t, tt.wantRepo, repo)
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestSplitFullName(t *testing.T) {
	owner, repo, err := SplitFullName("acme/widgets")
	assert.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)

	_, _, err = SplitFullName("just-a-name")
	assert.Error(t, err)

	_, _, err = SplitFullName("acme/")
	assert.Error(t, err)
}

func TestRepoFullNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/widgets.git", "acme/widgets"},
		{"https://github.com/acme/widgets", "acme/widgets"},
		{"http://git.internal/acme/widgets.git", "acme/widgets"},
	}
	for _, tt := range tests {
		got, err := RepoFullNameFromURL(tt.url)
		assert.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got)
	}

	_, err := RepoFullNameFromURL("not-a-url")
	assert.Error(t, err)
}
