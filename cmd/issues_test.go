package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backlogdeck/bld/internal/models"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly te", truncate("exactly te", 10))
	assert.Equal(t, "too long …", truncate("too long to fit here", 10))
	// Multibyte input is cut on rune boundaries.
	assert.Equal(t, "日本語のタイトルが…", truncate("日本語のタイトルがとても長い場合", 10))
}

func TestResolveIssueType(t *testing.T) {
	project := &models.ProjectDetails{
		ProjectKey: "ALPHA",
		IssueTypes: []models.IssueType{
			{ID: 3, Name: "Task"},
			{ID: 4, Name: "Bug"},
		},
	}

	id, err := resolveIssueType(project, "bug")
	require.NoError(t, err)
	assert.Equal(t, 4, id)

	id, err = resolveIssueType(project, "3")
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	_, err = resolveIssueType(project, "Feature")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALPHA")
}

func TestHostChecker(t *testing.T) {
	hc := hostChecker{allowed: []string{"backlog.com", "backlog.jp"}}

	assert.NoError(t, hc.Check(nil, "https://acme.backlog.com/"))
	assert.NoError(t, hc.Check(nil, "https://acme.backlog.jp/"))
	assert.Error(t, hc.Check(nil, "https://evil.example.com/"))
	assert.Error(t, hc.Check(nil, "https://backlog.com.evil.example/"))
}
