package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/review"
)

func TestWriteOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.WriteFile(path, []byte("previous=1\n"), 0o644))

	res := &review.Result{
		Status:        core.OutcomeNeedsAttention,
		FilesReviewed: 3,
		Summary:       "Two problems.\nSee comments.",
		Issues: []core.Issue{
			{Severity: core.SeverityError},
			{Severity: core.SeverityWarning},
			{Severity: core.SeverityWarning},
		},
	}
	require.NoError(t, writeOutputs(path, res))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")

	assert.Equal(t, []string{
		"previous=1",
		"status=needs_attention",
		"issues=3",
		"errors=1",
		"warnings=2",
		"files_reviewed=3",
	}, lines[:6])
	require.True(t, strings.HasPrefix(lines[6], "summary<<PRBOT_"))
	delim := strings.TrimPrefix(lines[6], "summary<<")
	assert.Equal(t, []string{"Two problems.", "See comments.", delim, ""}, lines[7:])
}

func TestWriteOutputs_NoPath(t *testing.T) {
	assert.NoError(t, writeOutputs("", &review.Result{}))
}
