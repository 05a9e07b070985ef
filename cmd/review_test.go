package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/object"

	"github.com/sanix-darker/prbot/internal/config"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/review"
	"github.com/sanix-darker/prbot/internal/vcs"
	ghvcs "github.com/sanix-darker/prbot/internal/vcs/github"
)

func TestPrTarget(t *testing.T) {
	event := func(string) (ghvcs.EventContext, error) {
		return ghvcs.EventContext{Repo: vcs.Repo{Owner: "acme", Name: "app"}, Number: 42}, nil
	}
	noEvent := func(string) (ghvcs.EventContext, error) {
		return ghvcs.EventContext{}, errors.New("should not be read")
	}

	tests := []struct {
		name    string
		opts    config.Options
		load    func(string) (ghvcs.EventContext, error)
		want    review.Target
		wantErr error
	}{
		{
			name: "flags",
			opts: config.Options{Repository: "acme/web", PRNumber: 7, EventPath: "event.json"},
			load: noEvent,
			want: review.Target{Repo: vcs.Repo{Owner: "acme", Name: "web"}, Number: 7},
		},
		{
			name: "gitlab nested group",
			opts: config.Options{Platform: config.PlatformGitLab, Repository: "grp/sub/proj", PRNumber: 3},
			load: noEvent,
			want: review.Target{Repo: vcs.Repo{Owner: "grp/sub", Name: "proj"}, Number: 3},
		},
		{
			name: "event payload",
			opts: config.Options{EventPath: "event.json"},
			load: event,
			want: review.Target{Repo: vcs.Repo{Owner: "acme", Name: "app"}, Number: 42},
		},
		{
			name: "repository flag wins over the event repo",
			opts: config.Options{Repository: "acme/fork", EventPath: "event.json"},
			load: event,
			want: review.Target{Repo: vcs.Repo{Owner: "acme", Name: "fork"}, Number: 42},
		},
		{
			name:    "nothing to review",
			opts:    config.Options{Repository: "acme/app"},
			load:    noEvent,
			wantErr: review.ErrNoPullRequest,
		},
		{
			name:    "push event",
			opts:    config.Options{EventPath: "event.json"},
			load:    func(string) (ghvcs.EventContext, error) { return ghvcs.EventContext{}, ghvcs.ErrNotPullRequestEvent },
			wantErr: review.ErrNoPullRequest,
		},
		{
			name:    "bad repository",
			opts:    config.Options{Repository: "acme", PRNumber: 1},
			load:    noEvent,
			wantErr: config.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prTarget(tt.opts, tt.load)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalTarget(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	sig := &object.Signature{Name: "Test", Email: "test@test.com", When: time.Now()}
	write := func(name, body string) plumbing.Hash {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
		h, err := wt.Commit("update "+name, &git.CommitOptions{Author: sig})
		require.NoError(t, err)
		return h
	}
	base := write("app.go", "package app\n")
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), base)))
	write("app.go", "package app\n\nvar x = 1\n")

	local, err := core.OpenLocalRepo(dir)
	require.NoError(t, err)

	target, err := localTarget(local, "main")
	require.NoError(t, err)
	require.NotNil(t, target.PR)
	assert.Equal(t, "master against main", target.PR.Title)
	assert.Equal(t, "main", target.PR.BaseBranch)
	require.Len(t, target.Files, 1)
	assert.Equal(t, "app.go", target.Files[0].Path)
	assert.Equal(t, 2, target.Files[0].Additions)
	assert.Equal(t, "master against main", describe(target))
}
