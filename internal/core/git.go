package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	git "gopkg.in/src-d/go-git.v4"
	gitconfig "gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	githttp "gopkg.in/src-d/go-git.v4/plumbing/transport/http"
)

// LocalRepo wraps the working copy the reviewer runs in.
type LocalRepo struct {
	path string
	repo *git.Repository
}

// CommitAuthor is the identity used for auto-fix commits.
type CommitAuthor struct {
	Name  string
	Email string
}

// OpenLocalRepo opens the git repository rooted at path.
func OpenLocalRepo(path string) (*LocalRepo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &LocalRepo{path: path, repo: repo}, nil
}

// Path returns the repository root.
func (r *LocalRepo) Path() string {
	return r.path
}

// HeadBranch returns the short name of the checked out branch, or "" on a
// detached HEAD.
func (r *LocalRepo) HeadBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// DiffAgainst returns the unified diff between the tip of base and HEAD.
// base may be a branch, a remote branch (origin/main) or a commit hash.
func (r *LocalRepo) DiffAgainst(base string) (string, error) {
	baseCommit, err := r.commitFor(base)
	if err != nil {
		// Actions checkouts usually only carry the remote-tracking ref.
		if !strings.HasPrefix(base, "origin/") {
			if c, rerr := r.commitFor("origin/" + base); rerr == nil {
				baseCommit, err = c, nil
			}
		}
		if err != nil {
			return "", err
		}
	}

	headRef, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	headCommit, err := r.repo.CommitObject(headRef.Hash())
	if err != nil {
		return "", fmt.Errorf("load HEAD commit: %w", err)
	}

	patch, err := baseCommit.Patch(headCommit)
	if err != nil {
		return "", fmt.Errorf("diff %s..HEAD: %w", base, err)
	}
	return patch.String(), nil
}

func (r *LocalRepo) commitFor(rev string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", rev, err)
	}
	c, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	return c, nil
}

// Commit stages files (paths relative to the repository root) and records a
// commit. It returns the new commit hash.
func (r *LocalRepo) Commit(files []string, message string, author CommitAuthor) (string, error) {
	if len(files) == 0 {
		return "", errors.New("nothing to commit")
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	for _, f := range files {
		if _, err := wt.Add(filepath.ToSlash(f)); err != nil {
			return "", fmt.Errorf("stage %s: %w", f, err)
		}
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author.Name,
			Email: author.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String(), nil
}

// Push publishes commit to branch on origin, authenticating with the
// platform token. GitLab ignores the basic auth username. The local branch ref is moved to the commit first so detached
// checkouts can push too.
func (r *LocalRepo) Push(ctx context.Context, commit, branch, token string) error {
	ref := plumbing.NewBranchReferenceName(branch)
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(ref, plumbing.NewHash(commit))); err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}

	opts := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))},
	}
	if token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}

	err := r.repo.PushContext(ctx, opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	return nil
}
