// Package vcstest provides an in-memory vcs.Provider for tests.
package vcstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/vcs"
)

// Fake is an in-memory pull request. Errors set in Fail are returned by the
// operation of the same name ("CreateReviewComment", "GetFileContent"...).
type Fake struct {
	mu sync.Mutex

	PR             *vcs.PullRequest
	Files          []core.FileChange
	Contents       map[string]string
	IssueComments  []vcs.Comment
	ReviewComments []vcs.Comment
	Rate           vcs.RateLimit

	Fail  map[string]error
	Calls []string

	nextID int64
}

var _ vcs.Provider = (*Fake)(nil)

// New returns a Fake serving pr and files.
func New(pr *vcs.PullRequest, files ...core.FileChange) *Fake {
	return &Fake{
		PR:       pr,
		Files:    files,
		Contents: map[string]string{},
		Fail:     map[string]error{},
		Rate:     vcs.RateLimit{Limit: 5000, Remaining: 5000, Reset: time.Now().Add(time.Hour)},
		nextID:   1000,
	}
}

func (f *Fake) call(op string) error {
	f.Calls = append(f.Calls, op)
	return f.Fail[op]
}

// Count returns how many times op was called.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *Fake) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *Fake) Info() vcs.ProviderInfo {
	return vcs.ProviderInfo{Name: "fake"}
}

func (f *Fake) GetPullRequest(_ context.Context, _ vcs.Repo, number int) (*vcs.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetPullRequest"); err != nil {
		return nil, err
	}
	if f.PR == nil || f.PR.Number != number {
		return nil, fmt.Errorf("PR #%d: %w", number, vcs.ErrNotFound)
	}
	pr := *f.PR
	return &pr, nil
}

func (f *Fake) ListFiles(context.Context, vcs.Repo, int) ([]core.FileChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ListFiles"); err != nil {
		return nil, err
	}
	return append([]core.FileChange(nil), f.Files...), nil
}

func (f *Fake) GetFileContent(_ context.Context, _ vcs.Repo, path, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetFileContent"); err != nil {
		return "", err
	}
	content, ok := f.Contents[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, vcs.ErrNotFound)
	}
	return content, nil
}

func (f *Fake) ListIssueComments(context.Context, vcs.Repo, int) ([]vcs.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ListIssueComments"); err != nil {
		return nil, err
	}
	return append([]vcs.Comment(nil), f.IssueComments...), nil
}

func (f *Fake) CreateIssueComment(_ context.Context, _ vcs.Repo, _ int, body string) (vcs.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateIssueComment"); err != nil {
		return vcs.Comment{}, err
	}
	c := vcs.Comment{ID: f.id(), Author: "bot", Body: body}
	f.IssueComments = append(f.IssueComments, c)
	return c, nil
}

func (f *Fake) UpdateIssueComment(_ context.Context, _ vcs.Repo, _ int, id int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UpdateIssueComment"); err != nil {
		return err
	}
	return update(f.IssueComments, id, body)
}

func (f *Fake) DeleteIssueComment(_ context.Context, _ vcs.Repo, _ int, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteIssueComment"); err != nil {
		return err
	}
	var ok bool
	f.IssueComments, ok = remove(f.IssueComments, id)
	if !ok {
		return vcs.ErrNotFound
	}
	return nil
}

func (f *Fake) ListReviewComments(context.Context, vcs.Repo, int) ([]vcs.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ListReviewComments"); err != nil {
		return nil, err
	}
	return append([]vcs.Comment(nil), f.ReviewComments...), nil
}

func (f *Fake) CreateReviewComment(_ context.Context, _ vcs.Repo, _ int, nc vcs.NewReviewComment) (vcs.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateReviewComment"); err != nil {
		return vcs.Comment{}, err
	}
	c := vcs.Comment{ID: f.id(), Author: "bot", Body: nc.Body, Path: nc.Path, Line: nc.Line, CommitID: nc.CommitID}
	f.ReviewComments = append(f.ReviewComments, c)
	return c, nil
}

func (f *Fake) UpdateReviewComment(_ context.Context, _ vcs.Repo, _ int, id int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UpdateReviewComment"); err != nil {
		return err
	}
	return update(f.ReviewComments, id, body)
}

func (f *Fake) RateLimit(context.Context) (vcs.RateLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RateLimit"); err != nil {
		return vcs.RateLimit{}, err
	}
	return f.Rate, nil
}

func (f *Fake) FormatSuggestionBlock(code string) string {
	return "```suggestion\n" + code + "\n```"
}

func update(comments []vcs.Comment, id int64, body string) error {
	for i := range comments {
		if comments[i].ID == id {
			comments[i].Body = body
			return nil
		}
	}
	return vcs.ErrNotFound
}

func remove(comments []vcs.Comment, id int64) ([]vcs.Comment, bool) {
	for i, c := range comments {
		if c.ID == id {
			return append(comments[:i], comments[i+1:]...), true
		}
	}
	return comments, false
}
