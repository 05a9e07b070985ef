// Package vcs abstracts the hosting platform a pull request lives on. The
// reviewer only needs pull request metadata, changed files, file content at
// a ref and the two comment flavours (conversation and review comments).
package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sanix-darker/prbot/internal/core"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("vcs: not found")

// Provider abstracts hosting platform operations.
type Provider interface {
	Info() ProviderInfo

	GetPullRequest(ctx context.Context, repo Repo, number int) (*PullRequest, error)
	ListFiles(ctx context.Context, repo Repo, number int) ([]core.FileChange, error)
	// GetFileContent returns ErrNotFound when path does not exist at ref.
	GetFileContent(ctx context.Context, repo Repo, path, ref string) (string, error)

	ListIssueComments(ctx context.Context, repo Repo, number int) ([]Comment, error)
	CreateIssueComment(ctx context.Context, repo Repo, number int, body string) (Comment, error)
	// number is the pull request the comment belongs to; platforms that
	// address comments globally ignore it.
	UpdateIssueComment(ctx context.Context, repo Repo, number int, id int64, body string) error
	DeleteIssueComment(ctx context.Context, repo Repo, number int, id int64) error

	ListReviewComments(ctx context.Context, repo Repo, number int) ([]Comment, error)
	CreateReviewComment(ctx context.Context, repo Repo, number int, c NewReviewComment) (Comment, error)
	UpdateReviewComment(ctx context.Context, repo Repo, number int, id int64, body string) error

	RateLimit(ctx context.Context) (RateLimit, error)

	// FormatSuggestionBlock renders code the platform can apply in one click.
	FormatSuggestionBlock(code string) string
}

// ProviderInfo describes a VCS provider.
type ProviderInfo struct {
	Name    string
	BaseURL string
}

// Repo identifies a repository as owner/name. On GitLab the owner may be a
// nested group path such as "group/sub".
type Repo struct {
	Owner string
	Name  string
}

// ParseRepo parses "owner/name"; everything before the last slash is the
// owner.
func ParseRepo(full string) (Repo, error) {
	full = strings.TrimSpace(full)
	i := strings.LastIndex(full, "/")
	if i < 0 {
		return Repo{}, fmt.Errorf("vcs: invalid repository %q, expected owner/name", full)
	}
	owner, name := full[:i], full[i+1:]
	if owner == "" || name == "" || strings.HasPrefix(owner, "/") || strings.HasSuffix(owner, "/") || strings.Contains(owner, "//") {
		return Repo{}, fmt.Errorf("vcs: invalid repository %q, expected owner/name", full)
	}
	return Repo{Owner: owner, Name: name}, nil
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// PullRequest holds platform-agnostic pull request metadata.
type PullRequest struct {
	Number      int
	Title       string
	Description string
	Author      string
	BaseBranch  string
	HeadBranch  string
	BaseSHA     string
	HeadSHA     string
	State       string
	Draft       bool
	WebURL      string
}

// Comment is either a conversation comment or a review comment. Path, Line,
// CommitID and InReplyTo are only set for review comments.
type Comment struct {
	ID        int64
	Author    string
	Body      string
	Path      string
	Line      int
	CommitID  string
	InReplyTo int64
}

// NewReviewComment is an inline comment anchored on the right side of the
// diff at Line.
type NewReviewComment struct {
	Path     string
	Line     int
	Body     string
	CommitID string
}

// RateLimit is the API quota of the token in use.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Low reports whether less than a tenth of the quota remains.
func (r RateLimit) Low() bool {
	return r.Limit > 0 && r.Remaining*10 < r.Limit
}
