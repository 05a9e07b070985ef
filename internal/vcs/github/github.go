// Package github implements vcs.Provider on top of go-github.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/sanix-darker/prbot/internal/cmd/version"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/vcs"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.github.com"

// Provider implements vcs.Provider for GitHub and GitHub Enterprise.
type Provider struct {
	gh      *github.Client
	baseURL string
}

func init() {
	vcs.Register("github", NewProvider)
}

// NewProvider creates a GitHub vcs.Provider. conn.BaseURL is the REST root,
// for example $GITHUB_API_URL on Enterprise runners.
func NewProvider(conn vcs.Connection) (vcs.Provider, error) {
	if conn.Token == "" {
		return nil, fmt.Errorf("github: token is required")
	}
	timeout := conn.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: conn.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = timeout

	gh := github.NewClient(tc)
	gh.UserAgent = version.UserAgent()
	baseURL := strings.TrimRight(conn.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL != defaultBaseURL {
		u, err := url.Parse(baseURL + "/")
		if err != nil {
			return nil, fmt.Errorf("github: invalid base url %q: %w", baseURL, err)
		}
		gh.BaseURL = u
	}

	return &Provider{gh: gh, baseURL: baseURL}, nil
}

// Info returns provider metadata.
func (p *Provider) Info() vcs.ProviderInfo {
	return vcs.ProviderInfo{Name: "github", BaseURL: p.baseURL}
}

// GetPullRequest fetches pull request metadata.
func (p *Provider) GetPullRequest(ctx context.Context, repo vcs.Repo, number int) (*vcs.PullRequest, error) {
	pr, _, err := p.gh.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, fmt.Errorf("github: get PR #%d: %w", number, wrapNotFound(err))
	}

	return &vcs.PullRequest{
		Number:      pr.GetNumber(),
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		Author:      pr.GetUser().GetLogin(),
		BaseBranch:  pr.GetBase().GetRef(),
		HeadBranch:  pr.GetHead().GetRef(),
		BaseSHA:     pr.GetBase().GetSHA(),
		HeadSHA:     pr.GetHead().GetSHA(),
		State:       pr.GetState(),
		Draft:       pr.GetDraft(),
		WebURL:      pr.GetHTMLURL(),
	}, nil
}

// ListFiles returns every changed file of the pull request, following
// pagination. Changes is recomputed from additions and deletions.
func (p *Provider) ListFiles(ctx context.Context, repo vcs.Repo, number int) ([]core.FileChange, error) {
	opts := &github.ListOptions{PerPage: 100}
	var all []core.FileChange

	for {
		files, resp, err := p.gh.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("github: list PR files: %w", err)
		}
		for _, f := range files {
			fc := core.NewFileChange(
				f.GetFilename(),
				core.ParseChangeStatus(f.GetStatus()),
				f.GetAdditions(),
				f.GetDeletions(),
				f.GetPatch(),
			)
			fc.PreviousPath = f.GetPreviousFilename()
			all = append(all, fc)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// GetFileContent fetches the decoded content of path at ref.
func (p *Provider) GetFileContent(ctx context.Context, repo vcs.Repo, path, ref string) (string, error) {
	file, dir, _, err := p.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, &github.RepositoryContentGetOptions{
		Ref: ref,
	})
	if err != nil {
		return "", fmt.Errorf("github: get %s@%s: %w", path, ref, wrapNotFound(err))
	}
	if file == nil {
		if dir != nil {
			return "", fmt.Errorf("github: %s is a directory", path)
		}
		return "", fmt.Errorf("github: get %s@%s: %w", path, ref, vcs.ErrNotFound)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("github: decode %s: %w", path, err)
	}
	return content, nil
}

// ListIssueComments lists the conversation comments of the pull request.
func (p *Provider) ListIssueComments(ctx context.Context, repo vcs.Repo, number int) ([]vcs.Comment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var all []vcs.Comment

	for {
		comments, resp, err := p.gh.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("github: list PR comments: %w", err)
		}
		for _, c := range comments {
			all = append(all, fromIssueComment(c))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// CreateIssueComment posts a conversation comment.
func (p *Provider) CreateIssueComment(ctx context.Context, repo vcs.Repo, number int, body string) (vcs.Comment, error) {
	c, _, err := p.gh.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return vcs.Comment{}, fmt.Errorf("github: create PR comment: %w", err)
	}
	return fromIssueComment(c), nil
}

// UpdateIssueComment replaces the body of a conversation comment.
func (p *Provider) UpdateIssueComment(ctx context.Context, repo vcs.Repo, _ int, id int64, body string) error {
	_, _, err := p.gh.Issues.EditComment(ctx, repo.Owner, repo.Name, id, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("github: update PR comment %d: %w", id, err)
	}
	return nil
}

// DeleteIssueComment deletes a conversation comment.
func (p *Provider) DeleteIssueComment(ctx context.Context, repo vcs.Repo, _ int, id int64) error {
	if _, err := p.gh.Issues.DeleteComment(ctx, repo.Owner, repo.Name, id); err != nil {
		return fmt.Errorf("github: delete PR comment %d: %w", id, wrapNotFound(err))
	}
	return nil
}

// ListReviewComments lists the inline review comments of the pull request.
func (p *Provider) ListReviewComments(ctx context.Context, repo vcs.Repo, number int) ([]vcs.Comment, error) {
	opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var all []vcs.Comment

	for {
		comments, resp, err := p.gh.PullRequests.ListComments(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("github: list PR review comments: %w", err)
		}
		for _, c := range comments {
			all = append(all, fromReviewComment(c))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// CreateReviewComment posts an inline comment on the right side of the diff.
func (p *Provider) CreateReviewComment(ctx context.Context, repo vcs.Repo, number int, nc vcs.NewReviewComment) (vcs.Comment, error) {
	c, _, err := p.gh.PullRequests.CreateComment(ctx, repo.Owner, repo.Name, number, &github.PullRequestComment{
		Body:     github.Ptr(nc.Body),
		Path:     github.Ptr(nc.Path),
		Line:     github.Ptr(nc.Line),
		Side:     github.Ptr("RIGHT"),
		CommitID: github.Ptr(nc.CommitID),
	})
	if err != nil {
		return vcs.Comment{}, fmt.Errorf("github: create review comment on %s:%d: %w", nc.Path, nc.Line, err)
	}
	return fromReviewComment(c), nil
}

// UpdateReviewComment replaces the body of an inline comment.
func (p *Provider) UpdateReviewComment(ctx context.Context, repo vcs.Repo, _ int, id int64, body string) error {
	_, _, err := p.gh.PullRequests.EditComment(ctx, repo.Owner, repo.Name, id, &github.PullRequestComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("github: update review comment %d: %w", id, err)
	}
	return nil
}

// RateLimit returns the core REST quota.
func (p *Provider) RateLimit(ctx context.Context) (vcs.RateLimit, error) {
	limits, _, err := p.gh.RateLimit.Get(ctx)
	if err != nil {
		return vcs.RateLimit{}, fmt.Errorf("github: rate limit: %w", err)
	}
	rate := limits.GetCore()
	if rate == nil {
		return vcs.RateLimit{}, nil
	}
	return vcs.RateLimit{
		Limit:     rate.Limit,
		Remaining: rate.Remaining,
		Reset:     rate.Reset.Time,
	}, nil
}

// FormatSuggestionBlock returns a GitHub-native suggestion code block.
func (p *Provider) FormatSuggestionBlock(code string) string {
	return "```suggestion\n" + strings.TrimRight(code, "\n") + "\n```"
}

func fromIssueComment(c *github.IssueComment) vcs.Comment {
	return vcs.Comment{
		ID:     c.GetID(),
		Author: c.GetUser().GetLogin(),
		Body:   c.GetBody(),
	}
}

func fromReviewComment(c *github.PullRequestComment) vcs.Comment {
	return vcs.Comment{
		ID:        c.GetID(),
		Author:    c.GetUser().GetLogin(),
		Body:      c.GetBody(),
		Path:      c.GetPath(),
		Line:      c.GetLine(),
		CommitID:  c.GetCommitID(),
		InReplyTo: c.GetInReplyTo(),
	}
}

func wrapNotFound(err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", vcs.ErrNotFound, ghErr.Message)
	}
	return err
}
