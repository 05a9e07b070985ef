// Package gitlab implements vcs.Provider for GitLab merge requests. Notes
// are the conversation comments, diff discussions the review comments.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/sanix-darker/prbot/internal/cmd/version"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/diffparse"
	"github.com/sanix-darker/prbot/internal/vcs"
)

const defaultBaseURL = "https://gitlab.com"

// diffRefs are the SHAs a diff position is anchored to.
type diffRefs struct {
	base, head, start string
}

// Provider implements vcs.Provider for GitLab.
type Provider struct {
	api     *gl.Client
	baseURL string

	mu       sync.Mutex
	diffRefs map[string]diffRefs
	rate     vcs.RateLimit
}

func init() {
	vcs.Register("gitlab", NewProvider)
}

// NewProvider creates a GitLab vcs.Provider. conn.BaseURL is the instance
// root such as $CI_SERVER_URL, without /api/v4.
func NewProvider(conn vcs.Connection) (vcs.Provider, error) {
	if conn.Token == "" {
		return nil, fmt.Errorf("gitlab: token is required")
	}
	baseURL := strings.TrimSuffix(strings.TrimRight(conn.BaseURL, "/"), "/api/v4")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := conn.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := gl.NewClient(conn.Token,
		gl.WithBaseURL(baseURL+"/api/v4"),
		gl.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("gitlab: failed to create client: %w", err)
	}
	client.UserAgent = version.UserAgent()

	return &Provider{api: client, baseURL: baseURL, diffRefs: map[string]diffRefs{}}, nil
}

// Info returns provider metadata.
func (p *Provider) Info() vcs.ProviderInfo {
	return vcs.ProviderInfo{Name: "gitlab", BaseURL: p.baseURL}
}

// GetPullRequest fetches merge request metadata and remembers its diff refs
// for positioning discussions.
func (p *Provider) GetPullRequest(ctx context.Context, repo vcs.Repo, number int) (*vcs.PullRequest, error) {
	mr, resp, err := p.api.MergeRequests.GetMergeRequest(repo.String(), int64(number), nil, gl.WithContext(ctx))
	p.track(resp)
	if err != nil {
		return nil, fmt.Errorf("gitlab: failed to fetch MR !%d: %w", number, wrapNotFound(err))
	}

	p.mu.Lock()
	p.diffRefs[refKey(repo, number)] = diffRefs{
		base:  mr.DiffRefs.BaseSha,
		head:  mr.DiffRefs.HeadSha,
		start: mr.DiffRefs.StartSha,
	}
	p.mu.Unlock()

	var author string
	if mr.Author != nil {
		author = mr.Author.Username
	}
	return &vcs.PullRequest{
		Number:      int(mr.IID),
		Title:       mr.Title,
		Description: mr.Description,
		Author:      author,
		BaseBranch:  mr.TargetBranch,
		HeadBranch:  mr.SourceBranch,
		BaseSHA:     mr.DiffRefs.BaseSha,
		HeadSHA:     mr.DiffRefs.HeadSha,
		State:       mr.State,
		Draft:       mr.Draft,
		WebURL:      mr.WebURL,
	}, nil
}

// ListFiles returns the changed files of the merge request. GitLab ships no
// per-file stats, so additions and deletions are counted from the patch.
func (p *Provider) ListFiles(ctx context.Context, repo vcs.Repo, number int) ([]core.FileChange, error) {
	opts := &gl.ListMergeRequestDiffsOptions{
		ListOptions: gl.ListOptions{PerPage: 100},
	}

	var all []core.FileChange
	for {
		diffs, resp, err := p.api.MergeRequests.ListMergeRequestDiffs(repo.String(), int64(number), opts, gl.WithContext(ctx))
		p.track(resp)
		if err != nil {
			return nil, fmt.Errorf("gitlab: failed to fetch MR diffs: %w", err)
		}

		for _, d := range diffs {
			all = append(all, fromDiff(d))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

func fromDiff(d *gl.MergeRequestDiff) core.FileChange {
	status := core.StatusModified
	path := d.NewPath
	switch {
	case d.NewFile:
		status = core.StatusAdded
	case d.DeletedFile:
		status = core.StatusRemoved
		path = d.OldPath
	case d.RenamedFile:
		status = core.StatusRenamed
	}

	additions, deletions := diffparse.CountLines(d.Diff)
	fc := core.NewFileChange(path, status, additions, deletions, d.Diff)
	if status == core.StatusRenamed {
		fc.PreviousPath = d.OldPath
	}
	return fc
}

// GetFileContent fetches the raw content of path at ref.
func (p *Provider) GetFileContent(ctx context.Context, repo vcs.Repo, path, ref string) (string, error) {
	raw, resp, err := p.api.RepositoryFiles.GetRawFile(repo.String(), path, &gl.GetRawFileOptions{
		Ref: gl.Ptr(ref),
	}, gl.WithContext(ctx))
	p.track(resp)
	if err != nil {
		return "", fmt.Errorf("gitlab: get %s@%s: %w", path, ref, wrapNotFound(err))
	}
	return string(raw), nil
}

// ListIssueComments lists the user notes of the merge request. System notes
// and notes attached to a diff position are left out.
func (p *Provider) ListIssueComments(ctx context.Context, repo vcs.Repo, number int) ([]vcs.Comment, error) {
	opts := &gl.ListMergeRequestNotesOptions{ListOptions: gl.ListOptions{PerPage: 100}}
	var all []vcs.Comment

	for {
		notes, resp, err := p.api.Notes.ListMergeRequestNotes(repo.String(), int64(number), opts, gl.WithContext(ctx))
		p.track(resp)
		if err != nil {
			return nil, fmt.Errorf("gitlab: list MR notes: %w", err)
		}
		for _, n := range notes {
			if n.System || n.Position != nil {
				continue
			}
			all = append(all, fromNote(n))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// CreateIssueComment posts a merge request note.
func (p *Provider) CreateIssueComment(ctx context.Context, repo vcs.Repo, number int, body string) (vcs.Comment, error) {
	n, resp, err := p.api.Notes.CreateMergeRequestNote(repo.String(), int64(number), &gl.CreateMergeRequestNoteOptions{
		Body: gl.Ptr(body),
	}, gl.WithContext(ctx))
	p.track(resp)
	if err != nil {
		return vcs.Comment{}, fmt.Errorf("gitlab: failed to post MR note: %w", err)
	}
	return fromNote(n), nil
}

// UpdateIssueComment replaces the body of a merge request note.
func (p *Provider) UpdateIssueComment(ctx context.Context, repo vcs.Repo, number int, id int64, body string) error {
	if err := p.updateNote(ctx, repo, number, id, body); err != nil {
		return fmt.Errorf("gitlab: update MR note %d: %w", id, err)
	}
	return nil
}

// DeleteIssueComment deletes a merge request note.
func (p *Provider) DeleteIssueComment(ctx context.Context, repo vcs.Repo, number int, id int64) error {
	resp, err := p.api.Notes.DeleteMergeRequestNote(repo.String(), int64(number), id, gl.WithContext(ctx))
	p.track(resp)
	if err != nil {
		return fmt.Errorf("gitlab: delete MR note %d: %w", id, wrapNotFound(err))
	}
	return nil
}

// ListReviewComments flattens the diff discussions of the merge request.
// Only notes positioned on a new_line count; replies point at the first
// note of their discussion.
func (p *Provider) ListReviewComments(ctx context.Context, repo vcs.Repo, number int) ([]vcs.Comment, error) {
	opts := &gl.ListMergeRequestDiscussionsOptions{PerPage: 100}
	var all []vcs.Comment

	for {
		discussions, resp, err := p.api.Discussions.ListMergeRequestDiscussions(repo.String(), int64(number), opts, gl.WithContext(ctx))
		p.track(resp)
		if err != nil {
			return nil, fmt.Errorf("gitlab: list MR discussions: %w", err)
		}
		for _, d := range discussions {
			all = append(all, fromDiscussion(d)...)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

func fromDiscussion(d *gl.Discussion) []vcs.Comment {
	var out []vcs.Comment
	var root int64
	for i, n := range d.Notes {
		if n == nil {
			continue
		}
		if i == 0 {
			root = n.ID
		}
		if n.System || n.Position == nil || n.Position.NewPath == "" || n.Position.NewLine <= 0 {
			continue
		}
		c := fromNote(n)
		c.Path = n.Position.NewPath
		c.Line = int(n.Position.NewLine)
		c.CommitID = n.Position.HeadSHA
		if n.ID != root {
			c.InReplyTo = root
		}
		out = append(out, c)
	}
	return out
}

// CreateReviewComment opens a diff discussion on the new side at nc.Line.
func (p *Provider) CreateReviewComment(ctx context.Context, repo vcs.Repo, number int, nc vcs.NewReviewComment) (vcs.Comment, error) {
	refs, err := p.refs(ctx, repo, number)
	if err != nil {
		return vcs.Comment{}, err
	}
	headSHA := refs.head
	if nc.CommitID != "" {
		headSHA = nc.CommitID
	}

	d, resp, err := p.api.Discussions.CreateMergeRequestDiscussion(repo.String(), int64(number), &gl.CreateMergeRequestDiscussionOptions{
		Body: gl.Ptr(nc.Body),
		Position: &gl.PositionOptions{
			BaseSHA:      gl.Ptr(refs.base),
			HeadSHA:      gl.Ptr(headSHA),
			StartSHA:     gl.Ptr(refs.start),
			PositionType: gl.Ptr("text"),
			NewPath:      gl.Ptr(nc.Path),
			OldPath:      gl.Ptr(nc.Path),
			NewLine:      gl.Ptr(int64(nc.Line)),
		},
	}, gl.WithContext(ctx))
	p.track(resp)
	if err != nil {
		return vcs.Comment{}, fmt.Errorf("gitlab: create discussion on %s:%d: %w", nc.Path, nc.Line, err)
	}

	c := vcs.Comment{Body: nc.Body, Path: nc.Path, Line: nc.Line, CommitID: headSHA}
	if len(d.Notes) > 0 && d.Notes[0] != nil {
		c.ID = d.Notes[0].ID
		c.Author = d.Notes[0].Author.Username
	}
	return c, nil
}

// UpdateReviewComment replaces the body of a discussion note.
func (p *Provider) UpdateReviewComment(ctx context.Context, repo vcs.Repo, number int, id int64, body string) error {
	if err := p.updateNote(ctx, repo, number, id, body); err != nil {
		return fmt.Errorf("gitlab: update discussion note %d: %w", id, err)
	}
	return nil
}

func (p *Provider) updateNote(ctx context.Context, repo vcs.Repo, number int, id int64, body string) error {
	_, resp, err := p.api.Notes.UpdateMergeRequestNote(repo.String(), int64(number), id, &gl.UpdateMergeRequestNoteOptions{
		Body: gl.Ptr(body),
	}, gl.WithContext(ctx))
	p.track(resp)
	return err
}

// RateLimit reports the quota seen on the last response. GitLab has no
// quota endpoint; before any call the limit is unknown and reported as zero.
func (p *Provider) RateLimit(context.Context) (vcs.RateLimit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate, nil
}

// FormatSuggestionBlock returns a GitLab-native suggestion code block.
func (p *Provider) FormatSuggestionBlock(code string) string {
	return "```suggestion:-0+0\n" + strings.TrimRight(code, "\n") + "\n```"
}

func (p *Provider) refs(ctx context.Context, repo vcs.Repo, number int) (diffRefs, error) {
	p.mu.Lock()
	refs, ok := p.diffRefs[refKey(repo, number)]
	p.mu.Unlock()
	if ok && refs.base != "" {
		return refs, nil
	}
	if _, err := p.GetPullRequest(ctx, repo, number); err != nil {
		return diffRefs{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.diffRefs[refKey(repo, number)], nil
}

func (p *Provider) track(resp *gl.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	h := resp.Header
	limit, err := strconv.Atoi(h.Get("RateLimit-Limit"))
	if err != nil {
		return
	}
	remaining, _ := strconv.Atoi(h.Get("RateLimit-Remaining"))
	rl := vcs.RateLimit{Limit: limit, Remaining: remaining}
	if reset, err := strconv.ParseInt(h.Get("RateLimit-Reset"), 10, 64); err == nil {
		rl.Reset = time.Unix(reset, 0)
	}

	p.mu.Lock()
	p.rate = rl
	p.mu.Unlock()
}

func refKey(repo vcs.Repo, number int) string {
	return repo.String() + "!" + strconv.Itoa(number)
}

func fromNote(n *gl.Note) vcs.Comment {
	return vcs.Comment{
		ID:     n.ID,
		Author: n.Author.Username,
		Body:   n.Body,
	}
}

func wrapNotFound(err error) error {
	var glErr *gl.ErrorResponse
	if errors.As(err, &glErr) && glErr.Response != nil && glErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", vcs.ErrNotFound, glErr.Message)
	}
	if errors.Is(err, gl.ErrNotFound) {
		return fmt.Errorf("%w: %v", vcs.ErrNotFound, err)
	}
	return err
}
