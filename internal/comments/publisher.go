package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sanix-darker/prbot/internal/vcs"
)

// ErrSummaryPost is returned when the summary comment could not be written.
var ErrSummaryPost = errors.New("comments: summary comment not posted")

// Stats counts what Publish did.
type Stats struct {
	Created   int
	Updated   int
	Skipped   int
	Failed    int
	Deleted   int
	SummaryID int64
	// SummaryAction is "created", "updated" or "unchanged".
	SummaryAction string
}

// Publisher writes a review to a pull request.
type Publisher struct {
	vcs        vcs.Provider
	reconciler Reconciler
	inline     bool
	log        zerolog.Logger
}

// NewPublisher creates a Publisher. With inline false only the summary
// comment is written.
func NewPublisher(p vcs.Provider, rec Reconciler, inline bool, log zerolog.Logger) *Publisher {
	if rec.Suggest == nil {
		rec.Suggest = p.FormatSuggestionBlock
	}
	return &Publisher{vcs: p, reconciler: rec, inline: inline, log: log}
}

// Publish posts review comments, then upserts the summary comment. Review
// comment failures are logged and counted; a summary failure is returned
// wrapped in ErrSummaryPost.
func (p *Publisher) Publish(ctx context.Context, repo vcs.Repo, pr *vcs.PullRequest, report Report) (Stats, error) {
	var stats Stats
	if p.inline {
		p.publishInline(ctx, repo, pr, report, &stats)
	}

	if err := p.upsertSummary(ctx, repo, pr.Number, FormatSummary(report), &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (p *Publisher) publishInline(ctx context.Context, repo vcs.Repo, pr *vcs.PullRequest, report Report, stats *Stats) {
	existing, err := p.vcs.ListReviewComments(ctx, repo, pr.Number)
	if err != nil {
		p.log.Warn().Err(err).Msg("cannot list review comments, inline comments skipped")
		return
	}

	plan := p.reconciler.Reconcile(report.Issues, report.Files, existing)
	stats.Skipped = len(plan.ToSkip)
	p.log.Debug().
		Int("create", len(plan.ToCreate)).
		Int("update", len(plan.ToUpdate)).
		Int("skip", len(plan.ToSkip)).
		Int("issues", plan.Inline()).
		Msg("inline comments reconciled")

	for _, d := range plan.ToCreate {
		_, err := p.vcs.CreateReviewComment(ctx, repo, pr.Number, vcs.NewReviewComment{
			Path:     d.File,
			Line:     d.Line,
			Body:     d.Body,
			CommitID: pr.HeadSHA,
		})
		if err != nil {
			stats.Failed++
			p.log.Warn().Err(err).Str("file", d.File).Int("line", d.Line).Msg("failed to post inline comment")
			continue
		}
		stats.Created++
	}

	for _, d := range plan.ToUpdate {
		if err := p.vcs.UpdateReviewComment(ctx, repo, pr.Number, d.Existing.ID, d.Body); err != nil {
			stats.Failed++
			p.log.Warn().Err(err).Str("file", d.File).Int("line", d.Line).Msg("failed to update inline comment")
			continue
		}
		stats.Updated++
	}
}

// upsertSummary keeps exactly one summary comment: the oldest bot summary is
// updated, newer duplicates are deleted, and one is created when none exist.
func (p *Publisher) upsertSummary(ctx context.Context, repo vcs.Repo, number int, body string, stats *Stats) error {
	existing, err := p.vcs.ListIssueComments(ctx, repo, number)
	if err != nil {
		p.log.Warn().Err(err).Msg("cannot list comments, creating a new summary")
		existing = nil
	}

	var summaries []vcs.Comment
	for _, c := range existing {
		if IsBotComment(c.Body, c.Author, SummaryMarker, p.reconciler.BotLogin) {
			summaries = append(summaries, c)
		}
	}

	if len(summaries) == 0 {
		c, err := p.vcs.CreateIssueComment(ctx, repo, number, body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSummaryPost, err)
		}
		stats.SummaryID = c.ID
		stats.SummaryAction = "created"
		return nil
	}

	keep := summaries[0]
	for _, c := range summaries[1:] {
		if c.ID < keep.ID {
			keep = c
		}
	}
	for _, c := range summaries {
		if c.ID == keep.ID {
			continue
		}
		if err := p.vcs.DeleteIssueComment(ctx, repo, number, c.ID); err != nil {
			p.log.Warn().Err(err).Int64("comment_id", c.ID).Msg("failed to delete duplicate summary")
			continue
		}
		stats.Deleted++
	}

	stats.SummaryID = keep.ID
	if strings.TrimSpace(keep.Body) == strings.TrimSpace(body) {
		stats.SummaryAction = "unchanged"
		return nil
	}
	if err := p.vcs.UpdateIssueComment(ctx, repo, number, keep.ID, body); err != nil {
		return fmt.Errorf("%w: %v", ErrSummaryPost, err)
	}
	stats.SummaryAction = "updated"
	return nil
}
