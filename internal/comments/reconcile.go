package comments

import (
	"sort"
	"strings"

	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/diffparse"
	"github.com/sanix-darker/prbot/internal/vcs"
)

// Skip reasons.
const (
	ReasonBelowSeverity = "below_severity"
	ReasonNoLine        = "no_line"
	ReasonNoPatch       = "no_patch"
	ReasonNotInDiff     = "not_in_diff"
	ReasonUnchanged     = "unchanged"
	ReasonExisting      = "existing"
)

// Location is a new-file line of a changed file.
type Location struct {
	File string
	Line int
}

// Draft is a review comment to create, or to update when Existing is set.
type Draft struct {
	Location
	Body     string
	Issues   []core.Issue
	Existing *vcs.Comment
}

// Skipped are issues left out of inline placement. They still appear in the
// summary comment.
type Skipped struct {
	Location
	Issues []core.Issue
	Reason string
}

// Plan is the outcome of Reconcile.
type Plan struct {
	ToCreate []Draft
	ToUpdate []Draft
	ToSkip   []Skipped
}

// Reconciler maps issues onto diff locations and decides, for each one,
// whether a review comment is created, updated or left alone.
type Reconciler struct {
	MinSeverity    core.Severity
	UpdateExisting bool
	BotLogin       string
	// Suggest renders an exact replacement; DefaultSuggestion when nil.
	Suggest func(code string) string
}

// Reconcile groups inline-eligible issues by (file, line) and matches them
// against the bot's existing review comments. Comments by anyone else are
// ignored.
func (r Reconciler) Reconcile(issues []core.Issue, files []core.FileChange, existing []vcs.Comment) Plan {
	var plan Plan

	valid := map[string]diffparse.LineSet{}
	for _, f := range files {
		if f.HasPatch() {
			valid[f.Path] = diffparse.ValidLines(f.Patch)
		} else {
			valid[f.Path] = nil
		}
	}

	sorted := make([]core.Issue, len(issues))
	copy(sorted, issues)
	core.SortIssues(sorted)

	var order []Location
	groups := map[Location][]core.Issue{}
	for _, is := range sorted {
		loc := Location{File: is.File, Line: is.Line}
		lines, known := valid[is.File]

		reason := ""
		switch {
		case !is.Severity.AtLeast(r.MinSeverity):
			reason = ReasonBelowSeverity
		case is.Line <= 0:
			reason = ReasonNoLine
		case !known || lines == nil:
			reason = ReasonNoPatch
		case !lines.Contains(is.Line):
			reason = ReasonNotInDiff
		}
		if reason != "" {
			plan.ToSkip = append(plan.ToSkip, Skipped{Location: loc, Issues: []core.Issue{is}, Reason: reason})
			continue
		}

		if _, ok := groups[loc]; !ok {
			order = append(order, loc)
		}
		groups[loc] = append(groups[loc], is)
	}

	previous := r.index(existing)
	for _, loc := range order {
		d := Draft{
			Location: loc,
			Issues:   groups[loc],
			Body:     FormatInline(groups[loc], r.Suggest),
		}

		prev, ok := previous[loc]
		switch {
		case !ok:
			plan.ToCreate = append(plan.ToCreate, d)
		case !r.UpdateExisting:
			plan.ToSkip = append(plan.ToSkip, Skipped{Location: loc, Issues: d.Issues, Reason: ReasonExisting})
		case strings.TrimSpace(prev.Body) == strings.TrimSpace(d.Body):
			plan.ToSkip = append(plan.ToSkip, Skipped{Location: loc, Issues: d.Issues, Reason: ReasonUnchanged})
		default:
			d.Existing = &prev
			plan.ToUpdate = append(plan.ToUpdate, d)
		}
	}

	return plan
}

// index maps each location to the oldest top-level bot comment posted there.
func (r Reconciler) index(existing []vcs.Comment) map[Location]vcs.Comment {
	bot := make([]vcs.Comment, 0, len(existing))
	for _, c := range existing {
		if c.InReplyTo != 0 || c.Line <= 0 {
			continue
		}
		if IsBotComment(c.Body, c.Author, InlineMarker, r.BotLogin) {
			bot = append(bot, c)
		}
	}
	sort.SliceStable(bot, func(a, b int) bool { return bot[a].ID < bot[b].ID })

	out := map[Location]vcs.Comment{}
	for _, c := range bot {
		loc := Location{File: c.Path, Line: c.Line}
		if _, ok := out[loc]; !ok {
			out[loc] = c
		}
	}
	return out
}

// Inline returns how many issues end up in a created or updated comment.
func (p Plan) Inline() int {
	n := 0
	for _, d := range p.ToCreate {
		n += len(d.Issues)
	}
	for _, d := range p.ToUpdate {
		n += len(d.Issues)
	}
	return n
}
