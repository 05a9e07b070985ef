package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/sanix-darker/prbot/internal/autofix"
	"github.com/sanix-darker/prbot/internal/comments"
	"github.com/sanix-darker/prbot/internal/config"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/diffparse"
	"github.com/sanix-darker/prbot/internal/provider"
	"github.com/sanix-darker/prbot/internal/rules"
	"github.com/sanix-darker/prbot/internal/vcs"
)

// RuleLoader loads the rule channels of the workspace.
type RuleLoader interface {
	LoadAll(customPath string) (rules.RuleSet, error)
}

// Publisher writes the review to the pull request.
type Publisher interface {
	Publish(ctx context.Context, repo vcs.Repo, pr *vcs.PullRequest, report comments.Report) (comments.Stats, error)
}

// Fixer applies eligible fixes to the working copy.
type Fixer interface {
	Fix(ctx context.Context, issues []core.Issue, branch string) ([]autofix.Result, error)
}

// Deps are the collaborators of a Pipeline. VCS, Workspace, Publisher and
// Fixer may be nil: a local run has no hosting platform and a dry run
// publishes nothing.
type Deps struct {
	Rules     RuleLoader
	Reviewer  provider.Reviewer
	VCS       vcs.Provider
	Workspace afero.Fs
	Publisher Publisher
	Fixer     Fixer
	Log       zerolog.Logger
}

// Pipeline runs one review: load rules and files, plan, review batch by
// batch, aggregate, fix, comment.
type Pipeline struct {
	opts config.Options
	deps Deps
	log  zerolog.Logger

	state State
	repo  vcs.Repo
	pr    *vcs.PullRequest
	// content caches the head version of each file for the run; removed,
	// binary and unreadable files map to "".
	content map[string]string
}

// NewPipeline creates a Pipeline. opts must come from config.Load.
func NewPipeline(opts config.Options, deps Deps) *Pipeline {
	return &Pipeline{
		opts:  opts,
		deps:  deps,
		log:   deps.Log.With().Str("component", "pipeline").Logger(),
		state: StateInit,
	}
}

// State returns the current state of the pipeline.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) transition(s State) {
	p.log.Debug().Str("from", string(p.state)).Str("to", string(s)).Msg("state")
	p.state = s
}

// Run reviews target. The returned error is nil unless the run could not
// tell which pull request to review, could not list its files or could not
// post the summary comment; failed AI calls and inline comments are logged
// and recovered.
func (p *Pipeline) Run(ctx context.Context, target Target) (*Result, error) {
	p.state = StateInit
	p.content = map[string]string{}
	p.repo = target.Repo

	pr, err := p.pullRequest(ctx, target)
	if err != nil {
		return nil, err
	}
	p.pr = pr
	res := &Result{PR: pr, Status: core.OutcomePassed}
	p.logRateLimit(ctx)

	ruleSet, err := p.deps.Rules.LoadAll(p.opts.RulesPath)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to load rules, reviewing without them")
		ruleSet = rules.RuleSet{}
	}
	p.transition(StateRulesLoaded)
	p.log.Info().Int("rules", ruleSet.Count()).Msg("rules loaded")
	if p.opts.SkipIfNoRules && ruleSet.Empty() {
		return p.skip(res, "no rules configured"), nil
	}

	files, err := p.files(ctx, target)
	if err != nil {
		return nil, err
	}
	res.TotalFiles = len(files)
	res.Files = p.filter(files)
	p.transition(StateFilesLoaded)
	p.log.Info().Int("changed", len(files)).Int("selected", len(res.Files)).Msg("files loaded")
	if len(res.Files) == 0 {
		res.Summary = "No files to review."
		return p.skip(res, "no files to review"), nil
	}

	paths := core.Paths(res.Files)
	applicable := rules.FilterForFiles(ruleSet.All(), paths)
	for _, r := range applicable {
		res.AppliedRules = append(res.AppliedRules, r.Name)
	}
	if len(applicable) == 0 && p.opts.SkipIfNoRules {
		return p.skip(res, "no rule applies to the changed files"), nil
	}

	prCtx := provider.PRContext{
		Title:       pr.Title,
		Description: pr.Description,
		BaseBranch:  pr.BaseBranch,
		HeadBranch:  pr.HeadBranch,
	}
	res.Plan = p.plan(ctx, res.Files, prCtx)
	p.transition(StatePlanned)

	var reviewable []core.FileChange
	for _, f := range res.Files {
		if f.Changes > p.opts.MaxChanges {
			p.log.Info().Str("file", f.Path).Int("changes", f.Changes).Msg("file too large, skipped from AI review")
			res.FilesReviewed++
			continue
		}
		reviewable = append(reviewable, f)
	}

	rc := provider.ReviewContext{PR: prCtx, Plan: res.Plan, Strictness: p.opts.Strictness}
	for _, b := range Plan(reviewable, p.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p.transition(StateReviewing)
		p.log.Info().Int("batch", b.Index+1).Int("of", b.Total).Strs("files", b.Paths()).Msg("reviewing batch")

		issues, reviewed := p.reviewBatch(ctx, b, applicable, rc)
		res.Issues = append(res.Issues, issues...)
		res.FilesReviewed += reviewed
	}
	p.enrich(res.Issues)

	res.Status = core.OutcomeFor(res.Issues)
	res.Summary = p.summary(ctx, res, prCtx)
	p.transition(StateAggregated)
	p.log.Info().
		Str("status", string(res.Status)).
		Int("issues", len(res.Issues)).
		Int("files_reviewed", res.FilesReviewed).
		Msg("review aggregated")

	if p.opts.AutoFix && p.deps.Fixer != nil {
		p.transition(StateAutoFixing)
		fixes, err := p.deps.Fixer.Fix(ctx, res.Issues, pr.HeadBranch)
		res.Fixes = fixes
		if err != nil {
			p.log.Warn().Err(err).Msg("auto-fix incomplete")
		}
	}

	if !p.opts.DryRun && p.deps.Publisher != nil {
		stats, err := p.deps.Publisher.Publish(ctx, p.repo, pr, p.report(res))
		res.Comments = stats
		if err != nil {
			res.State = p.state
			return res, err
		}
		p.transition(StateCommented)
	}

	p.transition(StateDone)
	res.State = StateDone
	return res, nil
}

func (p *Pipeline) skip(res *Result, reason string) *Result {
	p.transition(StateSkipped)
	p.log.Info().Str("reason", reason).Msg("review skipped")
	res.Skipped = true
	res.SkipReason = reason
	res.Status = core.OutcomePassed
	res.State = StateSkipped
	return res
}

func (p *Pipeline) pullRequest(ctx context.Context, t Target) (*vcs.PullRequest, error) {
	if t.PR != nil {
		return t.PR, nil
	}
	if p.deps.VCS == nil || t.Number <= 0 || t.Repo.Owner == "" {
		return nil, ErrNoPullRequest
	}
	pr, err := p.deps.VCS.GetPullRequest(ctx, t.Repo, t.Number)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPullRequest, err)
	}
	return pr, nil
}

func (p *Pipeline) files(ctx context.Context, t Target) ([]core.FileChange, error) {
	if t.PR != nil || p.deps.VCS == nil {
		return t.Files, nil
	}
	files, err := p.deps.VCS.ListFiles(ctx, t.Repo, p.pr.Number)
	if err != nil {
		return nil, fmt.Errorf("list files of PR #%d: %w", p.pr.Number, err)
	}
	return files, nil
}

func (p *Pipeline) logRateLimit(ctx context.Context) {
	if p.deps.VCS == nil {
		return
	}
	rl, err := p.deps.VCS.RateLimit(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("rate limit unavailable")
		return
	}
	ev := p.log.Debug()
	if rl.Low() {
		ev = p.log.Warn()
	}
	ev.Int("remaining", rl.Remaining).Int("limit", rl.Limit).Time("reset", rl.Reset).Msg("API rate limit")
}

// filter applies the include and exclude globs, then the max files cap.
func (p *Pipeline) filter(files []core.FileChange) []core.FileChange {
	var out []core.FileChange
	for _, f := range files {
		if !matchAny(p.opts.Include, f.Path) {
			continue
		}
		if matchAny(p.opts.Exclude, f.Path) {
			p.log.Debug().Str("file", f.Path).Msg("excluded")
			continue
		}
		out = append(out, f)
	}
	if len(out) > p.opts.MaxFiles {
		p.log.Warn().Int("files", len(out)).Int("max_files", p.opts.MaxFiles).Msg("too many files, reviewing the first ones only")
		out = out[:p.opts.MaxFiles]
	}
	return out
}

func matchAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		if rules.Match(pat, path) {
			return true
		}
	}
	return false
}

func (p *Pipeline) plan(ctx context.Context, files []core.FileChange, pr provider.PRContext) core.PRPlan {
	plan, err := p.deps.Reviewer.GeneratePlan(ctx, files, pr)
	if err != nil {
		p.log.Warn().Err(err).Msg("plan generation failed, using fallback plan")
		return FallbackPlan(files)
	}
	if plan.IsEmpty() {
		return FallbackPlan(files)
	}
	return plan
}

// reviewBatch reviews the batch in one call and, when that fails, each of
// its files on its own. It returns the issues found and how many files were
// reviewed successfully.
func (p *Pipeline) reviewBatch(ctx context.Context, b Batch, applicable []rules.Rule, rc provider.ReviewContext) ([]core.Issue, int) {
	inputs := make([]provider.FileInput, 0, len(b.Files))
	for _, f := range b.Files {
		inputs = append(inputs, provider.FileInput{Change: f, Content: p.fileContent(ctx, f)})
	}

	rc.Rules = rules.FilterForFiles(applicable, b.Paths())
	issues, err := p.deps.Reviewer.ReviewBatch(ctx, inputs, rc)
	if err == nil {
		return issues, len(b.Files)
	}
	p.log.Warn().Err(err).Int("batch", b.Index+1).Msg("batch review failed, reviewing files one by one")

	var out []core.Issue
	reviewed := 0
	for _, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		rc.Rules = rules.FilterForFiles(applicable, []string{in.Change.Path})
		found, err := p.deps.Reviewer.ReviewSingle(ctx, in, rc)
		if err != nil {
			p.log.Warn().Err(err).Str("file", in.Change.Path).Msg("file review failed")
			continue
		}
		out = append(out, found...)
		reviewed++
	}
	return out, reviewed
}

// fileContent returns the head version of f, from the working copy when
// it has the file and from the hosting platform otherwise.
func (p *Pipeline) fileContent(ctx context.Context, f core.FileChange) string {
	if c, ok := p.content[f.Path]; ok {
		return c
	}
	content := p.loadContent(ctx, f)
	p.content[f.Path] = content
	return content
}

func (p *Pipeline) loadContent(ctx context.Context, f core.FileChange) string {
	if f.Removed() || diffparse.IsBinaryPath(f.Path) {
		return ""
	}
	if p.deps.Workspace != nil {
		if raw, err := afero.ReadFile(p.deps.Workspace, f.Path); err == nil {
			return string(raw)
		}
	}
	if p.deps.VCS == nil || p.pr.HeadSHA == "" {
		return ""
	}
	content, err := p.deps.VCS.GetFileContent(ctx, p.repo, f.Path, p.pr.HeadSHA)
	if err != nil {
		ev := p.log.Warn()
		if errors.Is(err, vcs.ErrNotFound) {
			ev = p.log.Debug()
		}
		ev.Err(err).Str("file", f.Path).Msg("file content unavailable")
		return ""
	}
	return content
}

// enrich records the source text at each issue line so auto-fix can detect
// content that moved since the review.
func (p *Pipeline) enrich(issues []core.Issue) {
	split := map[string][]string{}
	for i := range issues {
		is := &issues[i]
		content, ok := p.content[is.File]
		if !ok || content == "" || is.Line <= 0 {
			continue
		}
		lines, ok := split[is.File]
		if !ok {
			lines = strings.Split(content, "\n")
			split[is.File] = lines
		}
		if is.Line <= len(lines) {
			is.OriginalLine = strings.TrimRight(lines[is.Line-1], "\r")
		}
	}
}

func (p *Pipeline) summary(ctx context.Context, res *Result, pr provider.PRContext) string {
	summary, err := p.deps.Reviewer.GenerateSummary(ctx, res.Issues, provider.SummaryContext{
		PR:            pr,
		Plan:          res.Plan,
		FilesReviewed: res.FilesReviewed,
		TotalFiles:    res.TotalFiles,
		AppliedRules:  res.AppliedRules,
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("summary generation failed, using templated summary")
		return FallbackSummary(res)
	}
	return summary
}

func (p *Pipeline) report(res *Result) comments.Report {
	return comments.Report{
		Status:        res.Status,
		Summary:       res.Summary,
		Issues:        res.Issues,
		Files:         res.Files,
		FilesReviewed: res.FilesReviewed,
		TotalFiles:    res.TotalFiles,
		AppliedRules:  res.AppliedRules,
		Fixes:         res.Fixes,
	}
}
