package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/prbot/internal/autofix"
	"github.com/sanix-darker/prbot/internal/comments"
	"github.com/sanix-darker/prbot/internal/config"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/provider"
	"github.com/sanix-darker/prbot/internal/rules"
	"github.com/sanix-darker/prbot/internal/vcs"
	"github.com/sanix-darker/prbot/internal/vcs/vcstest"
)

// mockReviewer implements provider.Reviewer with scripted answers.
type mockReviewer struct {
	mu sync.Mutex

	batch   func(paths []string) ([]core.Issue, error)
	single  func(path string) ([]core.Issue, error)
	plan    core.PRPlan
	planErr error
	summary string
	sumErr  error

	batchCalls  [][]string
	singleCalls []string
	contents    map[string]string
	rules       map[string][]string
}

func newMockReviewer() *mockReviewer {
	return &mockReviewer{
		plan:     core.PRPlan{Overview: "AI plan"},
		summary:  "AI summary",
		contents: map[string]string{},
		rules:    map[string][]string{},
	}
}

func ruleIDs(rs []rules.Rule) []string {
	var ids []string
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}

func (m *mockReviewer) ReviewSingle(_ context.Context, file provider.FileInput, rc provider.ReviewContext) ([]core.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.singleCalls = append(m.singleCalls, file.Change.Path)
	m.contents[file.Change.Path] = file.Content
	m.rules[file.Change.Path] = ruleIDs(rc.Rules)
	if m.single == nil {
		return nil, nil
	}
	return m.single(file.Change.Path)
}

func (m *mockReviewer) ReviewBatch(_ context.Context, files []provider.FileInput, rc provider.ReviewContext) ([]core.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Change.Path)
		m.contents[f.Change.Path] = f.Content
	}
	m.batchCalls = append(m.batchCalls, paths)
	m.rules[strings.Join(paths, ",")] = ruleIDs(rc.Rules)
	if m.batch == nil {
		return nil, nil
	}
	return m.batch(paths)
}

func (m *mockReviewer) GeneratePlan(context.Context, []core.FileChange, provider.PRContext) (core.PRPlan, error) {
	return m.plan, m.planErr
}

func (m *mockReviewer) GenerateSummary(context.Context, []core.Issue, provider.SummaryContext) (string, error) {
	return m.summary, m.sumErr
}

type mockRules struct {
	set rules.RuleSet
	err error
}

func (m mockRules) LoadAll(string) (rules.RuleSet, error) {
	return m.set, m.err
}

type mockFixer struct {
	issues []core.Issue
	branch string
}

func (m *mockFixer) Fix(_ context.Context, issues []core.Issue, branch string) ([]autofix.Result, error) {
	m.issues = issues
	m.branch = branch
	return []autofix.Result{{File: "app.go", Applied: true}}, nil
}

var repo = vcs.Repo{Owner: "acme", Name: "app"}

const appPatch = "@@ -1,2 +1,3 @@\n package app\n+var x = 1\n func main() {}\n"

func testOptions() config.Options {
	return config.Options{
		Provider:        "mock",
		Strictness:      config.StrictnessNormal,
		Include:         []string{"**/*"},
		Exclude:         config.DefaultExclude,
		MaxFiles:        50,
		BatchSize:       5,
		MaxChanges:      1000,
		CommentStyle:    config.CommentInline,
		InlineSeverity:  core.SeverityWarning,
		UpdateExisting:  true,
		AutoFixSeverity: core.SeverityWarning,
		RequestTimeout:  time.Minute,
	}
}

func testPR() *vcs.PullRequest {
	return &vcs.PullRequest{Number: 7, Title: "Change", HeadBranch: "feature", BaseBranch: "main", HeadSHA: "head"}
}

func newTestPipeline(opts config.Options, fake *vcstest.Fake, rev *mockReviewer, rs rules.RuleSet) *Pipeline {
	rec := comments.Reconciler{MinSeverity: opts.InlineSeverity, UpdateExisting: opts.UpdateExisting}
	return NewPipeline(opts, Deps{
		Rules:     mockRules{set: rs},
		Reviewer:  rev,
		VCS:       fake,
		Publisher: comments.NewPublisher(fake, rec, opts.InlineComments(), zerolog.Nop()),
		Log:       zerolog.Nop(),
	})
}

func numbered(n int) []core.FileChange {
	files := make([]core.FileChange, n)
	for i := range files {
		files[i] = core.NewFileChange(fmt.Sprintf("f%d.go", i+1), core.StatusModified, 1, 0, appPatch)
	}
	return files
}

func errorAt(file string, line int) core.Issue {
	return core.Issue{Severity: core.SeverityError, Category: "bug", File: file, Line: line, Message: "bug in " + file}
}

func TestPipeline_ScenarioA_NoFiles(t *testing.T) {
	fake := vcstest.New(testPR())
	rev := newMockReviewer()
	p := newTestPipeline(testOptions(), fake, rev, rules.RuleSet{})

	res, err := p.Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)

	assert.Equal(t, 0, res.FilesReviewed)
	assert.Equal(t, core.OutcomePassed, res.Status)
	assert.Equal(t, "No files to review.", res.Summary)
	assert.True(t, res.Skipped)
	assert.Equal(t, StateSkipped, res.State)
	assert.Equal(t, StateSkipped, p.State())
	assert.Empty(t, rev.batchCalls)
	assert.Empty(t, fake.IssueComments)
}

func TestPipeline_ScenarioB_OneIssue(t *testing.T) {
	fake := vcstest.New(testPR(), core.NewFileChange("app.go", core.StatusModified, 1, 0, appPatch))
	rev := newMockReviewer()
	rev.batch = func([]string) ([]core.Issue, error) {
		return []core.Issue{errorAt("app.go", 2)}, nil
	}
	p := newTestPipeline(testOptions(), fake, rev, rules.RuleSet{})

	res, err := p.Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeNeedsAttention, res.Status)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.FilesReviewed)
	assert.Equal(t, "AI summary", res.Summary)
	require.Len(t, fake.ReviewComments, 1)
	assert.Equal(t, "app.go", fake.ReviewComments[0].Path)
	assert.Equal(t, 2, fake.ReviewComments[0].Line)
	assert.Equal(t, "head", fake.ReviewComments[0].CommitID)
	require.Len(t, fake.IssueComments, 1)
	assert.Equal(t, 1, fake.Count("CreateIssueComment"))
	assert.Equal(t, 1, res.Comments.Created)
}

func TestPipeline_ScenarioC_BatchFallback(t *testing.T) {
	fake := vcstest.New(testPR(), numbered(6)...)
	rev := newMockReviewer()
	rev.batch = func(paths []string) ([]core.Issue, error) {
		if paths[0] == "f3.go" {
			return nil, errors.New("provider exploded")
		}
		return []core.Issue{errorAt(paths[0], 2)}, nil
	}
	rev.single = func(path string) ([]core.Issue, error) {
		return []core.Issue{errorAt(path, 2)}, nil
	}
	opts := testOptions()
	opts.BatchSize = 2
	p := newTestPipeline(opts, fake, rev, rules.RuleSet{})

	res, err := p.Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"f1.go", "f2.go"}, {"f3.go", "f4.go"}, {"f5.go", "f6.go"}}, rev.batchCalls)
	assert.Equal(t, []string{"f3.go", "f4.go"}, rev.singleCalls)

	var files []string
	for _, is := range res.Issues {
		files = append(files, is.File)
	}
	assert.Equal(t, []string{"f1.go", "f3.go", "f4.go", "f5.go"}, files)
	assert.Equal(t, 6, res.FilesReviewed)
	assert.Equal(t, StateDone, res.State)
}

func TestPipeline_FallbackPartialFailure(t *testing.T) {
	fake := vcstest.New(testPR(), numbered(3)...)
	rev := newMockReviewer()
	rev.batch = func([]string) ([]core.Issue, error) { return nil, errors.New("too long") }
	rev.single = func(path string) ([]core.Issue, error) {
		if path == "f2.go" {
			return nil, errors.New("timeout")
		}
		return []core.Issue{errorAt(path, 2)}, nil
	}
	p := newTestPipeline(testOptions(), fake, rev, rules.RuleSet{})

	res, err := p.Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)
	assert.Len(t, res.Issues, 2)
	assert.Equal(t, 2, res.FilesReviewed)
	assert.Equal(t, 3, res.TotalFiles)
}

func TestPipeline_ScenarioD_RerunUpdatesSummary(t *testing.T) {
	fake := vcstest.New(testPR(), core.NewFileChange("app.go", core.StatusModified, 1, 0, appPatch))
	rev := newMockReviewer()
	rev.batch = func([]string) ([]core.Issue, error) {
		return []core.Issue{errorAt("app.go", 2)}, nil
	}
	ctx := context.Background()

	first, err := newTestPipeline(testOptions(), fake, rev, rules.RuleSet{}).Run(ctx, Target{Repo: repo, Number: 7})
	require.NoError(t, err)
	require.Len(t, fake.IssueComments, 1)
	summaryID := fake.IssueComments[0].ID

	rev.summary = "AI summary, second pass"
	second, err := newTestPipeline(testOptions(), fake, rev, rules.RuleSet{}).Run(ctx, Target{Repo: repo, Number: 7})
	require.NoError(t, err)

	assert.Equal(t, "created", first.Comments.SummaryAction)
	assert.Equal(t, "updated", second.Comments.SummaryAction)
	assert.Equal(t, summaryID, second.Comments.SummaryID)
	assert.Len(t, fake.IssueComments, 1, "no duplicate summary")
	assert.Contains(t, fake.IssueComments[0].Body, "second pass")
	assert.Len(t, fake.ReviewComments, 1, "no duplicate inline comment")
	assert.Equal(t, 1, fake.Count("CreateIssueComment"))
}

func TestPipeline_NoPullRequest(t *testing.T) {
	p := newTestPipeline(testOptions(), vcstest.New(nil), newMockReviewer(), rules.RuleSet{})

	_, err := p.Run(context.Background(), Target{Repo: repo})
	assert.ErrorIs(t, err, ErrNoPullRequest)

	_, err = p.Run(context.Background(), Target{Repo: repo, Number: 9})
	assert.ErrorIs(t, err, ErrNoPullRequest)
	assert.ErrorIs(t, err, vcs.ErrNotFound)
}

func TestPipeline_ListFilesFailure(t *testing.T) {
	fake := vcstest.New(testPR())
	fake.Fail["ListFiles"] = errors.New("502")

	_, err := newTestPipeline(testOptions(), fake, newMockReviewer(), rules.RuleSet{}).Run(context.Background(), Target{Repo: repo, Number: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list files")
}

func TestPipeline_SkipIfNoRules(t *testing.T) {
	opts := testOptions()
	opts.SkipIfNoRules = true
	fake := vcstest.New(testPR(), numbered(1)...)
	rev := newMockReviewer()

	res, err := newTestPipeline(opts, fake, rev, rules.RuleSet{}).Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "no rules configured", res.SkipReason)
	assert.Zero(t, fake.Count("ListFiles"))

	scoped := rules.RuleSet{Rules: []rules.Rule{{ID: "ts", Name: "TypeScript", Kind: rules.KindPathScoped, Globs: []string{"*.ts"}}}}
	res, err = newTestPipeline(opts, fake, rev, scoped).Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "no rule applies to the changed files", res.SkipReason)
	assert.Empty(t, rev.batchCalls)
	assert.Empty(t, fake.IssueComments)
}

func TestPipeline_RulesPerBatch(t *testing.T) {
	fake := vcstest.New(testPR(),
		core.NewFileChange("web/a.ts", core.StatusModified, 1, 0, appPatch),
		core.NewFileChange("api/b.go", core.StatusModified, 1, 0, appPatch),
	)
	rs := rules.RuleSet{
		Rules: []rules.Rule{
			{ID: "ts", Name: "TypeScript", Kind: rules.KindPathScoped, Globs: []string{"*.ts"}, Order: 0},
			{ID: "py", Name: "Python", Kind: rules.KindPathScoped, Globs: []string{"*.py"}, Order: 1},
		},
		Agents: &rules.Rule{ID: "agents", Name: "AGENTS.md", Kind: rules.KindAlways, Order: 2},
	}
	rev := newMockReviewer()
	rev.batch = func([]string) ([]core.Issue, error) { return nil, errors.New("fail") }
	opts := testOptions()
	opts.BatchSize = 2

	res, err := newTestPipeline(opts, fake, rev, rs).Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)

	assert.Equal(t, []string{"TypeScript", "AGENTS.md"}, res.AppliedRules)
	assert.Equal(t, []string{"ts", "agents"}, rev.rules["web/a.ts,api/b.go"])
	assert.Equal(t, []string{"ts", "agents"}, rev.rules["web/a.ts"])
	assert.Equal(t, []string{"agents"}, rev.rules["api/b.go"])
}

func TestPipeline_Filtering(t *testing.T) {
	big := core.NewFileChange("big.go", core.StatusModified, 900, 200, appPatch)
	fake := vcstest.New(testPR(),
		core.NewFileChange("src/a.go", core.StatusModified, 1, 0, appPatch),
		core.NewFileChange("vendor/lib/x.go", core.StatusModified, 1, 0, appPatch),
		core.NewFileChange("docs/readme.md", core.StatusModified, 1, 0, appPatch),
		core.NewFileChange("src/b.go", core.StatusModified, 1, 0, appPatch),
		core.NewFileChange("src/c.go", core.StatusModified, 1, 0, appPatch),
		big,
	)
	opts := testOptions()
	opts.Include = []string{"**/*.go"}
	opts.MaxFiles = 4
	rev := newMockReviewer()

	res, err := newTestPipeline(opts, fake, rev, rules.RuleSet{}).Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)

	assert.Equal(t, []string{"src/a.go", "src/b.go", "src/c.go", "big.go"}, core.Paths(res.Files))
	assert.Equal(t, [][]string{{"src/a.go", "src/b.go", "src/c.go"}}, rev.batchCalls, "big.go exceeds max_changes")
	assert.Equal(t, 4, res.FilesReviewed)
	assert.Equal(t, 6, res.TotalFiles)
}

func TestPipeline_Fallbacks(t *testing.T) {
	fake := vcstest.New(testPR(), core.NewFileChange("app.go", core.StatusModified, 1, 0, appPatch))
	rev := newMockReviewer()
	rev.planErr = errors.New("plan failed")
	rev.sumErr = errors.New("summary failed")
	rev.batch = func([]string) ([]core.Issue, error) {
		return []core.Issue{errorAt("app.go", 2)}, nil
	}

	res, err := newTestPipeline(testOptions(), fake, rev, rules.RuleSet{}).Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)

	assert.True(t, res.Plan.Fallback)
	assert.Equal(t, "Reviewed 1 of 1 files. Found 1 issue: 1 error.", res.Summary)
	assert.Contains(t, fake.IssueComments[0].Body, "Found 1 issue")
}

func TestPipeline_EmptyPlanUsesFallback(t *testing.T) {
	fake := vcstest.New(testPR(), numbered(1)...)
	rev := newMockReviewer()
	rev.plan = core.PRPlan{}

	res, err := newTestPipeline(testOptions(), fake, rev, rules.RuleSet{}).Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)
	assert.True(t, res.Plan.Fallback)
}

func TestPipeline_ContentSourcesAndEnrichment(t *testing.T) {
	removed := core.NewFileChange("gone.go", core.StatusRemoved, 0, 3, "@@ -1,3 +0,0 @@\n-a\n-b\n-c\n")
	fake := vcstest.New(testPR(),
		core.NewFileChange("local.go", core.StatusModified, 1, 0, appPatch),
		core.NewFileChange("remote.go", core.StatusModified, 1, 0, appPatch),
		removed,
	)
	fake.Contents["local.go"] = "stale remote copy"
	fake.Contents["remote.go"] = "package app\nvar y = 2\nfunc main() {}\n"

	ws := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(ws, "local.go", []byte("package app\r\nvar x = 1\r\nfunc main() {}\r\n"), 0o644))

	rev := newMockReviewer()
	rev.batch = func([]string) ([]core.Issue, error) {
		return []core.Issue{errorAt("local.go", 2), errorAt("remote.go", 2), errorAt("remote.go", 99)}, nil
	}

	opts := testOptions()
	opts.DryRun = true
	p := NewPipeline(opts, Deps{
		Rules:     mockRules{},
		Reviewer:  rev,
		VCS:       fake,
		Workspace: ws,
		Publisher: comments.NewPublisher(fake, comments.Reconciler{}, true, zerolog.Nop()),
		Log:       zerolog.Nop(),
	})

	res, err := p.Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)

	assert.Contains(t, rev.contents["local.go"], "var x = 1")
	assert.Equal(t, fake.Contents["remote.go"], rev.contents["remote.go"])
	assert.Equal(t, "", rev.contents["gone.go"])
	assert.Equal(t, 1, fake.Count("GetFileContent"), "local copy wins, removed files are not fetched")

	require.Len(t, res.Issues, 3)
	assert.Equal(t, "var x = 1", res.Issues[0].OriginalLine)
	assert.Equal(t, "var y = 2", res.Issues[1].OriginalLine)
	assert.Equal(t, "", res.Issues[2].OriginalLine)

	assert.Empty(t, fake.IssueComments, "dry run")
	assert.Empty(t, fake.ReviewComments)
	assert.Equal(t, StateDone, res.State)
}

func TestPipeline_SummaryPostFailure(t *testing.T) {
	fake := vcstest.New(testPR(), numbered(1)...)
	fake.Fail["CreateIssueComment"] = errors.New("forbidden")

	res, err := newTestPipeline(testOptions(), fake, newMockReviewer(), rules.RuleSet{}).Run(context.Background(), Target{Repo: repo, Number: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, comments.ErrSummaryPost)
	require.NotNil(t, res)
	assert.Equal(t, StateAggregated, res.State)
}

func TestPipeline_AutoFix(t *testing.T) {
	fake := vcstest.New(testPR(), core.NewFileChange("app.go", core.StatusModified, 1, 0, appPatch))
	rev := newMockReviewer()
	rev.batch = func([]string) ([]core.Issue, error) {
		return []core.Issue{errorAt("app.go", 2)}, nil
	}
	fixer := &mockFixer{}
	opts := testOptions()
	opts.AutoFix = true

	p := newTestPipeline(opts, fake, rev, rules.RuleSet{})
	p.deps.Fixer = fixer

	res, err := p.Run(context.Background(), Target{Repo: repo, Number: 7})
	require.NoError(t, err)
	assert.Equal(t, "feature", fixer.branch)
	assert.Len(t, fixer.issues, 1)
	assert.Equal(t, 1, res.FixesApplied())
	assert.Contains(t, fake.IssueComments[0].Body, "Auto-fixes applied")
}

func TestPipeline_LocalTarget(t *testing.T) {
	rev := newMockReviewer()
	opts := testOptions()
	opts.DryRun = true
	p := NewPipeline(opts, Deps{Rules: mockRules{}, Reviewer: rev, Log: zerolog.Nop()})

	pr := &vcs.PullRequest{HeadBranch: "HEAD", BaseBranch: "main"}
	res, err := p.Run(context.Background(), Target{PR: pr, Files: numbered(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesReviewed)
	assert.Len(t, rev.batchCalls, 1)
}
