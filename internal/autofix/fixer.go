package autofix

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/spf13/afero"
)

// Committer records and publishes the fixed files. core.LocalRepo
// implements it.
type Committer interface {
	Commit(files []string, message string, author core.CommitAuthor) (string, error)
	Push(ctx context.Context, commit, branch, token string) error
}

// DefaultAuthor signs auto-fix commits.
var DefaultAuthor = core.CommitAuthor{
	Name:  "github-actions[bot]",
	Email: "41898282+github-actions[bot]@users.noreply.github.com",
}

// Fixer applies selected issues to files of a working copy. Paths are
// relative to the root of fs.
type Fixer struct {
	fs       afero.Fs
	selector Selector
	log      zerolog.Logger

	confirm   func(prompt string) bool
	preview   io.Writer
	committer Committer
	token     string
	author    core.CommitAuthor
}

// Option customizes a Fixer.
type Option func(*Fixer)

// WithConfirm asks before touching any file.
func WithConfirm(confirm func(prompt string) bool) Option {
	return func(f *Fixer) { f.confirm = confirm }
}

// WithPreview writes the diff of every fixed file to w.
func WithPreview(w io.Writer) Option {
	return func(f *Fixer) { f.preview = w }
}

// WithCommit commits applied fixes and pushes them with token.
func WithCommit(c Committer, token string, author core.CommitAuthor) Option {
	return func(f *Fixer) {
		f.committer = c
		f.token = token
		f.author = author
	}
}

// NewFixer creates a Fixer writing through fs.
func NewFixer(fs afero.Fs, selector Selector, log zerolog.Logger, opts ...Option) *Fixer {
	f := &Fixer{fs: fs, selector: selector, log: log, author: DefaultAuthor}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run applies issues file by file. A file is written only when its content
// changed; when the write fails every fix of that file is reported as not
// applied.
func (f *Fixer) Run(issues []core.Issue) []Result {
	var order []string
	byFile := map[string][]core.Issue{}
	for _, is := range issues {
		if _, ok := byFile[is.File]; !ok {
			order = append(order, is.File)
		}
		byFile[is.File] = append(byFile[is.File], is)
	}

	var results []Result
	for _, path := range order {
		results = append(results, f.fixFile(path, byFile[path])...)
	}
	return results
}

func (f *Fixer) fixFile(path string, issues []core.Issue) []Result {
	fail := func(msg string) []Result {
		out := make([]Result, 0, len(issues))
		for _, is := range issues {
			out = append(out, Result{File: path, Issue: is, Error: msg})
		}
		return out
	}

	info, err := f.fs.Stat(path)
	if err != nil {
		f.log.Warn().Err(err).Str("file", path).Msg("auto-fix: cannot stat file")
		return fail(fmt.Sprintf("stat: %v", err))
	}
	raw, err := afero.ReadFile(f.fs, path)
	if err != nil {
		f.log.Warn().Err(err).Str("file", path).Msg("auto-fix: cannot read file")
		return fail(fmt.Sprintf("read: %v", err))
	}

	content := string(raw)
	updated, results := Apply(content, issues)
	for _, r := range results {
		if !r.Applied {
			f.log.Debug().Str("file", path).Int("line", r.Issue.Line).Str("reason", r.Error).Msg("auto-fix skipped")
		}
	}
	if updated == content {
		return results
	}
	if f.preview != nil {
		fmt.Fprintf(f.preview, "--- %s\n%s", path, Preview(content, updated))
	}

	if err := afero.WriteFile(f.fs, path, []byte(updated), perm(info)); err != nil {
		f.log.Error().Err(err).Str("file", path).Msg("auto-fix: write failed, fixes reverted")
		for i := range results {
			if results[i].Applied {
				results[i].Applied = false
				results[i].Error = fmt.Sprintf("write failed: %v", err)
			}
		}
		return results
	}

	f.log.Info().Str("file", path).Msg("auto-fix applied")
	return results
}

// Fix selects eligible issues, asks for confirmation when configured,
// applies them and, with a committer, commits and pushes the result to
// branch. The returned error only concerns the commit step.
func (f *Fixer) Fix(ctx context.Context, issues []core.Issue, branch string) ([]Result, error) {
	selected := f.selector.Select(issues)
	if len(selected) == 0 {
		f.log.Debug().Msg("no issue eligible for auto-fix")
		return nil, nil
	}
	if f.confirm != nil && !f.confirm(fmt.Sprintf("Apply %d auto-fixes", len(selected))) {
		f.log.Info().Int("fixes", len(selected)).Msg("auto-fix declined")
		return nil, nil
	}

	results := f.Run(selected)
	files := AppliedFiles(results)
	if f.committer == nil || len(files) == 0 {
		return results, nil
	}

	msg := fmt.Sprintf("style: apply %d automated review fixes", countApplied(results))
	commit, err := f.committer.Commit(files, msg, f.author)
	if err != nil {
		return results, fmt.Errorf("auto-fix commit: %w", err)
	}
	if branch == "" {
		return results, fmt.Errorf("auto-fix push: no branch")
	}
	if err := f.committer.Push(ctx, commit, branch, f.token); err != nil {
		return results, fmt.Errorf("auto-fix push: %w", err)
	}
	f.log.Info().Str("commit", commit).Str("branch", branch).Msg("auto-fixes pushed")
	return results, nil
}

// AppliedFiles lists the files with at least one applied fix, in order.
func AppliedFiles(results []Result) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		if r.Applied && !seen[r.File] {
			seen[r.File] = true
			out = append(out, r.File)
		}
	}
	return out
}

func countApplied(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Applied {
			n++
		}
	}
	return n
}

func perm(info os.FileInfo) os.FileMode {
	if info == nil {
		return 0o644
	}
	return info.Mode().Perm()
}
