// Package autofix applies the exact replacements carried by low-risk issues
// to the working copy.
package autofix

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sanix-darker/prbot/internal/core"
)

// AllowedCategories are the only categories eligible for auto-fix. Bugs and
// security findings always go through a human.
var AllowedCategories = map[string]bool{
	"rule_violation": true,
	"style":          true,
	"formatting":     true,
	"typo":           true,
}

// Result is the outcome of one attempted fix.
type Result struct {
	File    string
	Issue   core.Issue
	Applied bool
	Error   string
}

// Selector picks the issues that may be applied without review.
type Selector struct {
	MinSeverity core.Severity
}

// NewSelector returns a Selector with the given severity threshold.
func NewSelector(min core.Severity) Selector {
	return Selector{MinSeverity: min}
}

// Eligible reports whether a single issue may be auto-fixed.
func (s Selector) Eligible(is core.Issue) bool {
	return is.HasReplacement() &&
		is.File != "" &&
		is.Line > 0 &&
		is.Severity.AtLeast(s.MinSeverity) &&
		AllowedCategories[is.Category]
}

// Select returns the eligible issues in input order.
func (s Selector) Select(issues []core.Issue) []core.Issue {
	var out []core.Issue
	for _, is := range core.FilterBySeverity(issues, s.MinSeverity) {
		if s.Eligible(is) {
			out = append(out, is)
		}
	}
	return out
}

// Apply rewrites content with the replacements of issues, which must all
// belong to the same file. Fixes are applied bottom-up so earlier ones never
// shift the lines of later ones. Out-of-range, overlapping and stale issues
// fail individually.
func Apply(content string, issues []core.Issue) (string, []Result) {
	trailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if content == "" {
		lines = nil
	}

	sorted := make([]core.Issue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Line > sorted[b].Line
	})

	results := make([]Result, 0, len(sorted))
	floor := len(lines) + 1
	for _, is := range sorted {
		res := Result{File: is.File, Issue: is}
		start, end := is.Line, is.LastLine()

		switch {
		case !is.HasReplacement():
			res.Error = "no replacement"
		case start <= 0 || end > len(lines):
			res.Error = fmt.Sprintf("line %d-%d out of range (file has %d lines)", start, end, len(lines))
		case end >= floor:
			res.Error = fmt.Sprintf("line %d-%d overlaps a fix already applied", start, end)
		case is.OriginalLine != "" && strings.TrimRight(lines[start-1], "\r") != strings.TrimRight(is.OriginalLine, "\r"):
			res.Error = fmt.Sprintf("line %d changed since the review", start)
		default:
			lines = splice(lines, start, end, replacementLines(*is.Replacement))
			floor = start
			res.Applied = true
		}
		results = append(results, res)
	}

	out := strings.Join(lines, "\n")
	if trailingNewline && len(lines) > 0 {
		out += "\n"
	}
	return out, results
}

// replacementLines turns a replacement into lines. An empty replacement
// deletes the target lines.
func replacementLines(repl string) []string {
	repl = strings.TrimSuffix(repl, "\n")
	if repl == "" {
		return nil
	}
	return strings.Split(repl, "\n")
}

// splice replaces the 1-based inclusive range start..end.
func splice(lines []string, start, end int, repl []string) []string {
	out := make([]string, 0, len(lines)-(end-start+1)+len(repl))
	out = append(out, lines[:start-1]...)
	out = append(out, repl...)
	return append(out, lines[end:]...)
}
