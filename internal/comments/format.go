// Package comments turns review issues into pull request comments: one
// review comment per diff location and a single summary comment, both
// reconciled against what previous runs posted.
package comments

import (
	"fmt"
	"strings"

	"github.com/sanix-darker/prbot/internal/autofix"
	"github.com/sanix-darker/prbot/internal/common"
	"github.com/sanix-darker/prbot/internal/core"
)

const (
	// InlineMarker tags review comments posted by the bot.
	InlineMarker = "<!-- prbot:inline -->"
	// SummaryMarker tags the summary comment.
	SummaryMarker = "<!-- prbot:summary -->"

	// GitHub rejects comment bodies above 65536 characters.
	maxBodyBytes = 60000
)

// IsBotComment reports whether c was posted by the bot: it carries marker
// and, when botLogin is set, was authored by that account.
func IsBotComment(body, author, marker, botLogin string) bool {
	if !strings.Contains(body, marker) {
		return false
	}
	return botLogin == "" || strings.EqualFold(author, botLogin)
}

// DefaultSuggestion renders a GitHub suggestion block.
func DefaultSuggestion(code string) string {
	return "```suggestion\n" + strings.TrimRight(code, "\n") + "\n```"
}

// FormatInline renders the body of one review comment grouping every issue
// found at the same location.
func FormatInline(issues []core.Issue, suggest func(string) string) string {
	if suggest == nil {
		suggest = DefaultSuggestion
	}

	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		var sb strings.Builder
		fmt.Fprintf(&sb, "**[%s]** %s", strings.ToUpper(string(is.Severity)), is.Message)
		if is.Category != "" {
			fmt.Fprintf(&sb, " `%s`", is.Category)
		}
		sb.WriteString("\n")

		if is.Description != "" && is.Description != is.Message {
			sb.WriteString("\n" + is.Description + "\n")
		}
		if is.RuleName != "" || is.RuleID != "" {
			name := is.RuleName
			if name == "" {
				name = is.RuleID
			}
			fmt.Fprintf(&sb, "\n_Rule: %s_\n", name)
		}
		if is.Suggestion != "" {
			sb.WriteString("\n> " + strings.ReplaceAll(strings.TrimSpace(is.Suggestion), "\n", "\n> ") + "\n")
		}
		if is.HasReplacement() {
			if is.LastLine() == is.Line {
				sb.WriteString("\n" + suggest(*is.Replacement) + "\n")
			} else {
				fmt.Fprintf(&sb, "\nReplace lines %d-%d with:\n```\n%s\n```\n",
					is.Line, is.LastLine(), strings.TrimRight(*is.Replacement, "\n"))
			}
		}
		parts = append(parts, strings.TrimRight(sb.String(), "\n"))
	}

	return InlineMarker + "\n" + strings.Join(parts, "\n\n---\n\n")
}

// Report is everything the summary comment shows.
type Report struct {
	Status        core.Outcome
	Summary       string
	Issues        []core.Issue
	Files         []core.FileChange
	FilesReviewed int
	TotalFiles    int
	AppliedRules  []string
	Fixes         []autofix.Result
}

var severityOrder = []core.Severity{
	core.SeverityError,
	core.SeverityWarning,
	core.SeverityInfo,
	core.SeveritySuggestion,
}

// FormatSummary renders the summary comment. It lists every issue,
// whatever the inline severity threshold.
func FormatSummary(r Report) string {
	var sb strings.Builder
	sb.WriteString(SummaryMarker + "\n")
	sb.WriteString("## AI Code Review\n\n")

	if r.Status == core.OutcomeNeedsAttention {
		fmt.Fprintf(&sb, "**Status:** needs attention (%d issues)\n\n", len(r.Issues))
	} else {
		sb.WriteString("**Status:** passed\n\n")
	}

	if s := strings.TrimSpace(r.Summary); s != "" {
		sb.WriteString(s + "\n\n")
	}

	fmt.Fprintf(&sb, "**Files reviewed:** %d of %d\n", r.FilesReviewed, r.TotalFiles)
	if len(r.AppliedRules) > 0 {
		fmt.Fprintf(&sb, "**Rules applied:** %s\n", strings.Join(r.AppliedRules, ", "))
	}

	if len(r.Issues) > 0 {
		counts := core.CountBySeverity(r.Issues)
		sb.WriteString("\n| Severity | Count |\n|---|---|\n")
		for _, sev := range severityOrder {
			if n := counts[sev]; n > 0 {
				fmt.Fprintf(&sb, "| %s | %d |\n", sev, n)
			}
		}

		sorted := make([]core.Issue, len(r.Issues))
		copy(sorted, r.Issues)
		core.SortIssues(sorted)

		fmt.Fprintf(&sb, "\n<details>\n<summary>All findings (%d)</summary>\n\n", len(sorted))
		for _, is := range sorted {
			loc := is.File
			if is.Line > 0 {
				loc = fmt.Sprintf("%s:%d", is.File, is.Line)
			}
			fmt.Fprintf(&sb, "- **[%s]** `%s` %s\n", strings.ToUpper(string(is.Severity)), loc, is.Message)
		}
		sb.WriteString("\n</details>\n")
	}

	if applied := autofix.AppliedFiles(r.Fixes); len(applied) > 0 {
		n := 0
		for _, f := range r.Fixes {
			if f.Applied {
				n++
			}
		}
		fmt.Fprintf(&sb, "\n**Auto-fixes applied:** %d in %s\n", n, strings.Join(applied, ", "))
	}

	return common.Truncate(sb.String(), maxBodyBytes)
}
