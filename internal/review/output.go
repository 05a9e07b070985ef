package review

import (
	"fmt"
	"strings"

	"github.com/sanix-darker/prbot/internal/core"
)

var severityOrder = []core.Severity{
	core.SeverityError,
	core.SeverityWarning,
	core.SeverityInfo,
	core.SeveritySuggestion,
}

// FallbackSummary builds the summary from issue counts when the AI could not
// write one.
func FallbackSummary(res *Result) string {
	if res.TotalFiles == 0 || len(res.Files) == 0 {
		return "No files to review."
	}

	head := fmt.Sprintf("Reviewed %d of %d files.", res.FilesReviewed, res.TotalFiles)
	if len(res.Issues) == 0 {
		return head + " No issues found."
	}

	counts := res.Counts()
	var parts []string
	for _, sev := range severityOrder {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, plural(string(sev), n)))
		}
	}
	return fmt.Sprintf("%s Found %d %s: %s.", head, len(res.Issues), plural("issue", len(res.Issues)), strings.Join(parts, ", "))
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// FormatReport renders a Result as markdown for the terminal.
func FormatReport(res *Result) string {
	var sb strings.Builder

	if res.PR != nil && res.PR.Number > 0 {
		sb.WriteString(fmt.Sprintf("# Review of #%d: %s\n\n", res.PR.Number, res.PR.Title))
	} else if res.PR != nil {
		sb.WriteString(fmt.Sprintf("# Review: %s → %s\n\n", res.PR.HeadBranch, res.PR.BaseBranch))
	} else {
		sb.WriteString("# Review\n\n")
	}

	if res.Skipped {
		sb.WriteString(fmt.Sprintf("Skipped: %s.\n", res.SkipReason))
		return sb.String()
	}

	if res.Plan.Overview != "" {
		sb.WriteString("## Overview\n\n")
		sb.WriteString(res.Plan.Overview)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(res.Summary)
	sb.WriteString("\n\n")

	sb.WriteString("## Findings\n\n")
	byFile := map[string][]core.Issue{}
	for _, is := range res.Issues {
		byFile[is.File] = append(byFile[is.File], is)
	}
	for _, f := range res.Files {
		issues := byFile[f.Path]
		if len(issues) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", f.Path))
		core.SortIssues(issues)
		for _, is := range issues {
			if is.Line > 0 {
				sb.WriteString(fmt.Sprintf("**%s:%d** [%s]: %s\n", is.File, is.Line, strings.ToUpper(string(is.Severity)), is.Message))
			} else {
				sb.WriteString(fmt.Sprintf("**%s** [%s]: %s\n", is.File, strings.ToUpper(string(is.Severity)), is.Message))
			}
			if is.HasReplacement() {
				sb.WriteString("```suggestion\n")
				sb.WriteString(strings.TrimRight(*is.Replacement, "\n"))
				sb.WriteString("\n```\n")
			} else if is.Suggestion != "" {
				sb.WriteString("> " + is.Suggestion + "\n")
			}
			sb.WriteString("\n")
		}
	}
	if len(res.Issues) == 0 {
		sb.WriteString("No issues found.\n\n")
	}

	sb.WriteString("## Statistics\n\n")
	sb.WriteString(fmt.Sprintf("- Status: %s\n", res.Status))
	sb.WriteString(fmt.Sprintf("- Files reviewed: %d of %d\n", res.FilesReviewed, res.TotalFiles))
	if len(res.Issues) > 0 {
		counts := res.Counts()
		var parts []string
		for _, sev := range severityOrder {
			if n := counts[sev]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToUpper(string(sev))))
			}
		}
		sb.WriteString(fmt.Sprintf("- Issues: %d (%s)\n", len(res.Issues), strings.Join(parts, ", ")))
	} else {
		sb.WriteString("- Issues: 0\n")
	}
	if len(res.AppliedRules) > 0 {
		sb.WriteString(fmt.Sprintf("- Rules: %s\n", strings.Join(res.AppliedRules, ", ")))
	}
	if n := res.FixesApplied(); n > 0 {
		sb.WriteString(fmt.Sprintf("- Auto-fixes applied: %d\n", n))
	}

	return sb.String()
}
