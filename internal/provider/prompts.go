package provider

import (
	"fmt"
	"strings"

	"github.com/sanix-darker/prbot/internal/common"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/diffparse"
	"github.com/sanix-darker/prbot/internal/rules"
)

const (
	maxContentBytes = 16000
	maxPatchBytes   = 12000
	maxPlanPatch    = 1500
)

// SystemPrompt is the reviewer persona shared by every review request.
func SystemPrompt(strictness string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert code reviewer commenting on a pull request.\n")
	sb.WriteString("You only answer with the JSON document described below, without prose around it.\n\n")
	sb.WriteString(strictnessInstruction(strictness))
	sb.WriteString(issueFormat)

	return sb.String()
}

const issueFormat = `
## Output Format

Answer with a single JSON object:

{
  "summary": "one or two sentences about the reviewed code",
  "issues": [
    {
      "severity": "error | warning | info | suggestion",
      "category": "bug | security | performance | rule_violation | style | formatting | typo | maintainability",
      "file": "path/of/the/file",
      "line": 42,
      "end_line": 44,
      "message": "short title of the problem",
      "description": "why it is a problem",
      "replacement": "exact code that replaces lines line..end_line, only when the fix is mechanical",
      "suggestion": "free text advice when no exact replacement exists",
      "rule_id": "id of the violated project rule, if any",
      "rule_name": "name of the violated project rule, if any"
    }
  ]
}

Line numbers refer to the new version of the file, as numbered in the content below.
Only report lines that were added or modified by the change.
Use "replacement" only for small, safe edits; leave it out otherwise.
Return "issues": [] when there is nothing to report.
`

// BuildSinglePrompt asks for the review of one file with its full content.
func BuildSinglePrompt(file FileInput, rc ReviewContext) string {
	var sb strings.Builder

	writePRHeader(&sb, rc.PR)
	writePlan(&sb, rc.Plan)

	sb.WriteString("## File to Review\n\n")
	writeFile(&sb, file, true)

	if guidelines := rules.FormatForPrompt(rc.Rules); guidelines != "" {
		sb.WriteString(guidelines)
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("Review `%s`. Every issue must use this path as \"file\".\n", file.Change.Path))
	return sb.String()
}

// BuildBatchPrompt asks for the review of several files at once. Patches are
// always sent; full content only fits for small files.
func BuildBatchPrompt(files []FileInput, rc ReviewContext) string {
	var sb strings.Builder

	writePRHeader(&sb, rc.PR)
	writePlan(&sb, rc.Plan)

	sb.WriteString(fmt.Sprintf("## Files to Review (%d)\n\n", len(files)))
	budget := maxContentBytes
	for _, f := range files {
		withContent := f.Content != "" && len(f.Content) <= budget
		if withContent {
			budget -= len(f.Content)
		}
		writeFile(&sb, f, withContent)
	}

	if guidelines := rules.FormatForPrompt(rc.Rules); guidelines != "" {
		sb.WriteString(guidelines)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Review every file above. Set \"file\" to the exact path shown in its heading.\n")
	return sb.String()
}

// BuildPlanPrompt asks for a cross-file overview of the pull request.
func BuildPlanPrompt(files []core.FileChange, pr PRContext) string {
	var sb strings.Builder

	sb.WriteString("You are an expert code reviewer preparing the review of a pull request.\n\n")
	writePRHeader(&sb, pr)

	sb.WriteString("## Changed Files\n\n")
	sb.WriteString("| File | Status | + | - |\n")
	sb.WriteString("|------|--------|---|---|\n")
	for _, f := range files {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d |\n", f.Path, f.Status, f.Additions, f.Deletions))
	}
	sb.WriteString("\n")

	sb.WriteString("## Excerpts\n\n")
	budget := maxPatchBytes
	for _, f := range files {
		if !f.HasPatch() || budget <= 0 {
			continue
		}
		patch := common.Truncate(f.Patch, min(maxPlanPatch, budget))
		budget -= len(patch)
		sb.WriteString(fmt.Sprintf("### %s\n```diff\n%s\n```\n\n", f.Path, patch))
	}

	sb.WriteString(`## Instructions

Answer with a single JSON object:

{
  "overview": "what the pull request does, in two or three sentences",
  "key_changes": ["most important changes"],
  "risk_areas": ["files or behaviors that deserve scrutiny"],
  "review_focus": ["what the per-file review should look for"],
  "context": "cross-file relationships a reviewer of a single file would miss"
}
`)
	return sb.String()
}

// BuildSummaryPrompt asks for the markdown body of the summary comment.
func BuildSummaryPrompt(issues []core.Issue, sc SummaryContext) string {
	var sb strings.Builder

	sb.WriteString("You are an expert code reviewer writing the summary comment of a pull request review.\n\n")
	writePRHeader(&sb, sc.PR)
	if sc.Plan.Overview != "" {
		sb.WriteString("## Overview\n\n")
		sb.WriteString(sc.Plan.Overview)
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("Files reviewed: %d of %d\n", sc.FilesReviewed, sc.TotalFiles))
	if len(sc.AppliedRules) > 0 {
		sb.WriteString(fmt.Sprintf("Project rules applied: %s\n", strings.Join(sc.AppliedRules, ", ")))
	}
	sb.WriteString("\n## Findings\n\n")
	if len(issues) == 0 {
		sb.WriteString("No issues were found.\n")
	}
	for _, is := range issues {
		loc := is.File
		if is.Line > 0 {
			loc = fmt.Sprintf("%s:%d", is.File, is.Line)
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s (%s) %s\n", is.Severity, loc, is.Category, is.Message))
	}

	sb.WriteString(`
## Instructions

Write a short markdown summary (at most 15 lines) for the pull request author:
the overall assessment first, then the findings that matter most, grouped by theme.
Do not repeat every finding. Do not wrap the answer in a code fence.
`)
	return sb.String()
}

func writePRHeader(sb *strings.Builder, pr PRContext) {
	if pr.Title != "" {
		sb.WriteString(fmt.Sprintf("## Pull Request: %s\n\n", pr.Title))
	}
	if pr.BaseBranch != "" || pr.HeadBranch != "" {
		sb.WriteString(fmt.Sprintf("Merging `%s` into `%s`.\n\n", pr.HeadBranch, pr.BaseBranch))
	}
	if desc := strings.TrimSpace(pr.Description); desc != "" {
		sb.WriteString("### Description\n\n")
		sb.WriteString(common.Truncate(desc, 2000))
		sb.WriteString("\n\n")
	}
}

func writePlan(sb *strings.Builder, plan core.PRPlan) {
	if plan.IsEmpty() {
		return
	}
	sb.WriteString("## Review Plan\n\n")
	if plan.Overview != "" {
		sb.WriteString(plan.Overview)
		sb.WriteString("\n\n")
	}
	writeList(sb, "Risk areas", plan.RiskAreas)
	writeList(sb, "Focus", plan.ReviewFocus)
	if plan.Context != "" {
		sb.WriteString("Context: ")
		sb.WriteString(plan.Context)
		sb.WriteString("\n\n")
	}
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(title + ":\n")
	for _, it := range items {
		sb.WriteString("- " + it + "\n")
	}
	sb.WriteString("\n")
}

func writeFile(sb *strings.Builder, f FileInput, withContent bool) {
	lang := diffparse.DetectLanguage(f.Change.Path)
	sb.WriteString(fmt.Sprintf("### %s (%s", f.Change.Path, f.Change.Status))
	if lang != "" {
		sb.WriteString(", " + lang)
	}
	sb.WriteString(")\n\n")

	if f.Change.HasPatch() {
		sb.WriteString("```diff\n")
		sb.WriteString(common.Truncate(f.Change.Patch, maxPatchBytes))
		sb.WriteString("\n```\n\n")
	}
	if withContent && f.Content != "" {
		sb.WriteString("Full content after the change:\n\n```" + lang + "\n")
		sb.WriteString(numberLines(common.Truncate(f.Content, maxContentBytes)))
		sb.WriteString("```\n\n")
	}
}

// numberLines prefixes each line with its 1-based number so the model can
// cite lines of the new file.
func numberLines(content string) string {
	var sb strings.Builder
	for i, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		sb.WriteString(fmt.Sprintf("%5d | %s\n", i+1, line))
	}
	return sb.String()
}

func strictnessInstruction(strictness string) string {
	switch strings.ToLower(strictness) {
	case "strict":
		return `## Strictness: STRICT
Report all issues including style nits and minor improvements. Be thorough.
`
	case "lenient":
		return `## Strictness: LENIENT
Only report errors and serious warnings. Skip style nits and minor improvements.
`
	default:
		return `## Strictness: NORMAL
Focus on bugs, security vulnerabilities, rule violations and significant code quality issues.
Skip trivial style nits.
`
	}
}
