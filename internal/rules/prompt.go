package rules

import (
	"fmt"
	"strings"

	"github.com/sanix-darker/prbot/internal/common"
)

const (
	maxBytesPerRule = 6000
	maxBytesTotal   = 24000
)

// FormatForPrompt renders rules for prompt injection, within a byte budget.
// An empty string means there is nothing to inject.
func FormatForPrompt(rules []Rule) string {
	if len(rules) == 0 {
		return ""
	}

	var (
		sb           strings.Builder
		total        int
		used         int
		truncatedAny bool
	)

	sb.WriteString("## Project Rules\n")
	sb.WriteString("Check the code against these project rules. Report every violation with category \"rule_violation\" and the rule id.\n\n")

	for _, r := range rules {
		if total >= maxBytesTotal {
			truncatedAny = true
			break
		}

		content := ruleText(r)
		if len(content) > maxBytesPerRule {
			content = strings.TrimSpace(content[:common.RuneBoundary(content, maxBytesPerRule)]) + "\n...[truncated]"
			truncatedAny = true
		}
		if remaining := maxBytesTotal - total; len(content) > remaining {
			content = strings.TrimSpace(content[:common.RuneBoundary(content, remaining)]) + "\n...[truncated]"
			truncatedAny = true
		}

		fmt.Fprintf(&sb, "### %s (id: %s)\n", r.Name, r.ID)
		if len(r.Globs) > 0 {
			fmt.Fprintf(&sb, "Applies to: %s\n", strings.Join(r.Globs, ", "))
		}
		sb.WriteString("```markdown\n")
		sb.WriteString(content)
		sb.WriteString("\n```\n\n")

		total += len(content)
		used++
	}

	if used == 0 {
		return ""
	}
	if truncatedAny {
		sb.WriteString("Note: rule content was truncated to fit the prompt budget.\n")
	}
	return strings.TrimSpace(sb.String())
}

func ruleText(r Rule) string {
	var sb strings.Builder
	if r.Description != "" {
		sb.WriteString(r.Description)
		sb.WriteString("\n\n")
	}
	sb.WriteString(r.Body)
	for _, ref := range r.References {
		fmt.Fprintf(&sb, "\n\n@%s:\n%s", ref.Path, strings.TrimSpace(ref.Content))
	}
	return strings.TrimSpace(sb.String())
}
