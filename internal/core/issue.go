package core

import (
	"sort"
	"strings"
)

// Severity classifies an Issue. The zero value is treated as SeverityInfo.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeverityInfo       Severity = "info"
	SeveritySuggestion Severity = "suggestion"
)

// severityRanks is the fixed ordering used by every severity filter:
// error > warning > info = suggestion.
var severityRanks = map[Severity]int{
	SeverityError:      3,
	SeverityWarning:    2,
	SeverityInfo:       1,
	SeveritySuggestion: 1,
}

// Rank returns the numeric rank of s. Unknown severities rank as info.
func (s Severity) Rank() int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return 1
}

// AtLeast reports whether s ranks at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity normalizes free-form severity labels returned by models.
// It accepts the canonical values plus the labels reviewers commonly emit
// (critical, high, medium, low, nit...). ok is false for unknown input.
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "error", "critical", "blocker", "high", "major":
		return SeverityError, true
	case "warning", "warn", "medium", "moderate":
		return SeverityWarning, true
	case "info", "low", "minor", "note", "remark":
		return SeverityInfo, true
	case "suggestion", "nit", "nitpick", "style", "hint":
		return SeveritySuggestion, true
	}
	return "", false
}

// Issue is one finding returned by the AI provider.
type Issue struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Message     string   `json:"message"`
	Description string   `json:"description,omitempty"`
	File        string   `json:"file"`
	Line        int      `json:"line,omitempty"`
	EndLine     int      `json:"end_line,omitempty"`
	Replacement *string  `json:"replacement,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
	RuleID      string   `json:"rule_id,omitempty"`
	RuleName    string   `json:"rule_name,omitempty"`

	// OriginalLine is the source text found at Line when the issue was
	// produced. Auto-fix refuses to touch a line that no longer matches it.
	OriginalLine string `json:"original_line,omitempty"`

	// LowConfidence marks issues recovered by the lenient text extractor
	// rather than decoded from structured output.
	LowConfidence bool `json:"-"`
}

// HasReplacement reports whether the issue carries an exact replacement.
func (i Issue) HasReplacement() bool {
	return i.Replacement != nil
}

// LastLine returns EndLine when it describes a range, Line otherwise.
func (i Issue) LastLine() int {
	if i.EndLine > i.Line {
		return i.EndLine
	}
	return i.Line
}

// Normalize fixes up fields the model commonly gets slightly wrong: unknown
// severities, inverted ranges, decorated paths.
func (i Issue) Normalize() Issue {
	if sev, ok := ParseSeverity(string(i.Severity)); ok {
		i.Severity = sev
	} else {
		i.Severity = SeverityInfo
	}
	i.Category = strings.ToLower(strings.TrimSpace(i.Category))
	i.Category = strings.ReplaceAll(i.Category, "-", "_")
	i.Category = strings.ReplaceAll(i.Category, " ", "_")
	if i.Category == "" {
		i.Category = "general"
	}
	i.File = CleanPath(i.File)
	if i.Line < 0 {
		i.Line = 0
	}
	if i.EndLine != 0 && i.EndLine < i.Line {
		i.EndLine = 0
	}
	i.Message = strings.TrimSpace(i.Message)
	return i
}

// CleanPath strips diff prefixes and leading "./" from a repository path.
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "`")
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		p = p[2:]
	}
	return strings.TrimPrefix(p, "./")
}

// CountBySeverity returns the number of issues per canonical severity.
func CountBySeverity(issues []Issue) map[Severity]int {
	out := map[Severity]int{}
	for _, is := range issues {
		out[is.Severity]++
	}
	return out
}

// FilterBySeverity keeps issues ranking at or above min. The result never
// grows when min is raised.
func FilterBySeverity(issues []Issue, min Severity) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.Severity.AtLeast(min) {
			out = append(out, is)
		}
	}
	return out
}

// SortIssues orders issues by file, then line, then descending severity.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		x, y := issues[a], issues[b]
		if x.File != y.File {
			return x.File < y.File
		}
		if x.Line != y.Line {
			return x.Line < y.Line
		}
		return x.Severity.Rank() > y.Severity.Rank()
	})
}

// Outcome is the terminal status of a review. Findings never make a review
// fail; they only ask for attention.
type Outcome string

const (
	OutcomePassed         Outcome = "passed"
	OutcomeNeedsAttention Outcome = "needs_attention"
)

// OutcomeFor returns needs_attention as soon as there is one issue.
func OutcomeFor(issues []Issue) Outcome {
	if len(issues) > 0 {
		return OutcomeNeedsAttention
	}
	return OutcomePassed
}
