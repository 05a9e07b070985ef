package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseStage tells which decoder produced a ParseResult.
type ParseStage string

const (
	StageStrict   ParseStage = "strict"
	StageRepaired ParseStage = "repaired"
	StageLenient  ParseStage = "lenient"
	StageEmpty    ParseStage = "empty"
)

// ParseResult holds the issues extracted from one AI response.
type ParseResult struct {
	Summary string
	Issues  []Issue
	Stage   ParseStage
}

var issueHeaderPattern = regexp.MustCompile(
	"(?i)^\\s*(?:[-*]\\s*)?(?:File:\\s*)?`?([^\\s:`()\\[\\]]+\\.\\w+)`?\\s*" +
		`(?:\(lines?\s*(\d+)(?:\s*-\s*(\d+))?\)|:(\d+)(?:-(\d+))?)?\s*` +
		`(?:\[([\w-]+)\])?\s*(?:\[([\w-]+)\])?\s*:?\s*(.*)$`,
)

// ParseIssues decodes an AI review response in two stages. The strict stage
// expects JSON (optionally fenced); when that fails the lenient stage first
// repairs the JSON and then falls back to extracting markdown finding lines.
// Issues produced by the lenient stage are flagged LowConfidence.
func ParseIssues(content string) ParseResult {
	if strings.TrimSpace(content) == "" {
		return ParseResult{Stage: StageEmpty}
	}

	payload := extractJSONPayload(content)
	if payload != "" {
		var root any
		if err := json.Unmarshal([]byte(payload), &root); err == nil {
			if res, ok := issuesFromJSON(root); ok {
				res.Stage = StageStrict
				return res
			}
		}
	}

	candidate := payload
	if candidate == "" {
		candidate = strings.TrimSpace(content)
	}
	if looksLikeJSON(candidate) {
		if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
			var root any
			if err := json.Unmarshal([]byte(repaired), &root); err == nil {
				if res, ok := issuesFromJSON(root); ok {
					res.Stage = StageRepaired
					markLowConfidence(res.Issues)
					return res
				}
			}
		}
	}

	res := parseMarkdownIssues(content)
	res.Stage = StageLenient
	markLowConfidence(res.Issues)
	return res
}

// DecodeObject decodes the first JSON object found in content, repairing it
// when strict decoding fails. ok is false when nothing usable was found.
func DecodeObject(content string) (map[string]any, ParseStage, bool) {
	payload := extractJSONPayload(content)
	if payload == "" {
		return nil, StageEmpty, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err == nil {
		return obj, StageStrict, true
	}
	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return nil, StageEmpty, false
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, StageEmpty, false
	}
	return obj, StageRepaired, true
}

func markLowConfidence(issues []Issue) {
	for i := range issues {
		issues[i].LowConfidence = true
	}
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// issuesFromJSON accepts either an array of findings or an object holding
// one under a well-known key. An object with an empty findings list is a
// valid "no issues" answer.
func issuesFromJSON(root any) (ParseResult, bool) {
	switch t := root.(type) {
	case []any:
		return ParseResult{Issues: toIssues(objects(t))}, true
	case map[string]any:
		res := ParseResult{Summary: strings.TrimSpace(firstString(t, "summary", "overview"))}
		items, found := pickJSONFindings(t)
		if !found {
			if firstString(t, "file", "path") != "" && firstString(t, "message", "title") != "" {
				res.Issues = toIssues([]map[string]any{t})
				return res, true
			}
			return res, false
		}
		res.Issues = toIssues(items)
		return res, true
	}
	return ParseResult{}, false
}

func extractJSONPayload(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) >= 3 {
			last := len(lines) - 1
			if strings.TrimSpace(lines[last]) == "```" {
				trimmed = strings.TrimSpace(strings.Join(lines[1:last], "\n"))
			}
		}
	}
	if trimmed == "" {
		return ""
	}

	switch trimmed[0] {
	case '[':
		if end := strings.LastIndex(trimmed, "]"); end > 0 {
			return strings.TrimSpace(trimmed[:end+1])
		}
		return trimmed
	case '{':
		if end := strings.LastIndex(trimmed, "}"); end > 0 {
			return strings.TrimSpace(trimmed[:end+1])
		}
		return trimmed
	}

	// JSON embedded in prose: prefer an object, it usually wraps the list.
	startObj := strings.Index(trimmed, "{")
	endObj := strings.LastIndex(trimmed, "}")
	startArr := strings.Index(trimmed, "[")
	endArr := strings.LastIndex(trimmed, "]")
	if startObj >= 0 && endObj > startObj && (startArr < 0 || startObj < startArr) {
		return strings.TrimSpace(trimmed[startObj : endObj+1])
	}
	if startArr >= 0 && endArr > startArr {
		return strings.TrimSpace(trimmed[startArr : endArr+1])
	}
	return ""
}

func pickJSONFindings(obj map[string]any) ([]map[string]any, bool) {
	for _, k := range []string{"issues", "findings", "comments", "file_comments", "violations"} {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		if raw == nil {
			return nil, true
		}
		items, ok := raw.([]any)
		if !ok {
			continue
		}
		return objects(items), true
	}
	return nil, false
}

func objects(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func toIssues(items []map[string]any) []Issue {
	out := make([]Issue, 0, len(items))
	for _, m := range items {
		msg := firstString(m, "message", "title", "summary")
		desc := firstString(m, "description", "details", "explanation")
		if strings.TrimSpace(msg) == "" {
			msg = desc
		}
		if strings.TrimSpace(msg) == "" {
			continue
		}
		is := Issue{
			Severity:    Severity(firstString(m, "severity", "level", "priority")),
			Category:    firstString(m, "category", "type", "kind"),
			Message:     msg,
			Description: strings.TrimSpace(desc),
			File:        firstString(m, "file", "file_path", "path", "filename"),
			Line:        firstInt(m, "line", "start_line", "line_number", "new_line"),
			EndLine:     firstInt(m, "end_line", "endLine", "line_end"),
			Suggestion:  trimBlankEdgesString(firstString(m, "suggestion", "recommendation", "fix")),
			RuleID:      firstString(m, "rule_id", "ruleId", "rule"),
			RuleName:    firstString(m, "rule_name", "ruleName"),
		}
		// "fix" is prose as often as code, so it only feeds Suggestion.
		if r, ok := firstRawString(m, "replacement", "fixed_code"); ok {
			is.Replacement = &r
		}
		out = append(out, is.Normalize())
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case string:
				if strings.TrimSpace(t) != "" {
					return t
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			case fmt.Stringer:
				s := strings.TrimSpace(t.String())
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// firstRawString returns the first string value under keys, even when empty:
// an empty replacement is a legitimate deletion.
func firstRawString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSuffix(strings.ReplaceAll(s, "\r\n", "\n"), "\n"), true
			}
		}
	}
	return "", false
}

func firstInt(m map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(t))
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// parseMarkdownIssues extracts finding lines such as
//
//	**src/app.go:42** [ERROR] [bug]: nil dereference
//	- File: src/app.go (line 10-12) [warning]: message
//
// Everything before the first finding is kept as the summary.
func parseMarkdownIssues(content string) ParseResult {
	var (
		res         ParseResult
		summary     []string
		current     *Issue
		body        []string
		inCodeBlock bool
	)

	flush := func() {
		if current == nil {
			return
		}
		msg, suggestion := extractSuggestion(body)
		if current.Message == "" {
			current.Message = firstLine(msg)
			current.Description = strings.TrimSpace(strings.TrimPrefix(msg, current.Message))
		} else {
			current.Description = msg
		}
		current.Suggestion = suggestion
		if current.Message != "" {
			res.Issues = append(res.Issues, current.Normalize())
		}
		current = nil
		body = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inCodeBlock = !inCodeBlock
			if current != nil {
				body = append(body, line)
			}
			continue
		}
		if inCodeBlock {
			if current != nil {
				body = append(body, line)
			}
			continue
		}

		if is, ok := parseIssueHeader(line); ok {
			flush()
			current = &is
			continue
		}
		if current != nil {
			body = append(body, line)
		} else if len(res.Issues) == 0 {
			summary = append(summary, line)
		}
	}
	flush()

	res.Summary = strings.TrimSpace(strings.Join(summary, "\n"))
	return res
}

func parseIssueHeader(line string) (Issue, bool) {
	normalized := strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
	if normalized == "" {
		return Issue{}, false
	}
	match := issueHeaderPattern.FindStringSubmatch(normalized)
	if match == nil {
		return Issue{}, false
	}

	lineNo, endLine := atoi(match[2]), atoi(match[3])
	if lineNo == 0 {
		lineNo, endLine = atoi(match[4]), atoi(match[5])
	}
	severity, category := classifyTags(match[6], match[7])
	if lineNo == 0 && severity == "" {
		// A bare file name in prose is not a finding.
		return Issue{}, false
	}
	if severity == "" {
		severity = SeverityInfo
	}

	return Issue{
		File:     match[1],
		Line:     lineNo,
		EndLine:  endLine,
		Severity: severity,
		Category: category,
		Message:  strings.TrimSpace(match[8]),
	}, true
}

func classifyTags(tags ...string) (Severity, string) {
	var (
		severity Severity
		category string
	)
	for _, raw := range tags {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		if sev, ok := ParseSeverity(tag); ok && severity == "" {
			severity = sev
			continue
		}
		if category == "" {
			category = tag
		}
	}
	return severity, category
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// extractSuggestion splits message lines from a fenced ```suggestion block.
func extractSuggestion(lines []string) (message, suggestion string) {
	var msgParts, sugParts []string
	inSuggestion := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inSuggestion && strings.HasPrefix(trimmed, "```suggestion") {
			inSuggestion = true
			continue
		}
		if inSuggestion {
			if trimmed == "```" {
				inSuggestion = false
				continue
			}
			sugParts = append(sugParts, line)
		} else {
			msgParts = append(msgParts, line)
		}
	}

	message = strings.TrimSpace(strings.Join(msgParts, "\n"))
	suggestion = strings.Join(trimBlankEdges(sugParts), "\n")
	return
}

func trimBlankEdges(lines []string) []string {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start >= end {
		return nil
	}
	return lines[start:end]
}

func trimBlankEdgesString(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	return strings.Join(trimBlankEdges(lines), "\n")
}
