package rules

import "strings"

// Kind says how a rule decides where it applies.
type Kind string

const (
	// KindAlways applies to every changed file.
	KindAlways Kind = "always"
	// KindPathScoped applies to files matching one of its globs.
	KindPathScoped Kind = "path-scoped"
	// KindManual has metadata but no scope; it applies everywhere.
	KindManual Kind = "manual"
	// KindLegacy comes from a document without any metadata.
	KindLegacy Kind = "legacy"
)

func parseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindAlways:
		return KindAlways, true
	case KindPathScoped, "path_scoped", "auto", "glob":
		return KindPathScoped, true
	case KindManual:
		return KindManual, true
	case KindLegacy:
		return KindLegacy, true
	}
	return "", false
}

// Reference is an auxiliary file named by an @path token in a rule body.
type Reference struct {
	Path    string
	Content string
}

// Rule is one reviewable guideline. Rules are built once per run and never
// modified afterwards.
type Rule struct {
	ID          string
	Name        string
	Kind        Kind
	Globs       []string
	Description string
	Body        string
	References  []Reference
	// Source is the document path relative to the configuration root.
	Source string
	// Order is the position in which the document was read.
	Order int
}

// Global reports whether the rule applies regardless of the changed paths.
// Only the glob list decides; Kind classifies the rule for display.
func (r Rule) Global() bool {
	return len(r.Globs) == 0
}

// RuleSet keeps the three rule channels apart; callers decide which ones
// to use and whether their presence counts as "rules exist".
type RuleSet struct {
	// Rules come from the structured rules directory.
	Rules []Rule
	// Agents is the top-level agent instructions document, if any.
	Agents *Rule
	// Legacy is the single-file legacy rules document, if any.
	Legacy *Rule
}

// Empty reports whether no channel produced a rule.
func (s RuleSet) Empty() bool {
	return len(s.Rules) == 0 && s.Agents == nil && s.Legacy == nil
}

// All flattens the channels in read order.
func (s RuleSet) All() []Rule {
	out := make([]Rule, 0, len(s.Rules)+2)
	out = append(out, s.Rules...)
	if s.Agents != nil {
		out = append(out, *s.Agents)
	}
	if s.Legacy != nil {
		out = append(out, *s.Legacy)
	}
	return out
}

// Count returns the number of rules across all channels.
func (s RuleSet) Count() int {
	return len(s.All())
}
