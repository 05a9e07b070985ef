package rules

import (
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FilterForFiles returns the rules that apply to at least one of paths: a
// rule with no globs applies to everything, whatever its kind. The result
// is ordered by read order, ties broken by ID.
func FilterForFiles(rules []Rule, paths []string) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Global() || matchesAny(r.Globs, paths) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AppliesTo reports whether r applies to the single file p.
func (r Rule) AppliesTo(p string) bool {
	return r.Global() || matchesAny(r.Globs, []string{p})
}

func matchesAny(globs, paths []string) bool {
	for _, g := range globs {
		for _, p := range paths {
			if Match(g, p) {
				return true
			}
		}
	}
	return false
}

// Match reports whether pattern matches the slash separated path p with
// minimatch semantics. A pattern without a slash is also tried against the
// base name, so "*.ts" matches "a/b.ts". Invalid patterns never match.
func Match(pattern, p string) bool {
	pattern = strings.TrimPrefix(strings.TrimSpace(pattern), "./")
	p = strings.TrimPrefix(p, "./")
	if pattern == "" || p == "" {
		return false
	}

	if ok, err := doublestar.Match(pattern, p); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, err := doublestar.Match(pattern, path.Base(p))
		return err == nil && ok
	}
	return false
}
