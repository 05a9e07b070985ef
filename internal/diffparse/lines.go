package diffparse

import (
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// LineSet is a set of 1-based line numbers in the new version of a file.
type LineSet map[int]struct{}

// Contains reports whether line n is in the set.
func (s LineSet) Contains(n int) bool {
	_, ok := s[n]
	return ok
}

// Sorted returns the members in ascending order.
func (s LineSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// ValidLines returns the new-file line numbers of the lines a patch adds,
// the positions a hosting platform accepts for inline comments. Context
// lines advance the counter but are not recorded, deleted lines are
// ignored. An empty or malformed patch yields an empty set.
func ValidLines(patch string) LineSet {
	set := LineSet{}
	hunks, ok := parseHunks(patch)
	if !ok {
		return set
	}
	for _, h := range hunks {
		walkHunk(h, func(l DiffLine) {
			if l.Type == LineAdded {
				set[l.NewLineNo] = struct{}{}
			}
		})
	}
	return set
}

// CountLines returns how many lines a patch adds and deletes. Platforms
// that only ship the patch (GitLab MR diffs) get their stats from here.
func CountLines(patch string) (additions, deletions int) {
	hunks, ok := parseHunks(patch)
	if !ok {
		return 0, 0
	}
	for _, h := range hunks {
		a, d := countHunk(h)
		additions += a
		deletions += d
	}
	return additions, deletions
}

func countHunk(h *diff.Hunk) (additions, deletions int) {
	walkHunk(h, func(l DiffLine) {
		switch l.Type {
		case LineAdded:
			additions++
		case LineDeleted:
			deletions++
		}
	})
	return additions, deletions
}

// parseHunks accepts either a bare hunk list (the GitHub "patch" field) or
// a single-file diff with headers.
func parseHunks(patch string) ([]*diff.Hunk, bool) {
	if strings.TrimSpace(patch) == "" {
		return nil, false
	}
	if strings.HasPrefix(patch, "@@") {
		hunks, err := diff.ParseHunks([]byte(patch))
		if err != nil {
			return nil, false
		}
		return hunks, true
	}
	fd, err := diff.ParseFileDiff([]byte(patch))
	if err != nil || fd == nil {
		return nil, false
	}
	return fd.Hunks, true
}
