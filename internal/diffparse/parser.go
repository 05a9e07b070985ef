package diffparse

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/sanix-darker/prbot/internal/core"
)

// LineType classifies a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineDeleted
)

// DiffLine is one line of a hunk body with its position in both files.
// OldLineNo is 0 for added lines and NewLineNo is 0 for deleted lines.
type DiffLine struct {
	Type      LineType
	Content   string
	OldLineNo int
	NewLineNo int
}

// ParseGitDiff parses a multi-file unified diff (git diff, go-git patch)
// into the file changes the review pipeline consumes. Each change carries
// its own hunks as Patch, in the same shape the GitHub API returns.
func ParseGitDiff(raw string) ([]core.FileChange, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	changes := make([]core.FileChange, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		oldName := cleanPath(fd.OrigName)
		newName := cleanPath(fd.NewName)

		status := core.StatusModified
		path := newName
		switch {
		case fd.OrigName == "/dev/null":
			status = core.StatusAdded
		case fd.NewName == "/dev/null":
			status = core.StatusRemoved
			path = oldName
		case oldName != newName:
			status = core.StatusRenamed
		}
		if path == "" {
			continue
		}

		var additions, deletions int
		for _, h := range fd.Hunks {
			a, d := countHunk(h)
			additions += a
			deletions += d
		}

		var patch string
		if !isBinaryDiff(fd) && !IsBinaryPath(path) && len(fd.Hunks) > 0 {
			if b, err := diff.PrintHunks(fd.Hunks); err == nil {
				patch = string(b)
			}
		}

		fc := core.NewFileChange(path, status, additions, deletions, patch)
		if status == core.StatusRenamed {
			fc.PreviousPath = oldName
		}
		changes = append(changes, fc)
	}
	return changes, nil
}

// walkHunk calls fn for every body line of h, tracking old and new line
// numbers. A blank body line is a context line whose leading space was
// stripped; "\ No newline" markers are skipped.
func walkHunk(h *diff.Hunk, fn func(DiffLine)) {
	oldLine := int(h.OrigStartLine)
	newLine := int(h.NewStartLine)

	body := strings.TrimSuffix(string(h.Body), "\n")
	if body == "" {
		return
	}
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			fn(DiffLine{Type: LineContext, OldLineNo: oldLine, NewLineNo: newLine})
			oldLine++
			newLine++
			continue
		}
		switch line[0] {
		case '+':
			fn(DiffLine{Type: LineAdded, Content: line[1:], NewLineNo: newLine})
			newLine++
		case '-':
			fn(DiffLine{Type: LineDeleted, Content: line[1:], OldLineNo: oldLine})
			oldLine++
		case '\\':
		default:
			fn(DiffLine{Type: LineContext, Content: strings.TrimPrefix(line, " "), OldLineNo: oldLine, NewLineNo: newLine})
			oldLine++
			newLine++
		}
	}
}

func isBinaryDiff(fd *diff.FileDiff) bool {
	for _, ext := range fd.Extended {
		if strings.Contains(ext, "Binary files") || strings.Contains(ext, "GIT binary patch") {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	if p == "/dev/null" {
		return ""
	}
	p = strings.TrimPrefix(p, "a/")
	p = strings.TrimPrefix(p, "b/")
	return p
}
