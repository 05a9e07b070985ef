package review

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sanix-darker/prbot/internal/core"
)

// CategorizedFile is a file change with the area of the repository it
// belongs to.
type CategorizedFile struct {
	core.FileChange
	Group string // "tests", "commands", "core", "docs", "dependencies", "ci/config", "other"
}

// CategorizeChanges assigns a group to each change.
func CategorizeChanges(files []core.FileChange) []CategorizedFile {
	result := make([]CategorizedFile, 0, len(files))
	for _, f := range files {
		result = append(result, CategorizedFile{FileChange: f, Group: detectGroup(f.Path)})
	}
	return result
}

func detectGroup(name string) string {
	base := path.Base(name)
	dir := path.Dir(name)

	// Test files
	if strings.HasSuffix(name, "_test.go") ||
		strings.HasSuffix(name, "_test.py") ||
		strings.HasSuffix(name, ".test.js") ||
		strings.HasSuffix(name, ".test.ts") ||
		strings.HasSuffix(name, ".spec.js") ||
		strings.HasSuffix(name, ".spec.ts") ||
		strings.HasPrefix(dir, "tests") ||
		strings.HasPrefix(dir, "test") ||
		strings.Contains(dir, "__tests__") {
		return "tests"
	}

	if strings.HasPrefix(dir, "cmd") {
		return "commands"
	}

	if strings.HasPrefix(dir, "docs") || strings.HasPrefix(dir, "doc/") ||
		strings.HasSuffix(name, ".md") {
		return "docs"
	}

	switch base {
	case "go.mod", "go.sum", "package.json", "package-lock.json",
		"yarn.lock", "Pipfile", "Pipfile.lock", "requirements.txt",
		"Cargo.toml", "Cargo.lock", "pom.xml", "build.gradle", "composer.json":
		return "dependencies"
	}

	switch base {
	case "Dockerfile", "docker-compose.yml", "docker-compose.yaml",
		"Makefile", ".goreleaser.yml", ".goreleaser.yaml":
		return "ci/config"
	}
	if strings.HasPrefix(dir, ".github") || strings.HasPrefix(dir, ".circleci") {
		return "ci/config"
	}

	if strings.HasPrefix(dir, "internal") || strings.HasPrefix(dir, "pkg") ||
		strings.HasPrefix(dir, "lib") || strings.HasPrefix(dir, "src") {
		return "core"
	}

	return "other"
}

// FallbackPlan builds a plan from the file list alone, for when the AI
// could not produce one.
func FallbackPlan(files []core.FileChange) core.PRPlan {
	plan := core.PRPlan{Fallback: true}
	if len(files) == 0 {
		plan.Overview = "No files to review."
		return plan
	}

	additions, deletions := 0, 0
	groups := map[string][]string{}
	for _, cf := range CategorizeChanges(files) {
		additions += cf.Additions
		deletions += cf.Deletions
		groups[cf.Group] = append(groups[cf.Group], cf.Path)

		switch {
		case cf.Status == core.StatusRemoved:
			plan.KeyChanges = append(plan.KeyChanges, "Removes "+cf.Path)
		case cf.Status == core.StatusAdded:
			plan.KeyChanges = append(plan.KeyChanges, "Adds "+cf.Path)
		case cf.Status == core.StatusRenamed && cf.PreviousPath != "":
			plan.KeyChanges = append(plan.KeyChanges, fmt.Sprintf("Renames %s to %s", cf.PreviousPath, cf.Path))
		default:
			plan.KeyChanges = append(plan.KeyChanges, fmt.Sprintf("Modifies %s (+%d/-%d)", cf.Path, cf.Additions, cf.Deletions))
		}
	}

	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	plan.Overview = fmt.Sprintf("%d files changed (+%d/-%d) across %s.",
		len(files), additions, deletions, strings.Join(names, ", "))
	if paths, ok := groups["dependencies"]; ok {
		plan.RiskAreas = append(plan.RiskAreas, "Dependency changes: "+strings.Join(paths, ", "))
	}
	if paths, ok := groups["ci/config"]; ok {
		plan.RiskAreas = append(plan.RiskAreas, "Build or CI configuration: "+strings.Join(paths, ", "))
	}
	if _, ok := groups["tests"]; !ok {
		plan.ReviewFocus = append(plan.ReviewFocus, "No test files changed; check coverage of the new behavior.")
	}
	return plan
}
