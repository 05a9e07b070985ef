package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ids(rules []Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.ID)
	}
	return out
}

func TestFilterForFiles_EmptyScopeMatchesEverything(t *testing.T) {
	global := Rule{ID: "global", Kind: KindManual, Order: 1}
	for _, p := range []string{"a.go", "deep/nested/file.py", "README"} {
		assert.Equal(t, []string{"global"}, ids(FilterForFiles([]Rule{global}, []string{p})), p)
	}
}

func TestFilterForFiles_BasenameGlob(t *testing.T) {
	ts := Rule{ID: "ts", Kind: KindPathScoped, Globs: []string{"*.ts"}, Order: 1}

	assert.Len(t, FilterForFiles([]Rule{ts}, []string{"a/b.ts"}), 1)
	assert.Empty(t, FilterForFiles([]Rule{ts}, []string{"a/b.py"}))
	assert.Len(t, FilterForFiles([]Rule{ts}, []string{"a/b.py", "c.ts"}), 1)
}

func TestFilterForFiles_StableOrder(t *testing.T) {
	rules := []Rule{
		{ID: "z", Order: 3},
		{ID: "b", Order: 1},
		{ID: "a", Order: 1},
		{ID: "go", Kind: KindPathScoped, Globs: []string{"**/*.go"}, Order: 2},
		{ID: "py", Kind: KindPathScoped, Globs: []string{"*.py"}, Order: 0},
	}
	got := FilterForFiles(rules, []string{"cmd/main.go"})
	assert.Equal(t, []string{"a", "b", "go", "z"}, ids(got))
}

func TestFilterForFiles_AlwaysKindStillHonorsGlobs(t *testing.T) {
	scoped := Rule{ID: "sec", Kind: KindAlways, Globs: []string{"*.ts"}}
	assert.Empty(t, FilterForFiles([]Rule{scoped}, []string{"a/b.py"}))
	assert.Len(t, FilterForFiles([]Rule{scoped}, []string{"a/b.ts"}), 1)
	assert.False(t, scoped.Global())

	unscoped := Rule{ID: "all", Kind: KindAlways}
	assert.Len(t, FilterForFiles([]Rule{unscoped}, []string{"a/b.py"}), 1)
}

func TestFilterForFiles_BraceGlob(t *testing.T) {
	r := Rule{ID: "tsx", Kind: KindPathScoped, Globs: []string{"src/**/*.{ts,tsx}"}}
	assert.Len(t, FilterForFiles([]Rule{r}, []string{"src/app/page.tsx"}), 1)
	assert.Empty(t, FilterForFiles([]Rule{r}, []string{"src/app/page.js"}))
}

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"*.ts", "a/b.ts", true},
		{"*.ts", "a/b.py", false},
		{"**/*.go", "main.go", true},
		{"**/*.go", "internal/x/y.go", true},
		{"src/**/*.css", "src/a/b/c.css", true},
		{"src/**/*.css", "lib/a.css", false},
		{"./docs/*.md", "docs/a.md", true},
		{"api/**", "api/v1/users.go", true},
		{"[", "a", false},
		{"", "a.go", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Match(c.pattern, c.path), "%s vs %s", c.pattern, c.path)
	}
}

func TestRuleAppliesTo(t *testing.T) {
	r := Rule{Kind: KindPathScoped, Globs: []string{"*.go"}}
	assert.True(t, r.AppliesTo("pkg/x.go"))
	assert.False(t, r.AppliesTo("pkg/x.rs"))
}

func TestFormatForPrompt(t *testing.T) {
	assert.Empty(t, FormatForPrompt(nil))

	out := FormatForPrompt([]Rule{{
		ID:          "go/errors",
		Name:        "errors",
		Globs:       []string{"*.go"},
		Description: "Error handling",
		Body:        "Wrap errors.",
		References:  []Reference{{Path: "docs/style.md", Content: "Use gofmt."}},
	}})
	assert.Contains(t, out, "### errors (id: go/errors)")
	assert.Contains(t, out, "Applies to: *.go")
	assert.Contains(t, out, "Wrap errors.")
	assert.Contains(t, out, "@docs/style.md:\nUse gofmt.")
	assert.NotContains(t, out, "truncated")
}
