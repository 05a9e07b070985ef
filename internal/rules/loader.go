package rules

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sanix-darker/prbot/internal/common"
	"github.com/spf13/afero"
)

const (
	// DefaultRulesDir is the structured rules directory, relative to the root.
	DefaultRulesDir = ".cursor/rules"
	// AgentsFile is the top-level agent instructions document.
	AgentsFile = "AGENTS.md"
	// LegacyFile is the single-file legacy rules document.
	LegacyFile = ".cursorrules"

	maxReferences        = 8
	maxBytesPerReference = 4000
)

var ruleExtensions = map[string]bool{".md": true, ".mdc": true}

// referencePattern matches @path tokens. An extension is required so that
// @mentions in prose are left alone.
var referencePattern = regexp.MustCompile(`(?:^|[\s(\[])@([A-Za-z0-9_.\-/]+\.[A-Za-z0-9]+)`)

// Store loads rule documents from a configuration root.
type Store struct {
	fs   afero.Fs
	root string
	log  zerolog.Logger
}

// NewStore returns a Store reading below root through fs.
func NewStore(fs afero.Fs, root string, log zerolog.Logger) *Store {
	return &Store{fs: fs, root: filepath.Clean(root), log: log}
}

// LoadAll scans the three rule channels. customPath overrides the rules
// directory and may be absolute or relative to the root. A missing root or
// directory yields an empty set; malformed documents are skipped.
func (s *Store) LoadAll(customPath string) (RuleSet, error) {
	var set RuleSet

	info, err := s.fs.Stat(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug().Str("root", s.root).Msg("rules root missing, no rules loaded")
			return set, nil
		}
		return set, fmt.Errorf("stat rules root %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return set, nil
	}

	order := 0
	next := func() int {
		order++
		return order
	}

	dir := s.rulesDir(customPath)
	set.Rules = s.loadDirectory(dir, next)

	if r, ok := s.loadSingle(AgentsFile, KindAlways, next); ok {
		set.Agents = &r
	}
	if r, ok := s.loadSingle(LegacyFile, KindLegacy, next); ok {
		set.Legacy = &r
	}

	s.log.Debug().
		Int("rules", len(set.Rules)).
		Bool("agents", set.Agents != nil).
		Bool("legacy", set.Legacy != nil).
		Msg("rules loaded")
	return set, nil
}

func (s *Store) rulesDir(customPath string) string {
	customPath = strings.TrimSpace(customPath)
	switch {
	case customPath == "":
		return filepath.Join(s.root, filepath.FromSlash(DefaultRulesDir))
	case filepath.IsAbs(customPath):
		return filepath.Clean(customPath)
	default:
		return filepath.Join(s.root, filepath.FromSlash(customPath))
	}
}

func (s *Store) loadDirectory(dir string, next func() int) []Rule {
	if ok, _ := afero.DirExists(s.fs, dir); !ok {
		return nil
	}

	var out []Rule
	// afero.Walk visits entries in lexical order, which fixes the read order.
	_ = afero.Walk(s.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("skipping unreadable rule path")
			return nil
		}
		if info.IsDir() || !ruleExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}

		raw, err := afero.ReadFile(s.fs, p)
		if err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("skipping unreadable rule")
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		rel = filepath.ToSlash(rel)

		r, err := parseRule(raw, strings.TrimSuffix(rel, path.Ext(rel)))
		if err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("skipping malformed rule")
			return nil
		}
		r.Source = s.relToRoot(p)
		r.Order = next()
		r.References = s.resolveReferences(r.Body, filepath.Dir(p))
		out = append(out, r)
		return nil
	})
	return out
}

func (s *Store) loadSingle(name string, kind Kind, next func() int) (Rule, bool) {
	p := filepath.Join(s.root, name)
	raw, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", p).Msg("skipping unreadable rule document")
		}
		return Rule{}, false
	}

	body := strings.TrimSpace(string(raw))
	if body == "" {
		return Rule{}, false
	}

	id := strings.TrimPrefix(strings.TrimSuffix(name, path.Ext(name)), ".")
	if id == "" {
		id = strings.TrimPrefix(name, ".")
	}
	r := Rule{
		ID:     id,
		Name:   name,
		Kind:   kind,
		Body:   body,
		Source: name,
		Order:  next(),
	}
	r.References = s.resolveReferences(body, s.root)
	return r, true
}

// parseRule turns one rules-directory document into a Rule. id is the path
// relative to the rules directory without extension.
func parseRule(raw []byte, id string) (Rule, error) {
	header, body, hasHeader := splitFrontMatter(raw)
	r := Rule{
		ID:   id,
		Name: path.Base(id),
		Body: strings.TrimSpace(body),
	}

	if !hasHeader {
		r.Kind = KindLegacy
		if r.Body == "" {
			return r, errors.New("empty rule document")
		}
		return r, nil
	}

	fm, err := parseFrontMatter(header)
	if err != nil {
		return r, err
	}
	if fm.Name != "" {
		r.Name = strings.TrimSpace(fm.Name)
	}
	r.Description = strings.TrimSpace(fm.Description)
	r.Globs = normalizeGlobs(fm.Globs)

	explicit, known := parseKind(fm.Kind)
	switch {
	case known:
		r.Kind = explicit
	case fm.AlwaysApply || fm.AlwaysApplySnake:
		r.Kind = KindAlways
	case len(r.Globs) > 0:
		r.Kind = KindPathScoped
	default:
		r.Kind = KindManual
	}

	if r.Body == "" && r.Description == "" {
		return r, errors.New("rule has neither body nor description")
	}
	return r, nil
}

func normalizeGlobs(in []string) []string {
	var out []string
	for _, g := range in {
		g = strings.TrimSpace(g)
		g = strings.TrimPrefix(g, "./")
		g = strings.TrimPrefix(g, "/")
		if strings.HasSuffix(g, "/") {
			g += "**"
		}
		if g != "" {
			out = append(out, g)
		}
	}
	return out
}

// resolveReferences loads files named by @path tokens, first relative to
// the document directory and then to the root. Paths escaping the root are
// ignored.
func (s *Store) resolveReferences(body, docDir string) []Reference {
	matches := referencePattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := map[string]bool{}
	var refs []Reference
	for _, m := range matches {
		ref := strings.TrimRight(m[1], ".")
		if seen[ref] || len(refs) >= maxReferences {
			continue
		}
		seen[ref] = true

		content, resolved, ok := s.readReference(ref, docDir)
		if !ok {
			s.log.Warn().Str("reference", ref).Msg("rule reference not found")
			continue
		}
		if len(content) > maxBytesPerReference {
			content = content[:common.RuneBoundary(content, maxBytesPerReference)] + "\n...[truncated]"
		}
		refs = append(refs, Reference{Path: resolved, Content: content})
	}
	return refs
}

func (s *Store) readReference(ref, docDir string) (content, rel string, ok bool) {
	for _, base := range []string{docDir, s.root} {
		p := filepath.Clean(filepath.Join(base, filepath.FromSlash(ref)))
		if !s.withinRoot(p) {
			continue
		}
		raw, err := afero.ReadFile(s.fs, p)
		if err != nil {
			continue
		}
		return string(raw), s.relToRoot(p), true
	}
	return "", "", false
}

func (s *Store) withinRoot(p string) bool {
	rel, err := filepath.Rel(s.root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *Store) relToRoot(p string) string {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}
