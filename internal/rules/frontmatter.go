package rules

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/sanix-darker/prbot/internal/common"
	"gopkg.in/yaml.v3"
)

type frontMatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Kind        string   `yaml:"kind"`
	Globs       globList `yaml:"globs"`
	AlwaysApply bool     `yaml:"alwaysApply"`
	// snake_case spelling used by some rule generators
	AlwaysApplySnake bool `yaml:"always_apply"`
}

// globList accepts `globs: ["a", "b"]`, a YAML sequence, or a single
// comma separated string.
type globList []string

func (g *globList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*g = splitGlobs(n.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err != nil {
			return err
		}
		var out []string
		for _, it := range items {
			out = append(out, splitGlobs(it)...)
		}
		*g = out
		return nil
	}
	return fmt.Errorf("globs: expected string or list, got %v", n.Tag)
}

func splitGlobs(s string) []string {
	var out []string
	for _, part := range common.SplitList(s) {
		part = strings.Trim(part, `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// bareGlobsLine matches `globs: *.ts, src/**` where the unquoted leading
// `*` would otherwise be read as a YAML alias.
var bareGlobsLine = regexp.MustCompile(`(?m)^([ \t]*globs[ \t]*:[ \t]*)([^\s"'\[\-|>{][^\n]*?)[ \t]*$`)

// splitFrontMatter separates a `---` delimited header from the body.
// ok is false when the document has no header.
func splitFrontMatter(raw []byte) (header []byte, body string, ok bool) {
	content := bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(content, []byte("---\n")) {
		return nil, string(content), false
	}
	rest := content[len("---\n"):]

	end := 0
	if !bytes.HasPrefix(rest, []byte("---")) {
		end = bytes.Index(rest, []byte("\n---"))
		if end < 0 {
			return nil, string(content), false
		}
		end++
	}

	header = rest[:end]
	after := rest[end+len("---"):]
	// drop the remainder of the closing delimiter line
	if i := bytes.IndexByte(after, '\n'); i >= 0 {
		after = after[i+1:]
	} else {
		after = nil
	}
	return header, string(after), true
}

func parseFrontMatter(header []byte) (frontMatter, error) {
	var fm frontMatter
	if len(bytes.TrimSpace(header)) == 0 {
		return fm, nil
	}
	quoted := bareGlobsLine.ReplaceAllFunc(header, func(line []byte) []byte {
		m := bareGlobsLine.FindSubmatch(line)
		return []byte(fmt.Sprintf("%s%q", m[1], string(m[2])))
	})
	if err := yaml.Unmarshal(quoted, &fm); err != nil {
		return fm, fmt.Errorf("front matter: %w", err)
	}
	return fm, nil
}
