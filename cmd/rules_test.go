package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sanix-darker/prbot/internal/rules"
)

func TestPrintRules(t *testing.T) {
	set := rules.RuleSet{
		Rules: []rules.Rule{
			{ID: "ts", Name: "typescript", Kind: rules.KindPathScoped, Globs: []string{"*.ts"}, Source: ".cursor/rules/ts.mdc", Order: 1},
		},
		Agents: &rules.Rule{ID: "agents", Name: "AGENTS.md", Kind: rules.KindAlways, Source: "AGENTS.md", Order: 2},
	}

	var buf bytes.Buffer
	printRules(&buf, set, []string{"web/app.ts", "main.go"})

	out := buf.String()
	assert.Contains(t, out, "2 rules loaded:")
	assert.Contains(t, out, "*.ts (.cursor/rules/ts.mdc)")
	assert.Contains(t, out, "all files (AGENTS.md)")
	assert.Contains(t, out, "web/app.ts: typescript, AGENTS.md\n")
	assert.Contains(t, out, "main.go: AGENTS.md\n")
}

func TestPrintRules_Empty(t *testing.T) {
	var buf bytes.Buffer
	printRules(&buf, rules.RuleSet{}, nil)
	assert.Equal(t, "No rules found.\n", buf.String())
}
