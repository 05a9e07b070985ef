package renders

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown(t *testing.T) {
	result := RenderMarkdownWidth("# Hello\n\nThis is **bold** text.", 80)
	assert.NotEmpty(t, result)
	assert.Contains(t, result, "Hello")
}

func TestRenderMarkdown_Empty(t *testing.T) {
	assert.Equal(t, "", RenderMarkdown(""))
}

func TestRenderMarkdown_CodeBlock(t *testing.T) {
	input := "```go\nfunc main() {\n    fmt.Println(\"hello\")\n}\n```"
	result := RenderMarkdownWidth(input, 0)
	assert.Contains(t, result, "func main()")
}

func TestPrint_NotTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, "# Title\n"))
	assert.Equal(t, "# Title\n", buf.String())
}

func TestProgress_NotTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	p.Step("loading rules")
	p.Step("reviewing batch 1/2")
	p.Stop()
	assert.Equal(t, "[prbot] loading rules\n[prbot] reviewing batch 1/2\n", buf.String())
}
