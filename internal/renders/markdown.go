package renders

import (
	"io"
	"os"

	markdown "github.com/MichaelMure/go-term-markdown"

	"github.com/sanix-darker/prbot/internal/common"
)

const (
	defaultWidth = 100
	leftPad      = 2
)

// RenderMarkdown renders content for a terminal at the width of stdout.
func RenderMarkdown(content string) string {
	return RenderMarkdownWidth(content, common.TerminalWidth(os.Stdout, defaultWidth))
}

// RenderMarkdownWidth renders content wrapped at width columns.
func RenderMarkdownWidth(content string, width int) string {
	if content == "" {
		return ""
	}
	if width <= leftPad {
		width = defaultWidth
	}
	return string(markdown.Render(content, width-leftPad, leftPad))
}

// Print writes content to w, rendered when w is a terminal and raw
// otherwise so that piped output stays valid markdown.
func Print(w io.Writer, content string) error {
	if !common.IsTerminal(w) {
		_, err := io.WriteString(w, content)
		return err
	}
	_, err := io.WriteString(w, RenderMarkdownWidth(content, common.TerminalWidth(w, defaultWidth)))
	return err
}
