package common

import (
	"errors"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrClipboardUnsupported is returned on hosts without a clipboard utility
// (most CI runners).
var ErrClipboardUnsupported = errors.New("clipboard not supported on this host")

// IsTerminal reports whether w is attached to a TTY.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of the terminal behind w, or fallback.
func TerminalWidth(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}
