/*
Copyright © 2023 sanix-darker <s4nixd@gmail.com>
*/
package common

import (
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
)

// LogFormat selects the log encoder.
type LogFormat string

const (
	LogConsole LogFormat = "console"
	LogJSON    LogFormat = "json"
)

// NewLogger builds the run logger. Console output is meant for humans and
// local runs, JSON for CI log collectors. Every entry carries the run id.
func NewLogger(w io.Writer, debug bool, format LogFormat) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	out := w
	if format != LogJSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: !IsTerminal(w)}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("run_id", NewRunID()).
		Logger()
}

// NewRunID returns a short identifier for a single review run.
func NewRunID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// ExpandPath resolves a leading "~" to the user home directory.
// Paths that cannot be expanded are returned unchanged.
func ExpandPath(path string) string {
	expanded, err := homedir.Expand(strings.TrimSpace(path))
	if err != nil {
		return path
	}
	return expanded
}

// SplitList splits a comma or newline separated value, trimming blanks.
// Action inputs arrive as a single string; flags may repeat. Commas inside
// glob brace alternation such as "*.{ts,tsx}" do not split.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range splitTopLevel(v) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '\n':
			parts = append(parts, s[start:i])
			start = i + 1
			depth = 0
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// Truncate cuts s to at most n bytes, marking the cut. The cut never
// splits a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:RuneBoundary(s, n)] + "\n... (truncated)"
}

// RuneBoundary returns the largest index <= n that does not fall inside a
// multi-byte rune of s.
func RuneBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	if n <= 0 {
		return 0
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
