package version

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
)

var (
	// Set via -ldflags at release time.
	gitCommit = "unknown"
	version   = "dev"
	buildDate = "1970-01-01 00:00:00 +0000"
)

var goVersion = runtime.Version()

var osArch = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)

// Version returns the release version of the binary.
func Version() string {
	return version
}

// Commit returns the commit the binary was built from. Without ldflags it
// falls back to the VCS stamp of `go build`, when present.
func Commit() string {
	if gitCommit != "unknown" {
		return gitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return gitCommit
}

// UserAgent identifies prbot to the APIs it calls.
func UserAgent() string {
	return "prbot/" + version
}

func generateOutput() string {
	return fmt.Sprintf(`prbot - %s

Git Commit: %s
Build date: %s
Go version: %s
OS / Arch : %s
`, version, Commit(), buildDate, goVersion, osArch)
}

// Fprint writes the version report to w.
func Fprint(w io.Writer) {
	fmt.Fprintln(w, generateOutput())
}

// Print writes the version report to stdout.
func Print() {
	Fprint(os.Stdout)
}
