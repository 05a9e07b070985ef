package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/review"
)

// stepOutputs returns the action outputs of a run, in a stable order.
func stepOutputs(res *review.Result) [][2]string {
	counts := res.Counts()
	return [][2]string{
		{"status", string(res.Status)},
		{"issues", strconv.Itoa(len(res.Issues))},
		{"errors", strconv.Itoa(counts[core.SeverityError])},
		{"warnings", strconv.Itoa(counts[core.SeverityWarning])},
		{"files_reviewed", strconv.Itoa(res.FilesReviewed)},
		{"summary", res.Summary},
	}
}

// writeOutputs appends the outputs to the $GITHUB_OUTPUT file. An empty
// path means the run is not inside GitHub Actions.
func writeOutputs(path string, res *review.Result) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return encodeOutputs(f, stepOutputs(res))
}

// encodeOutputs writes name=value lines, switching to the heredoc form for
// multi-line values.
func encodeOutputs(w io.Writer, outputs [][2]string) error {
	for _, kv := range outputs {
		name, value := kv[0], kv[1]
		var err error
		if strings.ContainsAny(value, "\r\n") {
			delim := "PRBOT_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			_, err = fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", name, delim, value, delim)
		} else {
			_, err = fmt.Fprintf(w, "%s=%s\n", name, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
