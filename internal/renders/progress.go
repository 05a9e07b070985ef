package renders

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"

	"github.com/sanix-darker/prbot/internal/common"
)

// Progress reports long-running steps on w: a spinner on a terminal, one
// line per step elsewhere (CI logs).
type Progress struct {
	w io.Writer
	s *spinner.Spinner
}

// NewProgress creates a Progress writing to w.
func NewProgress(w io.Writer) *Progress {
	p := &Progress{w: w}
	if common.IsTerminal(w) {
		p.s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	}
	return p
}

// Step shows msg as the current step.
func (p *Progress) Step(msg string) {
	if p.s == nil {
		fmt.Fprintf(p.w, "[prbot] %s\n", msg)
		return
	}
	p.s.Suffix = " " + msg
	if !p.s.Active() {
		p.s.Start()
	}
}

// Stop clears the spinner.
func (p *Progress) Stop() {
	if p.s != nil && p.s.Active() {
		p.s.Stop()
	}
}
