package review

import (
	"errors"

	"github.com/sanix-darker/prbot/internal/autofix"
	"github.com/sanix-darker/prbot/internal/comments"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/vcs"
)

// ErrNoPullRequest is returned when the run cannot tell which pull request
// it is reviewing.
var ErrNoPullRequest = errors.New("review: no pull request context")

// State is a step of the pipeline state machine.
type State string

const (
	StateInit        State = "init"
	StateRulesLoaded State = "rules_loaded"
	StateFilesLoaded State = "files_loaded"
	StatePlanned     State = "planned"
	StateReviewing   State = "reviewing"
	StateAggregated  State = "aggregated"
	StateAutoFixing  State = "auto_fixing"
	StateCommented   State = "commented"
	StateDone        State = "done"
	StateSkipped     State = "skipped"
)

// Target identifies the change set under review. A remote run sets Repo and
// Number and lets the pipeline fetch the rest; a local run supplies PR and
// Files directly.
type Target struct {
	Repo   vcs.Repo
	Number int
	PR     *vcs.PullRequest
	Files  []core.FileChange
}

// Batch is a contiguous slice of the files to review.
type Batch struct {
	Files []core.FileChange
	// Index is zero-based; Total is the number of batches of the run.
	Index int
	Total int
}

// Result is the aggregate output of a run.
type Result struct {
	PR            *vcs.PullRequest
	Issues        []core.Issue
	FilesReviewed int
	TotalFiles    int
	AppliedRules  []string
	Summary       string
	Status        core.Outcome
	Plan          core.PRPlan

	Skipped    bool
	SkipReason string

	// Files are the changes that passed filtering, in review order.
	Files    []core.FileChange
	Fixes    []autofix.Result
	Comments comments.Stats
	State    State
}

// Counts returns the number of issues per severity.
func (r *Result) Counts() map[core.Severity]int {
	return core.CountBySeverity(r.Issues)
}

// FixesApplied returns how many auto-fixes were written.
func (r *Result) FixesApplied() int {
	n := 0
	for _, f := range r.Fixes {
		if f.Applied {
			n++
		}
	}
	return n
}
