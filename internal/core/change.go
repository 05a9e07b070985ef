package core

import "strings"

// ChangeStatus is the kind of change applied to a file in a pull request.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusRemoved  ChangeStatus = "removed"
	StatusRenamed  ChangeStatus = "renamed"
)

// ParseChangeStatus maps hosting-platform status strings onto ChangeStatus.
func ParseChangeStatus(raw string) ChangeStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "added", "new":
		return StatusAdded
	case "removed", "deleted":
		return StatusRemoved
	case "renamed":
		return StatusRenamed
	default:
		return StatusModified
	}
}

// FileChange is one file touched by the pull request.
type FileChange struct {
	Path         string
	Status       ChangeStatus
	PreviousPath string
	Additions    int
	Deletions    int
	Changes      int
	// Patch is the unified diff for the file. It is empty for binary files
	// and for diffs the platform considered too large to return.
	Patch string
}

// NewFileChange builds a FileChange keeping Changes == Additions + Deletions.
func NewFileChange(path string, status ChangeStatus, additions, deletions int, patch string) FileChange {
	return FileChange{
		Path:      path,
		Status:    status,
		Additions: additions,
		Deletions: deletions,
		Changes:   additions + deletions,
		Patch:     patch,
	}
}

// HasPatch reports whether a diff is available for inline placement.
func (f FileChange) HasPatch() bool {
	return strings.TrimSpace(f.Patch) != ""
}

// Removed reports whether the file no longer exists at the head revision.
func (f FileChange) Removed() bool {
	return f.Status == StatusRemoved
}

// Paths returns the path of every change, in order.
func Paths(files []FileChange) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

// PRPlan is the cross-file overview computed before batch review.
type PRPlan struct {
	Overview    string   `json:"overview"`
	KeyChanges  []string `json:"key_changes"`
	RiskAreas   []string `json:"risk_areas"`
	ReviewFocus []string `json:"review_focus"`
	Context     string   `json:"context"`

	// Fallback is set when the plan was built locally because the AI call
	// failed or returned nothing usable.
	Fallback bool `json:"-"`
}

// IsEmpty reports whether the plan carries no information.
func (p PRPlan) IsEmpty() bool {
	return strings.TrimSpace(p.Overview) == "" &&
		len(p.KeyChanges) == 0 &&
		len(p.RiskAreas) == 0 &&
		len(p.ReviewFocus) == 0 &&
		strings.TrimSpace(p.Context) == ""
}
