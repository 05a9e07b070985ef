package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/go-github/v68/github"
	"github.com/sanix-darker/prbot/internal/vcs"
)

// ErrNotPullRequestEvent is returned when the workflow event carries no
// pull request.
var ErrNotPullRequestEvent = errors.New("github: event does not reference a pull request")

// EventContext is what a workflow event tells about the pull request.
type EventContext struct {
	Repo    vcs.Repo
	Number  int
	HeadSHA string
}

// LoadEvent reads the payload at $GITHUB_EVENT_PATH. pull_request,
// pull_request_target and issue_comment (on a pull request) are supported.
func LoadEvent(path string) (EventContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return EventContext{}, fmt.Errorf("github: read event: %w", err)
	}
	return ParseEvent(raw)
}

// ParseEvent decodes an event payload.
func ParseEvent(raw []byte) (EventContext, error) {
	var prEvent github.PullRequestEvent
	if err := json.Unmarshal(raw, &prEvent); err != nil {
		return EventContext{}, fmt.Errorf("github: decode event: %w", err)
	}

	var ec EventContext
	if r := prEvent.GetRepo(); r != nil {
		ec.Repo = vcs.Repo{Owner: r.GetOwner().GetLogin(), Name: r.GetName()}
	}
	if pr := prEvent.GetPullRequest(); pr != nil {
		ec.Number = pr.GetNumber()
		ec.HeadSHA = pr.GetHead().GetSHA()
		if ec.Number == 0 {
			ec.Number = prEvent.GetNumber()
		}
		return ec, nil
	}

	var commentEvent github.IssueCommentEvent
	if err := json.Unmarshal(raw, &commentEvent); err == nil {
		if issue := commentEvent.GetIssue(); issue != nil && issue.IsPullRequest() {
			ec.Number = issue.GetNumber()
			return ec, nil
		}
	}
	return ec, ErrNotPullRequestEvent
}
