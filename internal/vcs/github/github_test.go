package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/vcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acme = vcs.Repo{Owner: "acme", Name: "blog"}

func newTestProvider(t *testing.T, h http.HandlerFunc) vcs.Provider {
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	p, err := NewProvider(vcs.Connection{Token: "token-123", BaseURL: server.URL})
	require.NoError(t, err)
	return p
}

func TestProvider_GetPullRequestAndFiles(t *testing.T) {
	var gotAuth string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/repos/acme/blog/pulls/42":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"number":   42,
				"title":    "Add recipe endpoints",
				"body":     "Adds API endpoints for posts.",
				"user":     map[string]interface{}{"login": "octo"},
				"head":     map[string]interface{}{"ref": "feature", "sha": "headsha"},
				"base":     map[string]interface{}{"ref": "main", "sha": "basesha"},
				"state":    "open",
				"html_url": "https://example.com/pr/42",
			})
		case "/repos/acme/blog/pulls/42/files":
			if r.URL.Query().Get("page") == "2" {
				_ = json.NewEncoder(w).Encode([]map[string]interface{}{
					{"filename": "new.go", "previous_filename": "old.go", "status": "renamed", "additions": 0, "deletions": 0, "changes": 0},
				})
				return
			}
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2>; rel="next"`, r.Host, r.URL.Path))
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{
					"filename":  "public/index.php",
					"status":    "modified",
					"additions": 1,
					"deletions": 1,
					"changes":   5,
					"patch":     "@@ -1,2 +1,2 @@\n- old\n+ new\n",
				},
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	pr, err := p.GetPullRequest(context.Background(), acme, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, pr.Number)
	assert.Equal(t, "Add recipe endpoints", pr.Title)
	assert.Equal(t, "octo", pr.Author)
	assert.Equal(t, "feature", pr.HeadBranch)
	assert.Equal(t, "main", pr.BaseBranch)
	assert.Equal(t, "headsha", pr.HeadSHA)
	assert.Equal(t, "basesha", pr.BaseSHA)
	assert.Equal(t, "Bearer token-123", gotAuth)

	files, err := p.ListFiles(context.Background(), acme, 42)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "public/index.php", files[0].Path)
	assert.Equal(t, core.StatusModified, files[0].Status)
	assert.Equal(t, 2, files[0].Changes, "changes is recomputed")
	assert.Contains(t, files[0].Patch, "+ new")
	assert.Equal(t, core.StatusRenamed, files[1].Status)
	assert.Equal(t, "old.go", files[1].PreviousPath)
}

func TestProvider_GetFileContent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/acme/blog/contents/src/a.go":
			assert.Equal(t, "headsha", r.URL.Query().Get("ref"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"type":     "file",
				"path":     "src/a.go",
				"encoding": "base64",
				"content":  base64.StdEncoding.EncodeToString([]byte("package a\n")),
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		}
	})

	got, err := p.GetFileContent(context.Background(), acme, "src/a.go", "headsha")
	require.NoError(t, err)
	assert.Equal(t, "package a\n", got)

	_, err = p.GetFileContent(context.Background(), acme, "missing.go", "headsha")
	assert.ErrorIs(t, err, vcs.ErrNotFound)
}

func TestProvider_IssueComments(t *testing.T) {
	var created, edited map[string]interface{}
	var deleted string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/blog/issues/42/comments":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 7, "body": "<!-- prbot:summary -->", "user": map[string]interface{}{"login": "github-actions[bot]"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/blog/issues/42/comments":
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &created)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 8, "body": "summary"}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/repos/acme/blog/issues/comments/7":
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &edited)
			_, _ = w.Write([]byte(`{"id": 7}`))
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	comments, err := p.ListIssueComments(ctx, acme, 42)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, int64(7), comments[0].ID)
	assert.Equal(t, "github-actions[bot]", comments[0].Author)

	c, err := p.CreateIssueComment(ctx, acme, 42, "summary")
	require.NoError(t, err)
	assert.Equal(t, int64(8), c.ID)
	assert.Equal(t, "summary", created["body"])

	require.NoError(t, p.UpdateIssueComment(ctx, acme, 42, 7, "updated"))
	assert.Equal(t, "updated", edited["body"])

	require.NoError(t, p.DeleteIssueComment(ctx, acme, 42, 9))
	assert.Equal(t, "/repos/acme/blog/issues/comments/9", deleted)
}

func TestProvider_ReviewComments(t *testing.T) {
	var inline map[string]interface{}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/blog/pulls/42/comments":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 101, "body": "finding", "path": "public/index.php", "line": 31, "commit_id": "headsha", "user": map[string]interface{}{"login": "bot"}},
				{"id": 102, "body": "reply", "path": "public/index.php", "line": 31, "in_reply_to_id": 101, "user": map[string]interface{}{"login": "dev"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/blog/pulls/42/comments":
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &inline)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 103, "path": "public/index.php", "line": 12}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/repos/acme/blog/pulls/comments/101":
			_, _ = w.Write([]byte(`{"id": 101}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	comments, err := p.ListReviewComments(ctx, acme, 42)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "public/index.php", comments[0].Path)
	assert.Equal(t, 31, comments[0].Line)
	assert.Equal(t, int64(0), comments[0].InReplyTo)
	assert.Equal(t, int64(101), comments[1].InReplyTo)

	c, err := p.CreateReviewComment(ctx, acme, 42, vcs.NewReviewComment{
		Path:     "public/index.php",
		Line:     12,
		Body:     "inline",
		CommitID: "headsha",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(103), c.ID)
	assert.Equal(t, "inline", inline["body"])
	assert.Equal(t, "headsha", inline["commit_id"])
	assert.Equal(t, "public/index.php", inline["path"])
	assert.Equal(t, float64(12), inline["line"])
	assert.Equal(t, "RIGHT", inline["side"])

	assert.NoError(t, p.UpdateReviewComment(ctx, acme, 42, 101, "new body"))
}

func TestProvider_RateLimit(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rate_limit", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"resources": {"core": {"limit": 5000, "remaining": 42, "reset": 1700000000}}}`))
	})

	rl, err := p.RateLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, rl.Limit)
	assert.Equal(t, 42, rl.Remaining)
	assert.True(t, rl.Low())
}

func TestFormatSuggestionBlock(t *testing.T) {
	p := &Provider{}
	assert.Equal(t, "```suggestion\nx := 1\n```", p.FormatSuggestionBlock("x := 1\n"))
}

func TestParseEvent(t *testing.T) {
	ec, err := ParseEvent([]byte(`{
  "action": "synchronize",
  "number": 42,
  "pull_request": {"number": 42, "head": {"sha": "abc"}},
  "repository": {"name": "blog", "owner": {"login": "acme"}}
}`))
	require.NoError(t, err)
	assert.Equal(t, EventContext{Repo: acme, Number: 42, HeadSHA: "abc"}, ec)

	ec, err = ParseEvent([]byte(`{
  "action": "created",
  "issue": {"number": 7, "pull_request": {"url": "https://api.github.com/repos/acme/blog/pulls/7"}},
  "repository": {"name": "blog", "owner": {"login": "acme"}}
}`))
	require.NoError(t, err)
	assert.Equal(t, 7, ec.Number)

	_, err = ParseEvent([]byte(`{"ref": "refs/heads/main", "repository": {"name": "blog", "owner": {"login": "acme"}}}`))
	assert.ErrorIs(t, err, ErrNotPullRequestEvent)
}

func TestLoadEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pull_request": {"number": 3}}`), 0o644))

	ec, err := LoadEvent(path)
	require.NoError(t, err)
	assert.Equal(t, 3, ec.Number)

	_, err = LoadEvent(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
