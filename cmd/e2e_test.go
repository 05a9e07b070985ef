package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/object"

	"github.com/sanix-darker/prbot/internal/config"
)

const e2eRule = `---
description: Go conventions
globs: "*.go"
---
Never ignore errors.
`

// fakeAI answers like an OpenAI-compatible chat endpoint, picking the reply
// from the kind of prompt it receives.
func fakeAI(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		body := string(raw)

		content := `{"issues":[{"severity":"error","category":"bug","file":"app.go","line":3,"message":"error from os.Open is ignored"}]}`
		switch {
		case strings.Contains(body, "preparing the review"):
			content = `{"overview":"Opens a file.","key_changes":["app.go"],"risk_areas":[],"review_focus":["errors"],"context":""}`
		case strings.Contains(body, "writing the summary comment"):
			content = "One error: an ignored error in app.go."
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-test",
			"model": "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

type fakeGitHub struct {
	mu      sync.Mutex
	inline  []map[string]any
	summary []map[string]any
}

func (g *fakeGitHub) server(t *testing.T) *httptest.Server {
	patch := "@@ -1,2 +1,3 @@\n package app\n func open() { os.Open(\"x\") }\n+func close() { os.Remove(\"x\") }\n"
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"resources": map[string]any{"core": map[string]any{"limit": 5000, "remaining": 4999, "reset": time.Now().Add(time.Hour).Unix()}}})
	})
	mux.HandleFunc("/repos/acme/app/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{
			"number": 7, "title": "Open files", "state": "open",
			"head": map[string]any{"ref": "feature", "sha": "headsha"},
			"base": map[string]any{"ref": "main", "sha": "basesha"},
		})
	})
	mux.HandleFunc("/repos/acme/app/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		reply(w, []map[string]any{
			{"filename": "app.go", "status": "modified", "additions": 1, "deletions": 0, "changes": 1, "patch": patch},
			{"filename": "go.sum", "status": "modified", "additions": 3, "deletions": 3, "changes": 6},
		})
	})
	mux.HandleFunc("/repos/acme/app/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
		g.handle(t, w, r, &g.inline)
	})
	mux.HandleFunc("/repos/acme/app/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		g.handle(t, w, r, &g.summary)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected GitHub call %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})
	return httptest.NewServer(mux)
}

func (g *fakeGitHub) handle(t *testing.T, w http.ResponseWriter, r *http.Request, store *[]map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		_ = json.NewEncoder(w).Encode(*store)
		return
	}
	var c map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
	c["id"] = len(*store) + 1
	c["user"] = map[string]any{"login": "github-actions[bot]"}
	*store = append(*store, c)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(c)
}

// useSettings replaces the package settings for one test.
func useSettings(t *testing.T, set map[string]any) {
	t.Helper()
	prev := v
	v = viper.New()
	require.NoError(t, config.Bind(v, nil))
	for k, val := range set {
		v.Set(k, val)
	}
	t.Cleanup(func() { v = prev })
}

func workspace(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cursor", "rules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cursor", "rules", "go.mdc"), []byte(e2eRule), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.go"),
		[]byte("package app\nfunc open() { os.Open(\"x\") }\nfunc close() { os.Remove(\"x\") }\n"), 0o644))
	return dir
}

func TestE2E_ReviewPullRequest(t *testing.T) {
	ai := fakeAI(t)
	defer ai.Close()
	gh := &fakeGitHub{}
	ghServer := gh.server(t)
	defer ghServer.Close()

	output := filepath.Join(t.TempDir(), "github_output")
	t.Setenv("GITHUB_OUTPUT", output)
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_API_BASE", ai.URL)

	useSettings(t, map[string]any{
		config.KeyProvider:     "openai",
		config.KeyWorkspace:    workspace(t),
		config.KeyGitHubToken:  "ghs_test",
		config.KeyGitHubAPIURL: ghServer.URL,
		config.KeyRepository:   "acme/app",
		config.KeyPRNumber:     7,
		config.KeyDelayMS:      0,
	})

	var out bytes.Buffer
	require.NoError(t, runReview(context.Background(), &out))
	assert.Empty(t, out.String(), "the report is only printed on dry runs")

	require.Len(t, gh.inline, 1)
	assert.Equal(t, "app.go", gh.inline[0]["path"])
	assert.EqualValues(t, 3, gh.inline[0]["line"])
	assert.Equal(t, "headsha", gh.inline[0]["commit_id"])
	assert.Contains(t, gh.inline[0]["body"], "error from os.Open is ignored")

	require.Len(t, gh.summary, 1)
	assert.Contains(t, gh.summary[0]["body"], "One error: an ignored error in app.go.")

	raw, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "status=needs_attention\n")
	assert.Contains(t, string(raw), "errors=1\n")
	assert.Contains(t, string(raw), "files_reviewed=1\n")
}

func TestE2E_LocalDryRun(t *testing.T) {
	ai := fakeAI(t)
	defer ai.Close()
	t.Setenv("GITHUB_OUTPUT", "")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_API_BASE", ai.URL)

	dir := workspace(t)
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	sig := &object.Signature{Name: "Test", Email: "test@test.com", When: time.Now()}

	_, err = wt.Add(".cursor/rules/go.mdc")
	require.NoError(t, err)
	base, err := wt.Commit("rules", &git.CommitOptions{Author: sig})
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), base)))
	_, err = wt.Add("app.go")
	require.NoError(t, err)
	_, err = wt.Commit("add app", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	useSettings(t, map[string]any{
		config.KeyProvider:  "openai",
		config.KeyWorkspace: dir,
		config.KeyLocal:     true,
		config.KeyBase:      "main",
		config.KeyDelayMS:   0,
	})

	var out bytes.Buffer
	require.NoError(t, runReview(context.Background(), &out))

	report := out.String()
	assert.Contains(t, report, "# Review")
	assert.Contains(t, report, "error from os.Open is ignored")
	assert.Contains(t, report, "One error: an ignored error in app.go.")
}

func TestE2E_MissingToken(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	useSettings(t, map[string]any{
		config.KeyProvider:    "openai",
		config.KeyWorkspace:   t.TempDir(),
		config.KeyGitHubToken: "",
		config.KeyRepository:  "acme/app",
		config.KeyPRNumber:    7,
	})
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv("PRBOT_GITHUB_TOKEN", "")
	t.Setenv("INPUT_GITHUB_TOKEN", "")

	err := runReview(context.Background(), io.Discard)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
