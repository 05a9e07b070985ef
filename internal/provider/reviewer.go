package provider

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/rules"
	"github.com/spf13/cast"
)

// ErrEmptyResponse is returned when the model answered with nothing usable.
var ErrEmptyResponse = errors.New("provider: empty response")

// PRContext is the pull request metadata quoted in prompts.
type PRContext struct {
	Title       string
	Description string
	BaseBranch  string
	HeadBranch  string
}

// FileInput is one changed file handed to the reviewer. Content is the full
// file after the change and is empty for removed or unreadable files.
type FileInput struct {
	Change  core.FileChange
	Content string
}

// ReviewContext is shared by the file review calls of a run.
type ReviewContext struct {
	PR         PRContext
	Rules      []rules.Rule
	Plan       core.PRPlan
	Strictness string
}

// SummaryContext feeds GenerateSummary.
type SummaryContext struct {
	PR            PRContext
	Plan          core.PRPlan
	FilesReviewed int
	TotalFiles    int
	AppliedRules  []string
}

// Reviewer is what the review pipeline needs from an AI backend.
type Reviewer interface {
	ReviewSingle(ctx context.Context, file FileInput, rc ReviewContext) ([]core.Issue, error)
	ReviewBatch(ctx context.Context, files []FileInput, rc ReviewContext) ([]core.Issue, error)
	GeneratePlan(ctx context.Context, files []core.FileChange, pr PRContext) (core.PRPlan, error)
	GenerateSummary(ctx context.Context, issues []core.Issue, sc SummaryContext) (string, error)
}

// ChatReviewer implements Reviewer on top of any chat AIProvider. Calls go
// through the pacer, so a single ChatReviewer never has two requests in
// flight.
type ChatReviewer struct {
	provider    AIProvider
	pacer       *Pacer
	log         zerolog.Logger
	timeout     time.Duration
	maxTokens   int
	temperature float64
}

// ReviewerOption customizes a ChatReviewer.
type ReviewerOption func(*ChatReviewer)

// WithTimeout bounds every single AI call.
func WithTimeout(d time.Duration) ReviewerOption {
	return func(r *ChatReviewer) { r.timeout = d }
}

// WithMaxTokens caps the response length of review calls.
func WithMaxTokens(n int) ReviewerOption {
	return func(r *ChatReviewer) { r.maxTokens = n }
}

// NewChatReviewer wraps p. A nil pacer means calls are not paced.
func NewChatReviewer(p AIProvider, pacer *Pacer, log zerolog.Logger, opts ...ReviewerOption) *ChatReviewer {
	r := &ChatReviewer{
		provider:    p,
		pacer:       pacer,
		log:         log,
		timeout:     120 * time.Second,
		maxTokens:   4096,
		temperature: 0.1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReviewSingle reviews one file. Every returned issue is attributed to it.
func (r *ChatReviewer) ReviewSingle(ctx context.Context, file FileInput, rc ReviewContext) ([]core.Issue, error) {
	content, err := r.complete(ctx, "review_single", SystemPrompt(rc.Strictness), BuildSinglePrompt(file, rc), true)
	if err != nil {
		return nil, err
	}

	issues := r.parseIssues(content)
	for i := range issues {
		issues[i].File = file.Change.Path
	}
	return issues, nil
}

// ReviewBatch reviews several files in one call. Issues naming a file that
// is not part of the batch are dropped.
func (r *ChatReviewer) ReviewBatch(ctx context.Context, files []FileInput, rc ReviewContext) ([]core.Issue, error) {
	if len(files) == 0 {
		return nil, nil
	}
	content, err := r.complete(ctx, "review_batch", SystemPrompt(rc.Strictness), BuildBatchPrompt(files, rc), true)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Change.Path)
	}

	var out []core.Issue
	for _, is := range r.parseIssues(content) {
		p, ok := attributeFile(is.File, paths)
		if !ok {
			r.log.Debug().Str("file", is.File).Str("message", is.Message).Msg("dropping issue outside of batch")
			continue
		}
		is.File = p
		out = append(out, is)
	}
	return out, nil
}

// GeneratePlan asks for the cross-file overview used by every batch.
func (r *ChatReviewer) GeneratePlan(ctx context.Context, files []core.FileChange, pr PRContext) (core.PRPlan, error) {
	content, err := r.complete(ctx, "plan", "", BuildPlanPrompt(files, pr), true)
	if err != nil {
		return core.PRPlan{}, err
	}

	obj, stage, ok := core.DecodeObject(content)
	if !ok {
		return core.PRPlan{}, fmt.Errorf("plan: %w", ErrEmptyResponse)
	}
	r.log.Debug().Str("stage", string(stage)).Msg("plan decoded")

	plan := core.PRPlan{
		Overview:    strings.TrimSpace(cast.ToString(obj["overview"])),
		KeyChanges:  stringList(obj["key_changes"]),
		RiskAreas:   stringList(obj["risk_areas"]),
		ReviewFocus: stringList(obj["review_focus"]),
		Context:     strings.TrimSpace(cast.ToString(obj["context"])),
	}
	if plan.IsEmpty() {
		return core.PRPlan{}, fmt.Errorf("plan: %w", ErrEmptyResponse)
	}
	return plan, nil
}

// GenerateSummary returns the markdown body of the summary comment.
func (r *ChatReviewer) GenerateSummary(ctx context.Context, issues []core.Issue, sc SummaryContext) (string, error) {
	content, err := r.complete(ctx, "summary", "", BuildSummaryPrompt(issues, sc), false)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(stripFence(content))
	if content == "" {
		return "", fmt.Errorf("summary: %w", ErrEmptyResponse)
	}
	return content, nil
}

func (r *ChatReviewer) complete(ctx context.Context, op, system, prompt string, jsonOut bool) (string, error) {
	req := CompletionRequest{
		MaxTokens:   r.maxTokens,
		Temperature: &r.temperature,
		JSON:        jsonOut,
	}
	if system != "" {
		req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: system})
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Content: prompt})

	start := time.Now()
	resp, err := Do(ctx, r.pacer, func(ctx context.Context) (*CompletionResponse, error) {
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		return r.provider.Complete(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	r.log.Debug().
		Str("op", op).
		Str("model", resp.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("took", time.Since(start)).
		Msg("ai call done")
	return resp.Content, nil
}

func (r *ChatReviewer) parseIssues(content string) []core.Issue {
	res := core.ParseIssues(content)
	ev := r.log.Debug().Str("stage", string(res.Stage)).Int("issues", len(res.Issues))
	if res.Stage == core.StageLenient {
		ev = r.log.Warn().Str("stage", string(res.Stage)).Int("issues", len(res.Issues))
	}
	ev.Msg("review response parsed")
	return res.Issues
}

// attributeFile maps the path named by the model to one of paths: exact
// match first, then a unique suffix or basename match.
func attributeFile(name string, paths []string) (string, bool) {
	if len(paths) == 1 && name == "" {
		return paths[0], true
	}
	name = core.CleanPath(name)
	if name == "" {
		return "", false
	}
	for _, p := range paths {
		if p == name {
			return p, true
		}
	}

	var found []string
	for _, p := range paths {
		if strings.HasSuffix(p, "/"+name) || path.Base(p) == name {
			found = append(found, p)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	default:
		for _, s := range cast.ToStringSlice(v) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
