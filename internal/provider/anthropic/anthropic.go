// Package anthropic implements the AIProvider interface for Anthropic's
// Messages API (Claude models) through the official SDK.
//
// Differences from OpenAI handled here:
//   - system prompt is a top-level field, not a message
//   - the response is a list of content blocks
//   - max_tokens is required
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sanix-darker/prbot/internal/provider"
	"github.com/spf13/viper"
)

const defaultModel = "claude-sonnet-4-20250514"

func init() {
	provider.Register("anthropic", NewProvider)
	provider.Register("claude", NewProvider)
}

// Provider implements provider.AIProvider for Anthropic's Messages API.
type Provider struct {
	client   anthropic.Client
	model    string
	maxTok   int
	retryCfg provider.RetryConfig
}

// NewProvider is the factory function registered with the provider registry.
func NewProvider(v *viper.Viper) (provider.AIProvider, error) {
	apiKey := v.GetString("api_key")
	if apiKey == "" {
		return nil, provider.MissingKeyError("anthropic", "ANTHROPIC_API_KEY")
	}
	model := v.GetString("model")
	if model == "" {
		model = defaultModel
	}
	maxTok := v.GetInt("max_tokens")
	if maxTok == 0 {
		maxTok = 4096
	}
	timeout := v.GetDuration("timeout")
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		// retries go through provider.WithRetry
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimRight(v.GetString("base_url"), "/"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Provider{
		client:   anthropic.NewClient(opts...),
		model:    model,
		maxTok:   maxTok,
		retryCfg: provider.RetryFromConfig(v),
	}, nil
}

// Info returns provider metadata.
func (p *Provider) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:         "anthropic",
		DisplayName:  "Anthropic (Claude)",
		DefaultModel: defaultModel,
		Model:        p.model,
	}
}

// Validate sends a one-token message.
func (p *Provider) Validate(ctx context.Context) error {
	_, err := p.doComplete(ctx, provider.CompletionRequest{
		Messages:  []provider.Message{{Role: provider.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}

// Complete performs a blocking completion, retrying transient failures.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	return provider.WithRetry(ctx, p.retryCfg, func() (*provider.CompletionResponse, error) {
		return p.doComplete(ctx, req)
	})
}

func (p *Provider) doComplete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, classifyError(err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &provider.CompletionResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Content:      content.String(),
		FinishReason: string(msg.StopReason),
		Usage: provider.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func (p *Provider) buildParams(req provider.CompletionRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTok := req.MaxTokens
	if maxTok == 0 {
		maxTok = p.maxTok
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTok),
	}
	if system := req.System(); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	for _, m := range req.Messages {
		switch m.Role {
		case provider.RoleSystem:
			continue
		case provider.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return provider.ClassifyStatus("anthropic", apiErr.StatusCode, apiErr.Error())
	}
	return &provider.ProviderError{
		Code:     provider.ErrCodeProviderUnavailable,
		Message:  "request failed",
		Provider: "anthropic",
		Cause:    err,
	}
}
