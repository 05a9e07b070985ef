// Package gemini implements the AIProvider interface for Google's Gemini
// API through the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/sanix-darker/prbot/internal/provider"
	"github.com/spf13/viper"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

func init() {
	provider.Register("gemini", NewProvider)
	provider.Register("google", NewProvider)
}

// Provider implements provider.AIProvider for the Gemini API.
type Provider struct {
	client   *genai.Client
	model    string
	maxTok   int
	retryCfg provider.RetryConfig
}

// NewProvider is the factory function registered with the provider registry.
func NewProvider(v *viper.Viper) (provider.AIProvider, error) {
	apiKey := v.GetString("api_key")
	if apiKey == "" {
		return nil, provider.MissingKeyError("gemini", "GEMINI_API_KEY")
	}
	model := v.GetString("model")
	if model == "" {
		model = defaultModel
	}
	maxTok := v.GetInt("max_tokens")
	if maxTok == 0 {
		maxTok = 4096
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL := v.GetString("base_url"); baseURL != "" {
		cfg.HTTPOptions.BaseURL = strings.TrimRight(baseURL, "/") + "/"
	}

	// no network call happens for the Gemini API backend
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Code:     provider.ErrCodeInvalidRequest,
			Message:  "failed to create client",
			Provider: "gemini",
			Cause:    err,
		}
	}

	return &Provider{
		client:   client,
		model:    model,
		maxTok:   maxTok,
		retryCfg: provider.RetryFromConfig(v),
	}, nil
}

// Info returns provider metadata.
func (p *Provider) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:         "gemini",
		DisplayName:  "Google Gemini",
		DefaultModel: defaultModel,
		Model:        p.model,
	}
}

// Validate sends a one-token request.
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
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTok := req.MaxTokens
	if maxTok == 0 {
		maxTok = p.maxTok
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTok),
	}
	if system := req.System(); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case provider.RoleSystem:
			continue
		case provider.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, classifyError(err)
	}

	out := &provider.CompletionResponse{
		ID:      resp.ResponseID,
		Model:   resp.ModelVersion,
		Content: resp.Text(),
	}
	if out.Model == "" {
		out.Model = model
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = provider.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.ClassifyStatus("gemini", apiErr.Code, apiErr.Message)
	}
	return &provider.ProviderError{
		Code:     provider.ErrCodeProviderUnavailable,
		Message:  "request failed",
		Provider: "gemini",
		Cause:    err,
	}
}
