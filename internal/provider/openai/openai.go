// Package openai implements the AIProvider interface for the OpenAI Chat
// Completions API and for the self-hosted services speaking the same
// protocol (Ollama, LM Studio, Groq).
//
// It uses go-resty/v2 for HTTP transport.
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sanix-darker/prbot/internal/cmd/version"
	"github.com/sanix-darker/prbot/internal/provider"
	"github.com/spf13/viper"
)

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

// compatible lists the OpenAI-compatible services registered next to openai,
// with their default endpoint and model.
var compatible = map[string]struct{ baseURL, model string }{
	"ollama":   {"http://localhost:11434/v1", "llama3"},
	"lmstudio": {"http://localhost:1234/v1", "local-model"},
	"groq":     {"https://api.groq.com/openai/v1", "llama-3.3-70b-versatile"},
}

func init() {
	provider.Register("openai", NewProvider)
	for name := range compatible {
		provider.Register(name, newCompatFactory(name))
	}
}

// ---------------------------------------------------------------------------
// Wire types, shared with the azure package
// ---------------------------------------------------------------------------

// ChatMessage is one message of a Chat Completions request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat constrains the model output.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is the Chat Completions request body.
type ChatRequest struct {
	Model          string          `json:"model,omitempty"`
	Messages       []ChatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the Chat Completions response body.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// NewChatRequest translates a provider request into the wire format.
func NewChatRequest(model string, maxTokens int, req provider.CompletionRequest) ChatRequest {
	body := ChatRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.JSON {
		body.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return body
}

// ToCompletionResponse keeps the first choice of r.
func ToCompletionResponse(r *ChatResponse) *provider.CompletionResponse {
	resp := &provider.CompletionResponse{
		ID:    r.ID,
		Model: r.Model,
		Usage: provider.Usage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		},
	}
	if len(r.Choices) > 0 {
		resp.Content = r.Choices[0].Message.Content
		resp.FinishReason = r.Choices[0].FinishReason
	}
	return resp
}

// ClassifyHTTPError maps a failed response to a normalized provider error,
// reading the message from the OpenAI error envelope when present.
func ClassifyHTTPError(providerName string, statusCode int, body []byte) *provider.ProviderError {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	return provider.ClassifyStatus(providerName, statusCode, apiErr.Error.Message)
}

// ---------------------------------------------------------------------------
// Provider implementation
// ---------------------------------------------------------------------------

// Provider implements provider.AIProvider for a Chat Completions endpoint.
type Provider struct {
	name        string
	client      *resty.Client
	apiKey      string
	keyOptional bool
	baseURL     string
	model       string
	maxTok      int
	retryCfg    provider.RetryConfig
}

// NewProvider is the factory registered as "openai".
func NewProvider(v *viper.Viper) (provider.AIProvider, error) {
	p := newProvider("openai", v, "https://api.openai.com/v1", "gpt-4o", false)
	if p.apiKey == "" {
		return nil, provider.MissingKeyError("openai", "OPENAI_API_KEY")
	}
	return p, nil
}

func newCompatFactory(name string) provider.Factory {
	return func(v *viper.Viper) (provider.AIProvider, error) {
		d := compatible[name]
		return newProvider(name, v, d.baseURL, d.model, true), nil
	}
}

func newProvider(name string, v *viper.Viper, defaultURL, defaultModel string, keyOptional bool) *Provider {
	baseURL := v.GetString("base_url")
	if baseURL == "" {
		baseURL = defaultURL
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

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", version.UserAgent())

	return &Provider{
		name:        name,
		client:      client,
		apiKey:      v.GetString("api_key"),
		keyOptional: keyOptional,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		maxTok:      maxTok,
		retryCfg:    provider.RetryFromConfig(v),
	}
}

// Info returns provider metadata.
func (p *Provider) Info() provider.ProviderInfo {
	display := "OpenAI"
	defaultModel := "gpt-4o"
	if d, ok := compatible[p.name]; ok {
		display = p.name + " (OpenAI-compatible)"
		defaultModel = d.model
	}
	return provider.ProviderInfo{
		Name:         p.name,
		DisplayName:  display,
		DefaultModel: defaultModel,
		Model:        p.model,
	}
}

// Validate checks that the key is accepted and the endpoint is reachable.
func (p *Provider) Validate(ctx context.Context) error {
	if p.apiKey == "" && !p.keyOptional {
		return provider.MissingKeyError(p.name, "OPENAI_API_KEY")
	}
	resp, err := p.request(ctx).Get(p.baseURL + "/models")
	if err != nil {
		return &provider.ProviderError{
			Code:     provider.ErrCodeProviderUnavailable,
			Message:  "failed to reach " + p.baseURL,
			Provider: p.name,
			Cause:    err,
		}
	}
	if resp.StatusCode() != http.StatusOK {
		return ClassifyHTTPError(p.name, resp.StatusCode(), resp.Body())
	}
	return nil
}

// Complete performs a blocking chat completion, retrying transient failures.
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

	resp, err := p.request(ctx).
		SetBody(NewChatRequest(model, maxTok, req)).
		Post(p.baseURL + "/chat/completions")
	if err != nil {
		return nil, &provider.ProviderError{
			Code:     provider.ErrCodeProviderUnavailable,
			Message:  "HTTP request failed",
			Provider: p.name,
			Cause:    err,
		}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, ClassifyHTTPError(p.name, resp.StatusCode(), resp.Body())
	}

	var apiResp ChatResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return nil, &provider.ProviderError{
			Code:     provider.ErrCodeUnknown,
			Message:  "failed to decode response",
			Provider: p.name,
			Cause:    err,
		}
	}
	return ToCompletionResponse(&apiResp), nil
}

func (p *Provider) request(ctx context.Context) *resty.Request {
	r := p.client.R().SetContext(ctx)
	if p.apiKey != "" {
		r.SetAuthToken(p.apiKey)
	}
	return r
}
