// Package azure implements the AIProvider interface for Azure OpenAI Service.
//
// Azure OpenAI differs from the standard OpenAI API in URL structure and
// authentication:
//   - URL format: {endpoint}/openai/deployments/{deployment}/chat/completions?api-version={version}
//   - Authentication via "api-key" header (not Bearer token)
//   - The "model" field in config maps to the Azure deployment name
//
// The wire format is otherwise identical to OpenAI, so the request and
// response types come from the openai package.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sanix-darker/prbot/internal/cmd/version"
	"github.com/sanix-darker/prbot/internal/provider"
	"github.com/sanix-darker/prbot/internal/provider/openai"
	"github.com/spf13/viper"
)

func init() {
	provider.Register("azure", NewProvider)
}

// Provider implements provider.AIProvider for Azure OpenAI Service.
type Provider struct {
	client     *resty.Client
	apiKey     string
	endpoint   string // e.g. https://<resource>.openai.azure.com
	deployment string
	apiVersion string
	maxTok     int
	retryCfg   provider.RetryConfig
}

// NewProvider is the factory function registered with the provider registry.
func NewProvider(v *viper.Viper) (provider.AIProvider, error) {
	apiKey := v.GetString("api_key")
	if apiKey == "" {
		return nil, provider.MissingKeyError("azure", "AZURE_OPENAI_API_KEY")
	}
	endpoint := strings.TrimRight(v.GetString("base_url"), "/")
	if endpoint == "" {
		return nil, &provider.ProviderError{
			Code:     provider.ErrCodeInvalidRequest,
			Message:  "base_url (Azure endpoint) is required; set AZURE_OPENAI_ENDPOINT",
			Provider: "azure",
		}
	}
	deployment := v.GetString("model")
	if deployment == "" {
		return nil, &provider.ProviderError{
			Code:     provider.ErrCodeInvalidRequest,
			Message:  "model (Azure deployment name) is required; set AZURE_OPENAI_DEPLOYMENT",
			Provider: "azure",
		}
	}
	apiVersion := v.GetString("api_version")
	if apiVersion == "" {
		apiVersion = "2024-06-01"
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
		client:     client,
		apiKey:     apiKey,
		endpoint:   endpoint,
		deployment: deployment,
		apiVersion: apiVersion,
		maxTok:     maxTok,
		retryCfg:   provider.RetryFromConfig(v),
	}, nil
}

func (p *Provider) completionsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.endpoint, p.deployment, p.apiVersion)
}

// Info returns provider metadata.
func (p *Provider) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:         "azure",
		DisplayName:  "Azure OpenAI",
		DefaultModel: p.deployment,
		Model:        p.deployment,
	}
}

// Validate sends a one-token completion, Azure exposing no cheaper
// authenticated endpoint per deployment.
func (p *Provider) Validate(ctx context.Context) error {
	_, err := p.doComplete(ctx, provider.CompletionRequest{
		Messages:  []provider.Message{{Role: provider.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}

// Complete performs a blocking chat completion, retrying transient failures.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	return provider.WithRetry(ctx, p.retryCfg, func() (*provider.CompletionResponse, error) {
		return p.doComplete(ctx, req)
	})
}

func (p *Provider) doComplete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	maxTok := req.MaxTokens
	if maxTok == 0 {
		maxTok = p.maxTok
	}
	// the deployment selects the model
	body := openai.NewChatRequest("", maxTok, req)

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("api-key", p.apiKey).
		SetBody(body).
		Post(p.completionsURL())
	if err != nil {
		return nil, &provider.ProviderError{
			Code: provider.ErrCodeProviderUnavailable, Message: "HTTP request failed",
			Provider: "azure", Cause: err,
		}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, openai.ClassifyHTTPError("azure", resp.StatusCode(), resp.Body())
	}

	var apiResp openai.ChatResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return nil, &provider.ProviderError{
			Code: provider.ErrCodeUnknown, Message: "failed to decode response",
			Provider: "azure", Cause: err,
		}
	}
	return openai.ToCompletionResponse(&apiResp), nil
}
