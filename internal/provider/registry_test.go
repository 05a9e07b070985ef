package provider_test

import (
	"context"
	"sync"
	"testing"

	"github.com/sanix-darker/prbot/internal/provider"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider is a test double that satisfies AIProvider. It answers with
// responses in order and records every request.
type mockProvider struct {
	name      string
	responses []string
	errs      []error

	mu       sync.Mutex
	requests []provider.CompletionRequest
}

func (m *mockProvider) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:        m.name,
		DisplayName: "Mock " + m.name,
	}
}

func (m *mockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	i := len(m.requests) - 1
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	content := "mock response from " + m.name
	if i < len(m.responses) {
		content = m.responses[i]
	}
	return &provider.CompletionResponse{ID: "mock-id", Model: "mock", Content: content}, nil
}

func (m *mockProvider) Validate(ctx context.Context) error {
	return nil
}

func (m *mockProvider) calls() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.CompletionRequest(nil), m.requests...)
}

func mockFactory(name string) provider.Factory {
	return func(v *viper.Viper) (provider.AIProvider, error) {
		return &mockProvider{name: name}, nil
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("test-provider", mockFactory("test-provider"))

	p, err := reg.Get("test-provider", viper.New())
	require.NoError(t, err)
	assert.Equal(t, "test-provider", p.Info().Name)
}

func TestRegistryGetNilViper(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("test-provider", mockFactory("test-provider"))

	_, err := reg.Get("test-provider", nil)
	assert.NoError(t, err)
}

func TestRegistryGetUnknownProvider(t *testing.T) {
	reg := provider.NewRegistry()
	_, err := reg.Get("nonexistent", viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestRegistryDuplicateRegistrationPanics(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("dup", mockFactory("dup"))
	assert.Panics(t, func() {
		reg.Register("dup", mockFactory("dup"))
	})
}

func TestRegistryNames(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("beta", mockFactory("beta"))
	reg.Register("alpha", mockFactory("alpha"))
	reg.Register("gamma", mockFactory("gamma"))

	names := reg.Names()
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, names)
}

func TestProviderErrorIs(t *testing.T) {
	err := &provider.ProviderError{
		Code:     provider.ErrCodeRateLimit,
		Message:  "too many requests",
		Provider: "openai",
	}

	assert.ErrorIs(t, err, provider.ErrRateLimit)
	assert.NotErrorIs(t, err, provider.ErrAuthentication)
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := &provider.ProviderError{
		Code:    provider.ErrCodeTimeout,
		Message: "inner",
	}
	outer := &provider.ProviderError{
		Code:    provider.ErrCodeUnknown,
		Message: "outer",
		Cause:   cause,
	}

	assert.ErrorIs(t, outer.Unwrap(), cause)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		msg    string
		want   provider.ErrorCode
	}{
		{401, "", provider.ErrCodeAuthentication},
		{403, "forbidden", provider.ErrCodeAuthentication},
		{429, "slow down", provider.ErrCodeRateLimit},
		{400, "This model's maximum context length is 8192 tokens", provider.ErrCodeContextLength},
		{400, "prompt is too long", provider.ErrCodeContextLength},
		{400, "blocked by content_filter", provider.ErrCodeContentFilter},
		{400, "bad field", provider.ErrCodeInvalidRequest},
		{504, "", provider.ErrCodeTimeout},
		{503, "", provider.ErrCodeProviderUnavailable},
		{418, "", provider.ErrCodeUnknown},
	}
	for _, tt := range tests {
		pe := provider.ClassifyStatus("x", tt.status, tt.msg)
		assert.Equal(t, tt.want, pe.Code, "status %d %q", tt.status, tt.msg)
		assert.Equal(t, tt.status, pe.StatusCode)
	}
}

func TestMissingKeyError(t *testing.T) {
	err := provider.MissingKeyError("openai", "OPENAI_API_KEY")
	assert.ErrorIs(t, err, provider.ErrAuthentication)
	assert.Contains(t, err.Error(), "providers.openai.api_key")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}
