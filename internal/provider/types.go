// Package provider abstracts the AI services prbot can review with (OpenAI,
// Azure OpenAI, Anthropic, Gemini) behind one small interface, and builds
// the review-specific Reviewer on top of it.
//
// Design principles:
//   - context propagation and explicit error values
//   - normalized error codes so callers can decide to retry or give up
//   - a registry of factories keyed by provider name, fed from viper
//   - one in-flight request at a time, paced by a token bucket
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Message types
// ---------------------------------------------------------------------------

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of a chat exchange.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ---------------------------------------------------------------------------
// Request / response
// ---------------------------------------------------------------------------

// CompletionRequest is translated into each backend's native wire format.
type CompletionRequest struct {
	// Model overrides the backend's configured model when non-empty.
	Model string `json:"model"`

	Messages []Message `json:"messages"`

	// MaxTokens caps the response length; zero uses the backend default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature is nil when the backend default should be used.
	Temperature *float64 `json:"temperature,omitempty"`

	// JSON asks backends that support it to constrain output to a JSON
	// object. Callers must still tolerate free text.
	JSON bool `json:"-"`
}

// System returns the concatenated system messages of the request.
func (r CompletionRequest) System() string {
	var out string
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

// CompletionResponse is the backend-agnostic result of a completion.
type CompletionResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ErrorCode classifies provider failures into actionable categories.
type ErrorCode string

const (
	ErrCodeAuthentication      ErrorCode = "authentication"
	ErrCodeRateLimit           ErrorCode = "rate_limit"
	ErrCodeInvalidRequest      ErrorCode = "invalid_request"
	ErrCodeContextLength       ErrorCode = "context_length"
	ErrCodeContentFilter       ErrorCode = "content_filter"
	ErrCodeProviderUnavailable ErrorCode = "provider_unavailable"
	ErrCodeTimeout             ErrorCode = "timeout"
	ErrCodeUnknown             ErrorCode = "unknown"
)

// ProviderError carries a normalized code plus the backend details. Two
// ProviderErrors match under errors.Is when their codes are equal.
type ProviderError struct {
	Code       ErrorCode
	Message    string
	Provider   string
	StatusCode int
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is matches ProviderErrors by code.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for use with errors.Is.
var (
	ErrAuthentication      = &ProviderError{Code: ErrCodeAuthentication}
	ErrRateLimit           = &ProviderError{Code: ErrCodeRateLimit}
	ErrInvalidRequest      = &ProviderError{Code: ErrCodeInvalidRequest}
	ErrContextLength       = &ProviderError{Code: ErrCodeContextLength}
	ErrContentFilter       = &ProviderError{Code: ErrCodeContentFilter}
	ErrProviderUnavailable = &ProviderError{Code: ErrCodeProviderUnavailable}
	ErrTimeout             = &ProviderError{Code: ErrCodeTimeout}
)

// MissingKeyError is returned by factories when no credential is configured.
func MissingKeyError(providerName, envName string) *ProviderError {
	return &ProviderError{
		Code:     ErrCodeAuthentication,
		Message:  fmt.Sprintf("api key is not set (configure providers.%s.api_key or %s)", providerName, envName),
		Provider: providerName,
	}
}

// ClassifyStatus maps an HTTP status returned by a backend to a
// ProviderError. msg is the backend's own error message, if any.
func ClassifyStatus(providerName string, statusCode int, msg string) *ProviderError {
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", statusCode)
	}
	pe := &ProviderError{
		Provider:   providerName,
		Message:    msg,
		StatusCode: statusCode,
	}

	lower := strings.ToLower(msg)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		pe.Code = ErrCodeAuthentication
	case statusCode == http.StatusTooManyRequests:
		pe.Code = ErrCodeRateLimit
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		pe.Code = ErrCodeTimeout
	case statusCode == http.StatusBadRequest || statusCode == http.StatusRequestEntityTooLarge:
		switch {
		case strings.Contains(lower, "context length"), strings.Contains(lower, "context_length"),
			strings.Contains(lower, "too long"), strings.Contains(lower, "max_tokens"):
			pe.Code = ErrCodeContextLength
		case strings.Contains(lower, "content filter"), strings.Contains(lower, "content_filter"),
			strings.Contains(lower, "safety"):
			pe.Code = ErrCodeContentFilter
		default:
			pe.Code = ErrCodeInvalidRequest
		}
	case statusCode >= 500:
		pe.Code = ErrCodeProviderUnavailable
	default:
		pe.Code = ErrCodeUnknown
	}
	return pe
}

// ---------------------------------------------------------------------------
// Retry configuration
// ---------------------------------------------------------------------------

// RetryConfig controls exponential backoff. The zero value disables retries.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// OnRetry, when set, is called before sleeping between attempts.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryConfig retries 3 times, from 1s up to 30s, doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// ---------------------------------------------------------------------------
// Core interface
// ---------------------------------------------------------------------------

// ProviderInfo describes a backend for logs and help text.
type ProviderInfo struct {
	Name         string
	DisplayName  string
	DefaultModel string
	// Model is the model requests go to when none is given.
	Model string
}

// AIProvider is implemented by every backend.
type AIProvider interface {
	// Info returns static metadata about the backend.
	Info() ProviderInfo

	// Complete sends a chat completion and blocks until the full response
	// is available.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Validate checks the configuration without spending tokens where
	// possible. It is called once before the review starts.
	Validate(ctx context.Context) error
}
