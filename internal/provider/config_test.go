package provider

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindProviderEnvVars_OpenAIEnvOverridesConfig(t *testing.T) {
	t.Setenv("OPENAI_API_MODEL", "gpt-4.1")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	v := viper.New()
	v.Set("model", "gpt-4o")
	v.Set("api_key", "file-key")

	bindProviderEnvVars("openai", v)

	assert.Equal(t, "gpt-4.1", v.GetString("model"))
	assert.Equal(t, "sk-test", v.GetString("api_key"))
}

func TestBindProviderEnvVars_OpenAIDefaultWhenUnset(t *testing.T) {
	t.Setenv("OPENAI_API_MODEL", "")

	v := viper.New()
	bindProviderEnvVars("openai", v)

	assert.Equal(t, "gpt-4o", v.GetString("model"))
}

func TestBindProviderEnvVars_CustomName(t *testing.T) {
	t.Setenv("PRBOT_OLLAMA_BASE_URL", "http://gpu:11434/v1")

	v := viper.New()
	bindProviderEnvVars("ollama", v)

	assert.Equal(t, "http://gpu:11434/v1", v.GetString("base_url"))
}

func TestResolveProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	v := viper.New()
	v.Set("providers.anthropic.api_key", "file-key")
	v.Set("providers.anthropic.max_tokens", 2048)
	v.Set("retry.max_retries", 1)

	pc := ResolveProvider(v, " Anthropic ", "claude-opus-4", 30*time.Second)
	require.NotNil(t, pc.Viper)

	assert.Equal(t, "anthropic", pc.Name)
	assert.Equal(t, "file-key", pc.Viper.GetString("api_key"))
	assert.Equal(t, 2048, pc.Viper.GetInt("max_tokens"))
	assert.Equal(t, "claude-opus-4", pc.Viper.GetString("model"))
	assert.Equal(t, 30*time.Second, pc.Viper.GetDuration("timeout"))
	assert.Equal(t, 1, RetryFromConfig(pc.Viper).MaxRetries)
}

func TestResolveProvider_DefaultsToOpenAI(t *testing.T) {
	pc := ResolveProvider(viper.New(), "", "", 0)
	assert.Equal(t, "openai", pc.Name)
	assert.Equal(t, "gpt-4o", pc.Viper.GetString("model"))
}

func TestRetryFromConfig(t *testing.T) {
	assert.Equal(t, DefaultRetryConfig().MaxRetries, RetryFromConfig(nil).MaxRetries)

	v := viper.New()
	v.Set("retry.max_retries", 0)
	v.Set("retry.initial_interval", "250ms")
	v.Set("retry.multiplier", 3.0)

	cfg := RetryFromConfig(v)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 30*time.Second, cfg.MaxInterval)
	assert.Equal(t, 3.0, cfg.Multiplier)
}
