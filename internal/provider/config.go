package provider

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderConfig is the resolved configuration used to build a provider.
type ProviderConfig struct {
	// Name is the registry name, e.g. "openai".
	Name string
	// Viper is scoped to the providers.<name> block.
	Viper *viper.Viper
}

// ResolveProvider scopes v to the providers.<name> block and applies the
// well-known environment variables on top of it. model and timeout, when
// set, override whatever the block says.
func ResolveProvider(v *viper.Viper, name, model string, timeout time.Duration) ProviderConfig {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "openai"
	}

	sub := v.Sub(fmt.Sprintf("providers.%s", name))
	if sub == nil {
		sub = viper.New()
	}

	bindProviderEnvVars(name, sub)

	if retry := v.Get("retry"); retry != nil && !sub.IsSet("retry") {
		sub.Set("retry", retry)
	}
	if model = strings.TrimSpace(model); model != "" {
		sub.Set("model", model)
	}
	if timeout > 0 {
		sub.Set("timeout", timeout)
	}
	return ProviderConfig{Name: name, Viper: sub}
}

// bindProviderEnvVars lets CI configure providers through secrets alone.
func bindProviderEnvVars(name string, v *viper.Viper) {
	switch name {
	case "openai":
		v.SetDefault("model", "gpt-4o")
		v.SetDefault("base_url", "https://api.openai.com/v1")
		overrideFromEnv(v, "api_key", "OPENAI_API_KEY", "INPUT_OPENAI_API_KEY")
		overrideFromEnv(v, "model", "OPENAI_API_MODEL")
		overrideFromEnv(v, "base_url", "OPENAI_API_BASE", "OPENAI_BASE_URL")
	case "anthropic", "claude":
		v.SetDefault("model", "claude-sonnet-4-20250514")
		overrideFromEnv(v, "api_key", "ANTHROPIC_API_KEY", "INPUT_ANTHROPIC_API_KEY")
		overrideFromEnv(v, "model", "ANTHROPIC_MODEL")
		overrideFromEnv(v, "base_url", "ANTHROPIC_BASE_URL")
	case "azure":
		v.SetDefault("api_version", "2024-06-01")
		overrideFromEnv(v, "api_key", "AZURE_OPENAI_API_KEY", "INPUT_AZURE_OPENAI_API_KEY")
		overrideFromEnv(v, "model", "AZURE_OPENAI_DEPLOYMENT")
		overrideFromEnv(v, "base_url", "AZURE_OPENAI_ENDPOINT")
		overrideFromEnv(v, "api_version", "AZURE_OPENAI_API_VERSION")
	case "gemini", "google":
		v.SetDefault("model", "gemini-2.0-flash")
		overrideFromEnv(v, "api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY", "INPUT_GEMINI_API_KEY")
		overrideFromEnv(v, "model", "GEMINI_MODEL")
		overrideFromEnv(v, "base_url", "GEMINI_BASE_URL")
	default:
		prefix := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		overrideFromEnv(v, "api_key", fmt.Sprintf("PRBOT_%s_API_KEY", prefix))
		overrideFromEnv(v, "model", fmt.Sprintf("PRBOT_%s_MODEL", prefix))
		overrideFromEnv(v, "base_url", fmt.Sprintf("PRBOT_%s_BASE_URL", prefix))
	}
}

// overrideFromEnv sets key from the first non-empty variable of envNames.
func overrideFromEnv(v *viper.Viper, key string, envNames ...string) {
	for _, envName := range envNames {
		if value := strings.TrimSpace(os.Getenv(envName)); value != "" {
			v.Set(key, value)
			return
		}
	}
}

// SampleConfigYAML documents every setting; printed by `prbot config sample`.
func SampleConfigYAML() string {
	return `# prbot configuration (.prbot.yml in the repository or ~/.config/prbot/config.yml)
# Every key can also be set as a flag (--batch-size), as PRBOT_BATCH_SIZE or,
# inside a GitHub Action, as the input batch_size.

# Active provider: openai | azure | anthropic | gemini | ollama
provider: openai
# model: ""            # empty uses the provider block's model

strictness: normal     # strict | normal | lenient
include: ["**/*"]
exclude:
  - "**/package-lock.json"
  - "**/*.lock"
  - "**/vendor/**"
  - "**/dist/**"
  - "**/*.min.js"
max_files: 50
batch_size: 5
delay_ms: 1000          # pause between AI requests
max_changes: 1000       # files with more changed lines are not sent to the AI
request_timeout: 120s

comment_style: inline   # inline | summary
inline_severity: warning
update_existing: true
# bot_login: "github-actions[bot]"

skip_if_no_rules: false
# rules_path: .cursor/rules

auto_fix: false
auto_fix_severity: warning
auto_fix_commit: false

providers:
  openai:
    # api_key can also be set via OPENAI_API_KEY.
    api_key: ""
    model: "gpt-4o"
    # base_url: "https://api.openai.com/v1"
    max_tokens: 4096

  azure:
    # AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT
    api_key: ""
    base_url: ""        # https://<resource>.openai.azure.com
    model: ""           # deployment name
    api_version: "2024-06-01"

  anthropic:
    # api_key can also be set via ANTHROPIC_API_KEY.
    api_key: ""
    model: "claude-sonnet-4-20250514"
    max_tokens: 4096

  gemini:
    # api_key can also be set via GEMINI_API_KEY.
    api_key: ""
    model: "gemini-2.0-flash"

  ollama:
    base_url: "http://localhost:11434/v1"
    model: "llama3"

retry:
  max_retries: 3
  initial_interval: 1s
  max_interval: 30s
  multiplier: 2.0
`
}

// RetryFromConfig reads the optional retry block of v.
func RetryFromConfig(v *viper.Viper) RetryConfig {
	cfg := DefaultRetryConfig()
	if v == nil {
		return cfg
	}
	if v.IsSet("retry.max_retries") {
		cfg.MaxRetries = v.GetInt("retry.max_retries")
	}
	if d := v.GetDuration("retry.initial_interval"); d > 0 {
		cfg.InitialInterval = d
	}
	if d := v.GetDuration("retry.max_interval"); d > 0 {
		cfg.MaxInterval = d
	}
	if m := v.GetFloat64("retry.multiplier"); m > 0 {
		cfg.Multiplier = m
	}
	return cfg
}
