package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys of every setting. They double as YAML keys and, upper-cased, as the
// suffix of the PRBOT_* and INPUT_* environment variables.
const (
	KeyProvider        = "provider"
	KeyModel           = "model"
	KeyStrictness      = "strictness"
	KeyInclude         = "include"
	KeyExclude         = "exclude"
	KeyMaxFiles        = "max_files"
	KeyBatchSize       = "batch_size"
	KeyDelayMS         = "delay_ms"
	KeyMaxChanges      = "max_changes"
	KeyCommentStyle    = "comment_style"
	KeyInlineSeverity  = "inline_severity"
	KeyAutoFix         = "auto_fix"
	KeyAutoFixSeverity = "auto_fix_severity"
	KeyAutoFixCommit   = "auto_fix_commit"
	KeySkipIfNoRules   = "skip_if_no_rules"
	KeyUpdateExisting  = "update_existing"
	KeyRulesPath       = "rules_path"
	KeyWorkspace       = "workspace"
	KeyBotLogin        = "bot_login"
	KeyDryRun          = "dry_run"
	KeyRequestTimeout  = "request_timeout"

	KeyPlatform     = "platform"
	KeyGitLabToken  = "gitlab_token"
	KeyGitLabURL    = "gitlab_url"
	KeyGitHubToken  = "github_token"
	KeyGitHubAPIURL = "github_api_url"
	KeyEventPath    = "event_path"
	KeyRepository   = "repository"
	KeyPRNumber     = "pr_number"

	KeyLocal       = "local"
	KeyBase        = "base"
	KeyInteractive = "interactive"
	KeyCopy        = "copy"
	KeyDebug       = "debug"
	KeyLogFormat   = "log_format"
)

// DefaultExclude skips generated and vendored content nobody wants reviewed.
var DefaultExclude = []string{
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
	"**/*.lock",
	"**/vendor/**",
	"**/node_modules/**",
	"**/dist/**",
	"**/*.min.js",
	"**/*.min.css",
}

type setting struct {
	key   string
	flag  string
	def   any
	usage string
	// env lists platform variables read in addition to PRBOT_<KEY> and
	// INPUT_<KEY>.
	env []string
}

var settings = []setting{
	{key: KeyProvider, flag: "provider", def: "openai", usage: "AI provider (openai, anthropic, azure, gemini)"},
	{key: KeyModel, flag: "model", def: "", usage: "model name, defaults to the provider's default"},
	{key: KeyStrictness, flag: "strictness", def: "normal", usage: "review strictness: strict, normal or lenient"},
	{key: KeyInclude, flag: "include", def: []string{"**/*"}, usage: "glob patterns of files to review"},
	{key: KeyExclude, flag: "exclude", def: DefaultExclude, usage: "glob patterns of files to skip"},
	{key: KeyMaxFiles, flag: "max-files", def: 50, usage: "maximum number of files to review"},
	{key: KeyBatchSize, flag: "batch-size", def: 5, usage: "files per AI request"},
	{key: KeyDelayMS, flag: "delay-ms", def: 1000, usage: "pause between AI requests in milliseconds"},
	{key: KeyMaxChanges, flag: "max-changes", def: 1000, usage: "skip files with more changed lines than this"},
	{key: KeyCommentStyle, flag: "comment-style", def: string(CommentInline), usage: "inline or summary"},
	{key: KeyInlineSeverity, flag: "inline-severity", def: "warning", usage: "minimum severity posted inline"},
	{key: KeyAutoFix, flag: "auto-fix", def: false, usage: "apply safe fixes to the working copy"},
	{key: KeyAutoFixSeverity, flag: "auto-fix-severity", def: "warning", usage: "minimum severity eligible for auto-fix"},
	{key: KeyAutoFixCommit, flag: "auto-fix-commit", def: false, usage: "commit and push applied fixes"},
	{key: KeySkipIfNoRules, flag: "skip-if-no-rules", def: false, usage: "skip the review when no rules are configured"},
	{key: KeyUpdateExisting, flag: "update-existing", def: true, usage: "update previous bot comments in place"},
	{key: KeyRulesPath, flag: "rules-path", def: "", usage: "rules directory, relative to the workspace"},
	{key: KeyWorkspace, flag: "workspace", def: ".", usage: "repository working copy", env: []string{"GITHUB_WORKSPACE"}},
	{key: KeyBotLogin, flag: "bot-login", def: "", usage: "login of the account posting comments"},
	{key: KeyDryRun, flag: "dry-run", def: false, usage: "print the review instead of commenting"},
	{key: KeyRequestTimeout, flag: "request-timeout", def: 120 * time.Second, usage: "timeout of a single AI request"},

	{key: KeyPlatform, flag: "platform", def: PlatformGitHub, usage: "hosting platform: github or gitlab"},
	{key: KeyGitLabToken, flag: "gitlab-token", def: "", usage: "GitLab token", env: []string{"GITLAB_TOKEN"}},
	{key: KeyGitLabURL, flag: "gitlab-url", def: "", usage: "GitLab instance URL", env: []string{"CI_SERVER_URL"}},
	{key: KeyGitHubToken, flag: "github-token", def: "", usage: "GitHub token", env: []string{"GITHUB_TOKEN", "GH_TOKEN"}},
	{key: KeyGitHubAPIURL, flag: "github-api-url", def: "", usage: "GitHub API base URL", env: []string{"GITHUB_API_URL"}},
	{key: KeyEventPath, flag: "event-path", def: "", usage: "path of the GitHub event payload", env: []string{"GITHUB_EVENT_PATH"}},
	{key: KeyRepository, flag: "repo", def: "", usage: "owner/name of the repository", env: []string{"GITHUB_REPOSITORY", "CI_PROJECT_PATH"}},
	{key: KeyPRNumber, flag: "pr", def: 0, usage: "pull request number", env: []string{"CI_MERGE_REQUEST_IID"}},

	{key: KeyLocal, flag: "local", def: false, usage: "review the local branch against --base without GitHub"},
	{key: KeyBase, flag: "base", def: "main", usage: "base branch for --local"},
	{key: KeyInteractive, flag: "interactive", def: false, usage: "confirm before applying fixes"},
	{key: KeyCopy, flag: "copy", def: false, usage: "copy the dry-run summary to the clipboard"},
}

// RegisterFlags declares one flag per review setting on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, s := range settings {
		switch def := s.def.(type) {
		case string:
			fs.String(s.flag, def, s.usage)
		case int:
			fs.Int(s.flag, def, s.usage)
		case bool:
			fs.Bool(s.flag, def, s.usage)
		case []string:
			// StringArray keeps brace commas; readList splits
			fs.StringArray(s.flag, def, s.usage)
		case time.Duration:
			fs.Duration(s.flag, def, s.usage)
		default:
			panic(fmt.Sprintf("config: unsupported default type %T for %s", def, s.key))
		}
	}
}

// Bind wires defaults, environment variables and the flags declared by
// RegisterFlags into v. fs may be nil.
func Bind(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, s := range settings {
		v.SetDefault(s.key, s.def)

		upper := strings.ToUpper(s.key)
		names := append([]string{"PRBOT_" + upper, "INPUT_" + upper}, s.env...)
		if err := v.BindEnv(append([]string{s.key}, names...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", s.key, err)
		}

		if fs == nil {
			continue
		}
		if f := fs.Lookup(s.flag); f != nil {
			if err := v.BindPFlag(s.key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", s.flag, err)
			}
		}
	}

	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyLogFormat, "console")
	_ = v.BindEnv(KeyDebug, "PRBOT_DEBUG", "RUNNER_DEBUG")
	_ = v.BindEnv(KeyLogFormat, "PRBOT_LOG_FORMAT")
	return nil
}
