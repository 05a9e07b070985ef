package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/sanix-darker/prbot/internal/common"
	"github.com/sanix-darker/prbot/internal/core"
)

const (
	HomePath       = "~"
	ConfigDirPath  = HomePath + "/.config/prbot"
	ConfigFilePath = ConfigDirPath + "/config.yml"
	// ProjectConfigFile is looked up at the workspace root.
	ProjectConfigFile = ".prbot.yml"
)

// ErrInvalidConfig wraps every validation failure reported by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// CommentStyle selects how issues are published.
type CommentStyle string

const (
	// CommentInline posts a summary plus one review comment per diff location.
	CommentInline CommentStyle = "inline"
	// CommentSummary posts only the summary comment.
	CommentSummary CommentStyle = "summary"
)

// Strictness levels understood by the prompts.
// Hosting platforms.
const (
	PlatformGitHub = "github"
	PlatformGitLab = "gitlab"
)

const (
	StrictnessStrict  = "strict"
	StrictnessNormal  = "normal"
	StrictnessLenient = "lenient"
)

// Options is the immutable set of review settings, built once by Load and
// handed to every component constructor.
type Options struct {
	Provider   string
	Model      string
	Strictness string

	Include    []string
	Exclude    []string
	MaxFiles   int
	BatchSize  int
	Delay      time.Duration
	MaxChanges int

	CommentStyle   CommentStyle
	InlineSeverity core.Severity
	UpdateExisting bool
	BotLogin       string

	AutoFix         bool
	AutoFixSeverity core.Severity
	AutoFixCommit   bool

	SkipIfNoRules bool
	RulesPath     string
	Workspace     string

	DryRun         bool
	RequestTimeout time.Duration

	Platform     string
	GitHubToken  string
	GitHubAPIURL string
	GitLabToken  string
	GitLabURL    string
	EventPath    string
	Repository   string
	PRNumber     int

	Local       bool
	Base        string
	Interactive bool
	Copy        bool

	Debug     bool
	LogFormat common.LogFormat
}

// PlatformToken returns the API token of the selected platform.
func (o Options) PlatformToken() string {
	if o.Platform == PlatformGitLab {
		return o.GitLabToken
	}
	return o.GitHubToken
}

// PlatformURL returns the API location of the selected platform; empty
// means the public service.
func (o Options) PlatformURL() string {
	if o.Platform == PlatformGitLab {
		return o.GitLabURL
	}
	return o.GitHubAPIURL
}

// InlineComments reports whether issues are posted as review comments.
func (o Options) InlineComments() bool {
	return o.CommentStyle == CommentInline
}

// ReadConfigFile loads an optional YAML file into v. An explicit path must
// exist; otherwise the workspace .prbot.yml and then ~/.config/prbot/config.yml
// are tried and a missing file is not an error.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(common.ExpandPath(path))
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
		return nil
	}

	workspace := common.ExpandPath(v.GetString(KeyWorkspace))
	for _, candidate := range []string{
		filepath.Join(workspace, ProjectConfigFile),
		common.ExpandPath(ConfigFilePath),
	} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		v.SetConfigFile(candidate)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, candidate, err)
		}
		return nil
	}
	return nil
}

// Load builds Options from v and validates them. Every failure wraps
// ErrInvalidConfig so callers can abort before any network activity.
func Load(v *viper.Viper) (Options, error) {
	opts := Options{
		Provider:       strings.ToLower(strings.TrimSpace(v.GetString(KeyProvider))),
		Model:          strings.TrimSpace(v.GetString(KeyModel)),
		Strictness:     strings.ToLower(strings.TrimSpace(v.GetString(KeyStrictness))),
		Include:        readList(v, KeyInclude),
		Exclude:        readList(v, KeyExclude),
		MaxFiles:       v.GetInt(KeyMaxFiles),
		BatchSize:      v.GetInt(KeyBatchSize),
		MaxChanges:     v.GetInt(KeyMaxChanges),
		CommentStyle:   CommentStyle(strings.ToLower(strings.TrimSpace(v.GetString(KeyCommentStyle)))),
		UpdateExisting: v.GetBool(KeyUpdateExisting),
		BotLogin:       strings.TrimSpace(v.GetString(KeyBotLogin)),
		AutoFix:        v.GetBool(KeyAutoFix),
		AutoFixCommit:  v.GetBool(KeyAutoFixCommit),
		SkipIfNoRules:  v.GetBool(KeySkipIfNoRules),
		RulesPath:      strings.TrimSpace(v.GetString(KeyRulesPath)),
		Workspace:      common.ExpandPath(v.GetString(KeyWorkspace)),
		DryRun:         v.GetBool(KeyDryRun),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		Platform:       strings.ToLower(strings.TrimSpace(v.GetString(KeyPlatform))),
		GitHubToken:    strings.TrimSpace(v.GetString(KeyGitHubToken)),
		GitHubAPIURL:   strings.TrimSpace(v.GetString(KeyGitHubAPIURL)),
		GitLabToken:    strings.TrimSpace(v.GetString(KeyGitLabToken)),
		GitLabURL:      strings.TrimSpace(v.GetString(KeyGitLabURL)),
		EventPath:      strings.TrimSpace(v.GetString(KeyEventPath)),
		Repository:     strings.TrimSpace(v.GetString(KeyRepository)),
		PRNumber:       v.GetInt(KeyPRNumber),
		Local:          v.GetBool(KeyLocal),
		Base:           strings.TrimSpace(v.GetString(KeyBase)),
		Interactive:    v.GetBool(KeyInteractive),
		Copy:           v.GetBool(KeyCopy),
		Debug:          v.GetBool(KeyDebug),
		LogFormat:      common.LogFormat(strings.ToLower(v.GetString(KeyLogFormat))),
	}

	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	delayMS := v.GetInt(KeyDelayMS)
	if delayMS < 0 {
		invalid("%s must be >= 0, got %d", KeyDelayMS, delayMS)
	}
	opts.Delay = time.Duration(delayMS) * time.Millisecond

	if opts.Provider == "" {
		invalid("%s is required", KeyProvider)
	}
	switch opts.Strictness {
	case StrictnessStrict, StrictnessNormal, StrictnessLenient:
	default:
		invalid("%s must be strict, normal or lenient, got %q", KeyStrictness, opts.Strictness)
	}
	if len(opts.Include) == 0 {
		invalid("%s must list at least one pattern", KeyInclude)
	}
	if opts.MaxFiles <= 0 {
		invalid("%s must be > 0, got %d", KeyMaxFiles, opts.MaxFiles)
	}
	if opts.BatchSize <= 0 {
		invalid("%s must be > 0, got %d", KeyBatchSize, opts.BatchSize)
	}
	if opts.MaxChanges <= 0 {
		invalid("%s must be > 0, got %d", KeyMaxChanges, opts.MaxChanges)
	}
	switch opts.CommentStyle {
	case CommentInline, CommentSummary:
	default:
		invalid("%s must be inline or summary, got %q", KeyCommentStyle, opts.CommentStyle)
	}

	var ok bool
	if opts.InlineSeverity, ok = core.ParseSeverity(v.GetString(KeyInlineSeverity)); !ok {
		invalid("unknown %s %q", KeyInlineSeverity, v.GetString(KeyInlineSeverity))
	}
	if opts.AutoFixSeverity, ok = core.ParseSeverity(v.GetString(KeyAutoFixSeverity)); !ok {
		invalid("unknown %s %q", KeyAutoFixSeverity, v.GetString(KeyAutoFixSeverity))
	}

	switch opts.Platform {
	case "":
		opts.Platform = PlatformGitHub
	case PlatformGitHub, PlatformGitLab:
	default:
		invalid("%s must be github or gitlab, got %q", KeyPlatform, opts.Platform)
	}

	if opts.RequestTimeout <= 0 {
		invalid("%s must be positive", KeyRequestTimeout)
	}
	if opts.Workspace == "" {
		opts.Workspace = "."
	}
	if opts.Local && opts.Base == "" {
		invalid("%s is required with %s", KeyBase, KeyLocal)
	}
	if opts.AutoFixCommit && !opts.AutoFix {
		invalid("%s requires %s", KeyAutoFixCommit, KeyAutoFix)
	}
	if opts.LogFormat != common.LogJSON {
		opts.LogFormat = common.LogConsole
	}

	if len(errs) > 0 {
		return Options{}, errors.Join(errs...)
	}
	return opts, nil
}

// readList accepts both YAML lists and comma/newline separated strings, the
// form GitHub Action inputs arrive in.
func readList(v *viper.Viper, key string) []string {
	switch raw := v.Get(key).(type) {
	case nil:
		return nil
	case string:
		return common.SplitList(raw)
	default:
		return common.SplitList(cast.ToStringSlice(raw)...)
	}
}
