package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sanix-darker/prbot/internal/autofix"
	"github.com/sanix-darker/prbot/internal/comments"
	"github.com/sanix-darker/prbot/internal/common"
	"github.com/sanix-darker/prbot/internal/config"
	"github.com/sanix-darker/prbot/internal/core"
	"github.com/sanix-darker/prbot/internal/diffparse"
	"github.com/sanix-darker/prbot/internal/printers"
	"github.com/sanix-darker/prbot/internal/provider"
	"github.com/sanix-darker/prbot/internal/renders"
	"github.com/sanix-darker/prbot/internal/review"
	"github.com/sanix-darker/prbot/internal/rules"
	"github.com/sanix-darker/prbot/internal/vcs"
	ghvcs "github.com/sanix-darker/prbot/internal/vcs/github"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "review",
		Short: "Review the current pull request (default command)",
		Example: "prbot review --repo acme/app --pr 42\n" +
			"prbot review --local --base main --dry-run\n" +
			"GITHUB_EVENT_PATH=event.json prbot review --comment-style summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd.Context(), cmd.OutOrStdout())
		},
	})
}

func runReview(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := config.Load(v)
	if err != nil {
		return err
	}
	log := common.NewLogger(os.Stderr, opts.Debug, opts.LogFormat)

	workspace, err := filepath.Abs(opts.Workspace)
	if err != nil {
		return fmt.Errorf("%w: workspace %s: %v", config.ErrInvalidConfig, opts.Workspace, err)
	}
	ws := afero.NewBasePathFs(afero.NewOsFs(), workspace)

	reviewer, err := newReviewer(opts, log)
	if err != nil {
		return err
	}

	deps := review.Deps{
		Rules:     rules.NewStore(afero.NewOsFs(), workspace, log),
		Reviewer:  reviewer,
		Workspace: ws,
		Log:       log,
	}

	var (
		target review.Target
		repo   *core.LocalRepo
	)
	if opts.Local {
		// a local review has no pull request to comment on
		opts.DryRun = true
		repo, err = core.OpenLocalRepo(workspace)
		if err != nil {
			return err
		}
		target, err = localTarget(repo, opts.Base)
		if err != nil {
			return err
		}
	} else {
		if opts.PlatformToken() == "" {
			return fmt.Errorf("%w: a %s token is required, set --%s-token", config.ErrInvalidConfig, opts.Platform, opts.Platform)
		}
		platform, err := vcs.Open(vcs.Connection{
			Platform: opts.Platform,
			Token:    opts.PlatformToken(),
			BaseURL:  opts.PlatformURL(),
			Timeout:  opts.RequestTimeout,
		})
		if err != nil {
			return err
		}
		deps.VCS = platform
		deps.Publisher = comments.NewPublisher(platform, comments.Reconciler{
			MinSeverity:    opts.InlineSeverity,
			UpdateExisting: opts.UpdateExisting,
			BotLogin:       opts.BotLogin,
		}, opts.InlineComments(), log)

		target, err = prTarget(opts, ghvcs.LoadEvent)
		if err != nil {
			return err
		}
	}

	if opts.AutoFix {
		deps.Fixer = newFixer(opts, ws, workspace, repo, log)
	}

	progress := renders.NewProgress(os.Stderr)
	progress.Step("reviewing " + describe(target))
	res, err := review.NewPipeline(opts, deps).Run(ctx, target)
	progress.Stop()
	if res != nil {
		if oerr := writeOutputs(os.Getenv("GITHUB_OUTPUT"), res); oerr != nil {
			log.Warn().Err(oerr).Msg("failed to write step outputs")
		}
		logResult(log, res)
	}
	if err != nil {
		return err
	}

	if opts.DryRun {
		report := review.FormatReport(res)
		if err := renders.Print(out, report); err != nil {
			return err
		}
		if opts.Copy {
			if err := common.SetClipboardValue(report); err != nil {
				log.Warn().Err(err).Msg("could not copy the report")
			}
		}
	}
	return nil
}

func newReviewer(opts config.Options, log zerolog.Logger) (provider.Reviewer, error) {
	pc := provider.ResolveProvider(v, opts.Provider, opts.Model, opts.RequestTimeout)
	ai, err := provider.New(pc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	info := ai.Info()
	log.Debug().Str("provider", info.Name).Str("model", info.Model).Msg("AI provider ready")

	ropts := []provider.ReviewerOption{provider.WithTimeout(opts.RequestTimeout)}
	if n := pc.Viper.GetInt("max_tokens"); n > 0 {
		ropts = append(ropts, provider.WithMaxTokens(n))
	}
	return provider.NewChatReviewer(ai, provider.NewPacer(opts.Delay), log, ropts...), nil
}

func newFixer(opts config.Options, ws afero.Fs, workspace string, repo *core.LocalRepo, log zerolog.Logger) review.Fixer {
	var fopts []autofix.Option
	if opts.Interactive {
		fopts = append(fopts, autofix.WithConfirm(printers.Confirm), autofix.WithPreview(os.Stderr))
	}
	if opts.AutoFixCommit && !opts.Local {
		if repo == nil {
			var err error
			if repo, err = core.OpenLocalRepo(workspace); err != nil {
				log.Warn().Err(err).Msg("auto-fix commit disabled: workspace is not a git repository")
			}
		}
		if repo != nil {
			fopts = append(fopts, autofix.WithCommit(repo, opts.PlatformToken(), autofix.DefaultAuthor))
		}
	}
	return autofix.NewFixer(ws, autofix.NewSelector(opts.AutoFixSeverity), log, fopts...)
}

// prTarget resolves the pull request from flags first, then from the
// event payload of the workflow run.
func prTarget(opts config.Options, loadEvent func(string) (ghvcs.EventContext, error)) (review.Target, error) {
	var target review.Target
	if opts.Repository != "" {
		repo, err := vcs.ParseRepo(opts.Repository)
		if err != nil {
			return target, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		target.Repo = repo
	}
	target.Number = opts.PRNumber

	if target.Number == 0 && opts.EventPath != "" {
		ev, err := loadEvent(opts.EventPath)
		if err != nil {
			return target, fmt.Errorf("%w: %w", review.ErrNoPullRequest, err)
		}
		target.Number = ev.Number
		if target.Repo.Owner == "" {
			target.Repo = ev.Repo
		}
	}
	if target.Number <= 0 || target.Repo.Owner == "" {
		return target, review.ErrNoPullRequest
	}
	return target, nil
}

func localTarget(repo *core.LocalRepo, base string) (review.Target, error) {
	raw, err := repo.DiffAgainst(base)
	if err != nil {
		return review.Target{}, err
	}
	files, err := diffparse.ParseGitDiff(raw)
	if err != nil {
		return review.Target{}, fmt.Errorf("parse local diff: %w", err)
	}
	head, err := repo.HeadBranch()
	if err != nil {
		return review.Target{}, err
	}
	if head == "" {
		head = "HEAD"
	}
	return review.Target{
		PR: &vcs.PullRequest{
			Title:      fmt.Sprintf("%s against %s", head, base),
			HeadBranch: head,
			BaseBranch: base,
		},
		Files: files,
	}, nil
}

func describe(t review.Target) string {
	if t.PR != nil {
		return t.PR.Title
	}
	return fmt.Sprintf("%s#%d", t.Repo, t.Number)
}

func logResult(log zerolog.Logger, res *review.Result) {
	counts := res.Counts()
	ev := log.Info().
		Str("status", string(res.Status)).
		Int("issues", len(res.Issues)).
		Int("errors", counts[core.SeverityError]).
		Int("warnings", counts[core.SeverityWarning]).
		Int("files_reviewed", res.FilesReviewed).
		Int("total_files", res.TotalFiles).
		Int("comments_created", res.Comments.Created).
		Int("comments_updated", res.Comments.Updated).
		Int("fixes_applied", res.FixesApplied())
	if res.Skipped {
		ev = ev.Str("skipped", res.SkipReason)
	}
	ev.Msg("review finished")
}
