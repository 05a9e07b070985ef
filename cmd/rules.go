package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sanix-darker/prbot/internal/common"
	"github.com/sanix-darker/prbot/internal/config"
	"github.com/sanix-darker/prbot/internal/rules"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "rules [paths...]",
		Short: "Show the rules loaded from the workspace and which apply to paths",
		Example: "prbot rules\n" +
			"prbot rules src/app.ts docs/index.md --workspace ../project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(v)
			if err != nil {
				return err
			}
			log := common.NewLogger(cmd.ErrOrStderr(), opts.Debug, opts.LogFormat)
			workspace, err := filepath.Abs(opts.Workspace)
			if err != nil {
				return err
			}

			set, err := rules.NewStore(afero.NewOsFs(), workspace, log).LoadAll(opts.RulesPath)
			if err != nil {
				return err
			}
			printRules(cmd.OutOrStdout(), set, args)
			return nil
		},
	})
}

func printRules(w io.Writer, set rules.RuleSet, paths []string) {
	all := set.All()
	if len(all) == 0 {
		fmt.Fprintln(w, "No rules found.")
		return
	}

	fmt.Fprintf(w, "%d rules loaded:\n", len(all))
	for _, r := range all {
		scope := "all files"
		if !r.Global() {
			scope = strings.Join(r.Globs, ", ")
		}
		fmt.Fprintf(w, "  - %-24s %-12s %s (%s)\n", r.Name, r.Kind, scope, r.Source)
		for _, ref := range r.References {
			fmt.Fprintf(w, "      @%s\n", ref.Path)
		}
	}

	if len(paths) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, p := range paths {
		var names []string
		for _, r := range all {
			if r.AppliesTo(p) {
				names = append(names, r.Name)
			}
		}
		if len(names) == 0 {
			names = []string{"(none)"}
		}
		fmt.Fprintf(w, "%s: %s\n", p, strings.Join(names, ", "))
	}
}
