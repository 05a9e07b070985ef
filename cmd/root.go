/*
Copyright © 2023 sanix-darker <s4nixd@gmail.com>

*/

package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sanix-darker/prbot/internal/config"
	_ "github.com/sanix-darker/prbot/internal/provider/init"
	_ "github.com/sanix-darker/prbot/internal/vcs/init"
)

var (
	cfgFile string
	v       = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "prbot",
	Short: "An AI pull request reviewer for your CI.",
	Long: `Review pull requests with an AI provider, guided by the rules of your
repository (.cursor/rules, AGENTS.md, .cursorrules), and post the findings
as inline and summary comments.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	// without a subcommand prbot reviews, as the GitHub Action does
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd.Context(), cmd.OutOrStdout())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.prbot.yml, then ~/.config/prbot/config.yml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose logging")
	rootCmd.PersistentFlags().String("log-format", "console", "log format: console or json")
	config.RegisterFlags(rootCmd.PersistentFlags())
}

// loadSettings binds flags and environment into v, then reads the config
// file; flags and environment keep precedence over the file.
func loadSettings(cmd *cobra.Command, _ []string) error {
	if err := config.Bind(v, cmd.Flags()); err != nil {
		return err
	}
	if err := v.BindPFlag(config.KeyDebug, cmd.Flags().Lookup("debug")); err != nil {
		return err
	}
	if err := v.BindPFlag(config.KeyLogFormat, cmd.Flags().Lookup("log-format")); err != nil {
		return err
	}
	return config.ReadConfigFile(v, cfgFile)
}
