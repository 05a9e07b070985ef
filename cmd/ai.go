package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanix-darker/prbot/internal/config"
	"github.com/sanix-darker/prbot/internal/provider"
)

func init() {
	aiCmd := &cobra.Command{
		Use:   "ai",
		Short: "Manage AI providers",
	}

	aiCmd.AddCommand(newAIListCmd())
	aiCmd.AddCommand(newAIShowCmd())
	rootCmd.AddCommand(aiCmd)
}

func newAIListCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available AI providers",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available providers:")
			for _, name := range provider.Names() {
				p, err := provider.New(provider.ResolveProvider(v, name, "", 0))
				if err != nil {
					fmt.Fprintf(out, "  - %-15s (not configured)\n", name)
					continue
				}
				info := p.Info()
				status := "configured"
				if check {
					ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
					if err := p.Validate(ctx); err != nil {
						status = "unreachable: " + err.Error()
					}
					cancel()
				}
				fmt.Fprintf(out, "  - %-15s %s [%s] (default model: %s)\n",
					info.Name, info.DisplayName, status, info.DefaultModel)
			}
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "send a minimal request to each configured provider")
	return cmd
}

func newAIShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current AI provider and model",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(v)
			if err != nil {
				return err
			}
			p, err := provider.New(provider.ResolveProvider(v, opts.Provider, opts.Model, opts.RequestTimeout))
			if err != nil {
				return err
			}

			info := p.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "Provider: %s (%s)\n", info.Name, info.DisplayName)
			fmt.Fprintf(cmd.OutOrStdout(), "Model:    %s\n", info.Model)
			return nil
		},
	}
}
