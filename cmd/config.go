package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sanix-darker/prbot/internal/common"
	"github.com/sanix-darker/prbot/internal/config"
	"github.com/sanix-darker/prbot/internal/provider"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage prbot configuration",
	}

	configCmd.AddCommand(newConfigSampleCmd())
	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	rootCmd.AddCommand(configCmd)
}

func newConfigSampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Print a documented sample configuration",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), provider.SampleConfigYAML())
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the sample config at ~/.config/prbot/config.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := common.ExpandPath(config.ConfigFilePath)

			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			// Don't overwrite existing config
			if _, err := os.Stat(cfgPath); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Config file already exists at %s\n", cfgPath)
				return nil
			}
			if err := os.WriteFile(cfgPath, []byte(provider.SampleConfigYAML()), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", cfgPath)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after file, env and flag overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(v); err != nil {
				return err
			}
			if used := v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# Config file: %s\n", used)
			}
			out, err := yaml.Marshal(redactSecrets(v.AllSettings()))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

// redactSecrets returns a copy of settings with every key, token or secret
// value masked.
func redactSecrets(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, raw := range settings {
		switch val := raw.(type) {
		case map[string]any:
			out[k] = redactSecrets(val)
		case string:
			if isSecretKey(k) && val != "" {
				out[k] = "***"
			} else {
				out[k] = val
			}
		default:
			out[k] = val
		}
	}
	return out
}

func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	return strings.HasSuffix(k, "api_key") || strings.HasSuffix(k, "token") || strings.Contains(k, "secret")
}
