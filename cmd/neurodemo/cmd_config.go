package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/neurodemo/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect neurodemo configuration",
		Long: `Show and validate the effective configuration.

Configuration is read from ~/.neurodemo/config.yaml (or --config), then
overridden by NEURODEMO_* environment variables.

Examples:
  neurodemo config show                  # Effective settings as YAML
  neurodemo config show --json
  neurodemo config validate --config demo.yaml`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigValidateCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			data, err := cfg.Marshal()
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if path := configPath(cmd); path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "# defaults (no config file)")
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := configPath(cmd)

			_, err := loadConfig(cmd)
			if jsonOut {
				result := map[string]any{
					"valid": err == nil,
					"path":  path,
				}
				if err != nil {
					result["error"] = err.Error()
				}
				json.NewEncoder(cmd.OutOrStdout()).Encode(result)
				return err
			}
			if err != nil {
				return err
			}

			if path == "" {
				path = "defaults (" + config.DefaultPath() + " not found)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK: %s\n", path)
			return nil
		},
	}
}
