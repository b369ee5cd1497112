package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nvandessel/neurodemo/internal/config"
	"github.com/nvandessel/neurodemo/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "neurodemo",
		Short: "Interactive neuron activation demo",
		Long: `neurodemo simulates two input neurons feeding an output neuron.

Clicking an input neuron adds charge to the output. Once the charge passes
the activation threshold the output fires, stays lit briefly, then resets.
Inputs ignore clicks during their refractory period, and the charge decays
while nothing happens.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.neurodemo/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newSimulateCmd(),
		newSessionsCmd(),
		newGraphCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig resolves the configuration for a command: defaults, then the
// config file, then environment, then the --log-level flag.
func loadConfig(cmd *cobra.Command) (*config.NeuroConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configPath returns the file a command's configuration came from, or
// empty string when only defaults and environment apply.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	if _, err := os.Stat(config.DefaultPath()); err == nil {
		return config.DefaultPath()
	}
	return ""
}

// newLogger builds the operational logger. Logs go to stderr so stdout
// stays clean for command output and the MCP protocol.
func newLogger(cfg *config.NeuroConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}
