package main

import (
	"fmt"

	"github.com/nvandessel/neurodemo/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run an MCP server over stdio",
		Long: `Run the neuron model behind a Model Context Protocol server on stdin/stdout.

Agents can stimulate inputs, click the canvas, and read the model state
with the neuron_stimulate, neuron_click, and neuron_snapshot tools. Tool
calls are appended to audit.jsonl in the log directory.

Add to your MCP client config:
  {"mcpServers": {"neurodemo": {"command": "neurodemo", "args": ["mcp-server"]}}}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			record, _ := cmd.Flags().GetBool("record")

			logger := newLogger(cfg)
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			d, err := newDemo(ctx, cfg, logger, record || cfg.Recording.Enabled)
			if err != nil {
				return err
			}
			defer func() {
				if err := d.Close(); err != nil {
					logger.Warn("closing demo", "error", err)
				}
			}()

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "neurodemo",
				Version:  version,
				Loop:     d.loop,
				AuditDir: cfg.LogDir(),
				Logger:   logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			loopDone := make(chan struct{})
			go func() {
				defer close(loopDone)
				d.loop.Run(ctx)
			}()
			d.watchConfig(ctx, configPath(cmd))

			err = server.Run(ctx)
			interrupted := ctx.Err() != nil
			cancel()
			<-loopDone
			if err != nil && !interrupted {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().Bool("record", false, "Record the session in the session database")

	return cmd
}
