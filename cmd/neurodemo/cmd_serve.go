package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nvandessel/neurodemo/internal/visualization"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the interactive demo in the browser",
		Long: `Start the render loop and a local web server showing the neurons.

Click an input neuron to stimulate it. The page is updated live over a
WebSocket. Edits to the config file are applied to the running model.

Examples:
  neurodemo serve                       # Random port, opens the browser
  neurodemo serve --addr localhost:8080 --no-open
  neurodemo serve --record              # Store the session in sessions.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			if bg, _ := cmd.Flags().GetString("background"); bg != "" {
				cfg.Display.Background = bg
			}
			if noOpen, _ := cmd.Flags().GetBool("no-open"); noOpen {
				cfg.Server.OpenBrowser = false
			}
			if record, _ := cmd.Flags().GetBool("record"); record {
				cfg.Recording.Enabled = true
			}

			logger := newLogger(cfg)
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			d, err := newDemo(ctx, cfg, logger, cfg.Recording.Enabled)
			if err != nil {
				return err
			}
			defer func() {
				if err := d.Close(); err != nil {
					logger.Warn("closing demo", "error", err)
				}
			}()

			srv, err := visualization.NewServer(d.loop, visualization.Options{
				Addr:           cfg.Server.Addr,
				BackgroundPath: cfg.Display.Background,
				Logger:         logger,
			})
			if err != nil {
				return err
			}

			loopDone := make(chan struct{})
			go func() {
				defer close(loopDone)
				d.loop.Run(ctx)
			}()
			d.watchConfig(ctx, configPath(cmd))

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(ctx) }()

			// Wait for server to start
			deadline := time.Now().Add(3 * time.Second)
			for time.Now().Before(deadline) && srv.Addr() == "" {
				select {
				case err := <-errCh:
					cancel()
					<-loopDone
					return fmt.Errorf("server error: %w", err)
				case <-time.After(10 * time.Millisecond):
				}
			}

			url := srv.URL()
			if url == "" {
				cancel()
				<-loopDone
				return fmt.Errorf("server failed to start")
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"url":     url,
					"session": d.session,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Neuron demo running at %s\n", url)
				if d.session != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Recording session %s\n", d.session)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")
			}

			if cfg.Server.OpenBrowser {
				if err := visualization.OpenBrowser(url); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
				}
			}

			// Block until server exits
			err = <-errCh
			cancel()
			<-loopDone
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, localhost:0)")
	cmd.Flags().String("background", "", "Background image path")
	cmd.Flags().Bool("no-open", false, "Don't open the browser")
	cmd.Flags().Bool("record", false, "Record the session in the session database")

	return cmd
}
