package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/neurodemo/internal/logging"
	"github.com/nvandessel/neurodemo/internal/simulation"
	"github.com/nvandessel/neurodemo/internal/store"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a scripted scenario on a simulated clock",
		Long: `Run a YAML scenario of timed stimulations and clicks without a window
and print the resulting frames.

By default only frames where something happened are printed. Use --all
for every frame.

Example scenario:
  name: double-click
  fps: 60
  duration: 3s
  steps:
    - at: 0s
      stimulate: [input1]
    - at: 500ms
      click: {x: 121, y: 331}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			record, _ := cmd.Flags().GetBool("record")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			sc, err := simulation.LoadScenario(args[0])
			if err != nil {
				return err
			}

			trace := logging.NewEventLogger(cfg.LogDir(), cfg.Logging.Level)
			defer trace.Close()

			opts := []simulation.Option{
				simulation.WithLayout(cfg.Display.Layout),
				simulation.WithLogger(logger),
				simulation.WithEventLogger(trace),
			}

			var sessionID string
			if record {
				st, err := store.Open(cfg.RecordingDir())
				if err != nil {
					return fmt.Errorf("open session store: %w", err)
				}
				defer st.Close()

				sessionID, err = st.StartSession(cmd.Context(), simulation.Epoch, sc.Params)
				if err != nil {
					return fmt.Errorf("start session: %w", err)
				}
				defer func() {
					if err := st.EndSession(cmd.Context(), simulation.Epoch.Add(sc.End())); err != nil {
						logger.Warn("end session failed", "error", err)
					}
				}()
				opts = append(opts, simulation.WithRecorder(st))
			}

			res, err := simulation.NewRunner(opts...).Run(cmd.Context(), sc)
			if err != nil {
				return fmt.Errorf("run scenario: %w", err)
			}

			if jsonOut {
				frames := res.Frames
				if !all {
					frames = frames[:0:0]
					for _, f := range res.Frames {
						if simulation.Notable(f) {
							frames = append(frames, f)
						}
					}
				}
				firings := []float64{}
				for _, d := range res.Firings() {
					firings = append(firings, d.Seconds())
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"scenario": res.Scenario,
					"session":  sessionID,
					"params":   res.Params,
					"firings":  firings,
					"frames":   frames,
				})
			}

			if err := simulation.WriteTable(cmd.OutOrStdout(), res, all); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d frames, output fired %d time(s)\n", len(res.Frames), len(res.Firings()))
			if sessionID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded as session %s\n", sessionID)
			}
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "Print every frame, not only frames with events")
	cmd.Flags().Bool("record", false, "Record the run in the session database")

	return cmd
}
