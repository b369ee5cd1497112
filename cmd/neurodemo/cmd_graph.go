package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/neuron"
	"github.com/nvandessel/neurodemo/internal/simulation"
	"github.com/nvandessel/neurodemo/internal/visualization"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the neurons as a graph",
		Long: `Output the three neurons in DOT (Graphviz) or JSON format.

Without --scenario the idle model is drawn. With --scenario the scenario
is simulated and the frame at --at (default: the last frame) is drawn.

Examples:
  neurodemo graph | neato -Tpng > neurons.png
  neurodemo graph --scenario fire.yaml --at 500ms --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			scenarioPath, _ := cmd.Flags().GetString("scenario")
			at, _ := cmd.Flags().GetDuration("at")

			format, err := visualization.ParseFormat(formatName)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lay := cfg.Display.Layout

			snap := neuron.New(cfg.Model).Snapshot()
			if scenarioPath != "" {
				snap, err = scenarioSnapshot(cmd, scenarioPath, lay, at)
				if err != nil {
					return err
				}
			}

			switch format {
			case visualization.FormatDOT:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(snap, lay))

			case visualization.FormatJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(visualization.RenderJSON(snap, lay)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}
			}

			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().String("scenario", "", "Scenario file to simulate before drawing")
	cmd.Flags().Duration("at", -1, "Scenario offset to draw (default: last frame)")

	return cmd
}

// scenarioSnapshot simulates the scenario at path and returns the model
// state at offset at, or at the end when at is negative.
func scenarioSnapshot(cmd *cobra.Command, path string, lay layout.Layout, at time.Duration) (neuron.Snapshot, error) {
	sc, err := simulation.LoadScenario(path)
	if err != nil {
		return neuron.Snapshot{}, err
	}
	if at > sc.End() {
		return neuron.Snapshot{}, fmt.Errorf("--at %s is past the end of the scenario (%s)", at, sc.End())
	}

	res, err := simulation.NewRunner(simulation.WithLayout(lay)).Run(cmd.Context(), sc)
	if err != nil {
		return neuron.Snapshot{}, fmt.Errorf("run scenario: %w", err)
	}
	if len(res.Frames) == 0 {
		return neuron.Snapshot{}, fmt.Errorf("scenario produced no frames")
	}
	if at < 0 {
		return res.Frames[len(res.Frames)-1].Snapshot, nil
	}

	// The last frame at or before the requested offset.
	snap := res.Frames[0].Snapshot
	for _, f := range res.Frames {
		if res.Offset(f) > at {
			break
		}
		snap = f.Snapshot
	}
	return snap, nil
}
