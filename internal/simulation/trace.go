package simulation

import (
	"fmt"
	"io"
	"strings"

	"github.com/nvandessel/neurodemo/internal/loop"
	"github.com/nvandessel/neurodemo/internal/neuron"
)

// WriteTable prints the trace as a fixed-width table. Unless all is set,
// only notable frames are printed.
func WriteTable(w io.Writer, res *Result, all bool) error {
	if _, err := fmt.Fprintf(w, "%-10s %8s %5s  %-3s %-3s %-3s  %s\n",
		"TIME", "LEVEL", "PCT", "IN1", "IN2", "OUT", "EVENTS"); err != nil {
		return err
	}

	for _, f := range res.Frames {
		if !all && !Notable(f) {
			continue
		}
		_, err := fmt.Fprintf(w, "%-10s %8.2f %4.0f%%  %-3s %-3s %-3s  %s\n",
			fmt.Sprintf("%.3fs", res.Offset(f).Seconds()),
			f.Snapshot.Level,
			f.Snapshot.Percent,
			mark(f.Snapshot.Input1.Active),
			mark(f.Snapshot.Input2.Active),
			mark(f.Snapshot.Output.Active),
			describe(f))
		if err != nil {
			return err
		}
	}
	return nil
}

func mark(active bool) string {
	if active {
		return "*"
	}
	return "."
}

// describe summarizes what happened in a frame, in the order it happened.
func describe(f loop.Frame) string {
	var parts []string
	for _, s := range f.Stimuli {
		if s.Applied {
			parts = append(parts, "stimulate "+string(s.Node))
		} else {
			parts = append(parts, "blocked "+string(s.Node))
		}
	}
	for i := 0; i < f.Misses; i++ {
		parts = append(parts, "miss")
	}
	if f.Tick.Fired {
		parts = append(parts, "fire")
	}
	for _, id := range f.Tick.Deactivated {
		if id != neuron.Output || !f.Tick.Reset {
			parts = append(parts, "deactivate "+string(id))
		}
	}
	if f.Tick.Reset {
		parts = append(parts, "reset")
	}
	return strings.Join(parts, ", ")
}
