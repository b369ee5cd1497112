package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nvandessel/neurodemo/internal/constants"
	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/logging"
	"github.com/nvandessel/neurodemo/internal/loop"
	"github.com/nvandessel/neurodemo/internal/neuron"
)

// Epoch is the fake clock's start time.
var Epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Runner replays scenarios through a fresh loop and model per run.
type Runner struct {
	layout   layout.Layout
	logger   *slog.Logger
	trace    *logging.EventLogger
	recorder loop.Recorder
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLayout sets the geometry used to hit-test scripted clicks.
func WithLayout(l layout.Layout) Option {
	return func(r *Runner) { r.layout = l }
}

// WithLogger sets the operational logger passed to the loop.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithEventLogger sets the JSONL event trace passed to the loop.
func WithEventLogger(trace *logging.EventLogger) Option {
	return func(r *Runner) { r.trace = trace }
}

// WithRecorder records the run, for example into a session database.
func WithRecorder(rec loop.Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// NewRunner creates a runner using the default layout.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		layout: layout.Default(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the frame trace of one run.
type Result struct {
	Scenario string        `json:"scenario"`
	Params   neuron.Params `json:"params"`
	Start    time.Time     `json:"start"`
	Frames   []loop.Frame  `json:"frames"`
}

// Run executes the scenario and returns every frame it produced.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	times := frameTimes(sc)
	batches := scheduleEvents(sc, times)

	queueSize := constants.DefaultEventQueueSize
	for _, batch := range batches {
		if len(batch) > queueSize {
			queueSize = len(batch)
		}
	}

	opts := []loop.Option{loop.WithLogger(r.logger), loop.WithEventLogger(r.trace)}
	if r.recorder != nil {
		opts = append(opts, loop.WithRecorder(r.recorder))
	}
	l := loop.New(neuron.New(sc.Params), r.layout, loop.Config{QueueSize: queueSize}, opts...)

	res := &Result{
		Scenario: sc.Name,
		Params:   sc.Params,
		Start:    Epoch,
		Frames:   make([]loop.Frame, 0, len(times)),
	}

	for i, offset := range times {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		for _, ev := range batches[i] {
			if err := l.Submit(ev); err != nil {
				return res, fmt.Errorf("scenario %q at %s: submit %s event: %w", sc.Name, offset, ev.Kind, err)
			}
		}

		res.Frames = append(res.Frames, l.Step(ctx, Epoch.Add(offset)))
	}

	r.logger.Debug("simulation finished", "scenario", sc.Name, "frames", len(res.Frames))
	return res, nil
}

// scheduleEvents groups the scripted events by the frame that applies them.
// Every step lands in the first frame at or after its time.
func scheduleEvents(sc *Scenario, times []time.Duration) [][]loop.Event {
	batches := make([][]loop.Event, len(times))
	next := 0
	for i, offset := range times {
		for ; next < len(sc.Steps) && sc.Steps[next].At <= offset; next++ {
			step := sc.Steps[next]
			for _, id := range step.Stimulate {
				batches[i] = append(batches[i], loop.Stimulate(id))
			}
			if step.Click != nil {
				batches[i] = append(batches[i], loop.Click(*step.Click))
			}
		}
	}
	return batches
}

// frameTimes merges the regular frame grid with the step times.
func frameTimes(sc *Scenario) []time.Duration {
	end := sc.End()
	seen := make(map[time.Duration]bool)
	var times []time.Duration
	add := func(d time.Duration) {
		if !seen[d] {
			seen[d] = true
			times = append(times, d)
		}
	}

	add(0)
	if sc.FPS > 0 {
		interval := time.Second / time.Duration(sc.FPS)
		for d := interval; d <= end; d += interval {
			add(d)
		}
	}
	for _, step := range sc.Steps {
		add(step.At)
	}

	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}

// Offset returns a frame's time relative to the start of the run.
func (r *Result) Offset(f loop.Frame) time.Duration {
	return f.Time.Sub(r.Start)
}

// FrameAt returns the frame produced at offset d.
func (r *Result) FrameAt(d time.Duration) (loop.Frame, bool) {
	for _, f := range r.Frames {
		if r.Offset(f) == d {
			return f, true
		}
	}
	return loop.Frame{}, false
}

// Firings returns the offsets of every frame in which the output fired.
func (r *Result) Firings() []time.Duration {
	var out []time.Duration
	for _, f := range r.Frames {
		if f.Tick.Fired {
			out = append(out, r.Offset(f))
		}
	}
	return out
}

// Notable reports whether a frame carried input or a state change.
func Notable(f loop.Frame) bool {
	return len(f.Stimuli) > 0 || f.Misses > 0 ||
		f.Tick.Fired || f.Tick.Reset || len(f.Tick.Deactivated) > 0
}
