package simulation

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/neurodemo/internal/constants"
	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/neuron"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	sc, err := ParseScenario([]byte(src))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}
	return sc
}

func mustRun(t *testing.T, sc *Scenario) *Result {
	t.Helper()
	res, err := NewRunner().Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestParseScenario_Defaults(t *testing.T) {
	sc := mustParse(t, `
name: defaults
params:
  activation_threshold: 150
steps:
  - at: 20ms
    stimulate: [input2]
  - at: 0s
    click: {x: 121, y: 151}
`)

	if sc.Params.ActivationThreshold != 150 {
		t.Errorf("threshold = %v, want 150", sc.Params.ActivationThreshold)
	}
	if sc.Params.StimulationIncrement != constants.DefaultStimulationIncrement {
		t.Errorf("increment = %v, want default", sc.Params.StimulationIncrement)
	}
	if sc.FPS != constants.DefaultFPS {
		t.Errorf("fps = %d, want default %d", sc.FPS, constants.DefaultFPS)
	}
	if sc.Steps[0].At != 0 || sc.Steps[0].Click == nil {
		t.Errorf("steps should be sorted by time, got %+v", sc.Steps)
	}
	if sc.End() != 20*time.Millisecond {
		t.Errorf("End() = %s, want 20ms", sc.End())
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"bad yaml", "steps: [", "parsing scenario"},
		{"output stimulated", "steps:\n  - at: 0s\n    stimulate: [output]\n", "not an input"},
		{"negative time", "steps:\n  - at: -1s\n    stimulate: [input1]\n", "negative time"},
		{"bad params", "params:\n  activation_threshold: 0\n", "params:"},
		{"fps too high", "fps: 1000\n", "fps"},
		{"negative duration", "duration: -2s\n", "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseScenario = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fire.yaml")
	if err := os.WriteFile(path, []byte("steps:\n  - at: 0s\n    stimulate: [input1, input2]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.Name != path {
		t.Errorf("unnamed scenario should take the file path, got %q", sc.Name)
	}

	if _, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRun_FireThenReset(t *testing.T) {
	sc := mustParse(t, `
name: fire-then-reset
duration: 1s
steps:
  - at: 0s
    stimulate: [input1]
  - at: 10ms
    stimulate: [input2]
`)
	res := mustRun(t, sc)

	AssertStimulus(t, res, 0, neuron.Input1, true)
	AssertStimulus(t, res, 10*time.Millisecond, neuron.Input2, true)
	AssertFiredAt(t, res, 10*time.Millisecond)
	AssertFireCount(t, res, 1)
	AssertLevelInBounds(t, res)

	// The reset lands on the first frame more than 400ms after firing.
	interval := time.Second / time.Duration(sc.FPS)
	AssertResetBetween(t, res, 410*time.Millisecond, 410*time.Millisecond+interval)

	last := res.Frames[len(res.Frames)-1]
	if last.Snapshot.Level != 0 || last.Snapshot.Output.Active {
		t.Errorf("final frame should be quiet, got %+v", last.Snapshot)
	}
}

func TestRun_RefractoryBlocksRepeatClicks(t *testing.T) {
	sc := mustParse(t, `
fps: 0
params:
  activation_threshold: 200
steps:
  - at: 0s
    click: {x: 121, y: 151}
  - at: 1s
    click: {x: 121, y: 151}
  - at: 1600ms
    click: {x: 121, y: 151}
`)
	res := mustRun(t, sc)

	AssertStimulus(t, res, 0, neuron.Input1, true)
	AssertStimulus(t, res, time.Second, neuron.Input1, false)
	AssertStimulus(t, res, 1600*time.Millisecond, neuron.Input1, true)
	AssertNeverFired(t, res)

	if len(res.Frames) != 3 {
		t.Errorf("fps 0 should run only step frames, got %d", len(res.Frames))
	}
}

func TestRun_ManyStepsAtOneInstant(t *testing.T) {
	n := constants.DefaultEventQueueSize + 6

	var b strings.Builder
	b.WriteString("fps: 0\nparams:\n  activation_threshold: 100000\nsteps:\n")
	for i := 0; i < n; i++ {
		b.WriteString("  - at: 0s\n    stimulate: [input1]\n")
	}
	b.WriteString("  - at: 0s\n    click: {x: 400, y: 400}\n")

	res := mustRun(t, mustParse(t, b.String()))

	f, ok := res.FrameAt(0)
	if !ok {
		t.Fatal("no frame at 0s")
	}
	if len(f.Stimuli) != n {
		t.Errorf("frame 0 applied %d stimuli, want %d", len(f.Stimuli), n)
	}
	if f.Misses != 1 {
		t.Errorf("frame 0 misses = %d, want 1", f.Misses)
	}
	AssertStimulus(t, res, 0, neuron.Input1, true)
}

func TestRun_ClickMissesAreCounted(t *testing.T) {
	sc := mustParse(t, `
fps: 0
steps:
  - at: 0s
    click: {x: 400, y: 400}
`)
	res := mustRun(t, sc)
	if res.Frames[0].Misses != 1 || len(res.Frames[0].Stimuli) != 0 {
		t.Errorf("frame = %+v, want one miss", res.Frames[0])
	}
}

func TestRun_SingleInputDecaysAway(t *testing.T) {
	sc := mustParse(t, `
duration: 10s
params:
  decay_mode: time
  decay_per_second: 30
steps:
  - at: 0s
    stimulate: [input1]
  - at: 1s
`)
	res := mustRun(t, sc)

	AssertNeverFired(t, res)
	AssertLevelInBounds(t, res)

	f, ok := res.FrameAt(time.Second)
	if !ok {
		t.Fatal("no frame at 1s")
	}
	// 60 charge minus 30/s for one second.
	if diff := f.Snapshot.Level - 30; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("level at 1s = %v, want 30", f.Snapshot.Level)
	}
	if last := res.Frames[len(res.Frames)-1]; last.Snapshot.Level != 0 {
		t.Errorf("charge should decay to zero, got %v", last.Snapshot.Level)
	}
}

func TestRun_CustomLayout(t *testing.T) {
	lay := layout.Default()
	lay.Input1 = layout.Point{X: 500, Y: 50}

	sc := mustParse(t, "fps: 0\nsteps:\n  - at: 0s\n    click: {x: 500, y: 50}\n")
	res, err := NewRunner(WithLayout(lay)).Run(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	AssertStimulus(t, res, 0, neuron.Input1, true)
}

type countingRecorder struct {
	stimuli, ticks int
}

func (r *countingRecorder) RecordStimulus(context.Context, time.Time, neuron.StimulusResult) error {
	r.stimuli++
	return nil
}

func (r *countingRecorder) RecordTick(context.Context, time.Time, neuron.TickResult) error {
	r.ticks++
	return nil
}

func TestRun_Recorder(t *testing.T) {
	rec := &countingRecorder{}
	sc := mustParse(t, "duration: 1s\nsteps:\n  - at: 0s\n    stimulate: [input1, input2]\n")

	if _, err := NewRunner(WithRecorder(rec)).Run(context.Background(), sc); err != nil {
		t.Fatal(err)
	}
	if rec.stimuli != 2 {
		t.Errorf("recorded %d stimuli, want 2", rec.stimuli)
	}
	// Fire, input deactivation with output reset.
	if rec.ticks != 2 {
		t.Errorf("recorded %d ticks, want 2", rec.ticks)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := mustParse(t, "duration: 1s\n")
	_, err := NewRunner().Run(ctx, sc)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestWriteTable(t *testing.T) {
	sc := mustParse(t, `
duration: 1s
steps:
  - at: 0s
    stimulate: [input1]
  - at: 10ms
    stimulate: [input2, input2]
`)
	res := mustRun(t, sc)

	var buf bytes.Buffer
	if err := WriteTable(&buf, res, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{"TIME", "stimulate input1", "blocked input2", "fire", "reset", "deactivate input1"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "deactivate output") {
		t.Errorf("output deactivation should be reported as reset:\n%s", out)
	}

	var all bytes.Buffer
	if err := WriteTable(&all, res, true); err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(all.String(), "\n"); lines != len(res.Frames)+1 {
		t.Errorf("full table has %d lines, want %d", lines, len(res.Frames)+1)
	}
}
