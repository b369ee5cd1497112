package simulation

import (
	"testing"
	"time"

	"github.com/nvandessel/neurodemo/internal/neuron"
)

// AssertFiredAt asserts that the output fired in the frame at offset d.
func AssertFiredAt(t testing.TB, res *Result, d time.Duration) {
	t.Helper()
	f, ok := res.FrameAt(d)
	if !ok {
		t.Errorf("AssertFiredAt: no frame at %s", d)
		return
	}
	if !f.Tick.Fired {
		t.Errorf("AssertFiredAt: output did not fire at %s (level %.2f)", d, f.Snapshot.Level)
	}
}

// AssertFireCount asserts how many times the output fired over the run.
func AssertFireCount(t testing.TB, res *Result, want int) {
	t.Helper()
	if got := len(res.Firings()); got != want {
		t.Errorf("AssertFireCount: output fired %d times at %v, want %d", got, res.Firings(), want)
	}
}

// AssertNeverFired asserts that the output stayed quiet for the whole run.
func AssertNeverFired(t testing.TB, res *Result) {
	t.Helper()
	if firings := res.Firings(); len(firings) > 0 {
		t.Errorf("AssertNeverFired: output fired at %v", firings)
	}
}

// AssertResetBetween asserts that the output reset exactly once in the
// window (from, to].
func AssertResetBetween(t testing.TB, res *Result, from, to time.Duration) {
	t.Helper()
	var resets []time.Duration
	for _, f := range res.Frames {
		if d := res.Offset(f); f.Tick.Reset && d > from && d <= to {
			resets = append(resets, d)
		}
	}
	if len(resets) != 1 {
		t.Errorf("AssertResetBetween: resets in (%s, %s] = %v, want exactly one", from, to, resets)
	}
}

// AssertLevelInBounds asserts that the published charge never left
// [0, threshold].
func AssertLevelInBounds(t testing.TB, res *Result) {
	t.Helper()
	for _, f := range res.Frames {
		if f.Snapshot.Level < 0 || f.Snapshot.Level > res.Params.ActivationThreshold {
			t.Errorf("AssertLevelInBounds: frame %d at %s has level %.4f outside [0, %.2f]",
				f.Seq, res.Offset(f), f.Snapshot.Level, res.Params.ActivationThreshold)
		}
	}
}

// AssertStimulus asserts whether the stimulation of id in the frame at
// offset d was applied or refractory-blocked.
func AssertStimulus(t testing.TB, res *Result, d time.Duration, id neuron.NodeID, applied bool) {
	t.Helper()
	f, ok := res.FrameAt(d)
	if !ok {
		t.Errorf("AssertStimulus: no frame at %s", d)
		return
	}
	for _, s := range f.Stimuli {
		if s.Node == id {
			if s.Applied != applied {
				t.Errorf("AssertStimulus: %s at %s applied=%v, want %v", id, d, s.Applied, applied)
			}
			return
		}
	}
	t.Errorf("AssertStimulus: no stimulation of %s at %s", id, d)
}
