package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/neurodemo/internal/neuron"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if s.Path() != filepath.Join(dir, DBFile) {
		t.Errorf("Path() = %q", s.Path())
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestRecordWithoutSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.RecordStimulus(ctx, t0, neuron.StimulusResult{Node: neuron.Input1, Applied: true, Level: 60})
	if !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("RecordStimulus = %v, want ErrNoActiveSession", err)
	}
	if err := s.EndSession(ctx, t0); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("EndSession = %v, want ErrNoActiveSession", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	params := neuron.DefaultParams()
	params.ActivationThreshold = 120

	id, err := s.StartSession(ctx, t0, params)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	steps := []func() error{
		func() error {
			return s.RecordStimulus(ctx, t0, neuron.StimulusResult{Node: neuron.Input1, Applied: true, Level: 60})
		},
		func() error {
			return s.RecordStimulus(ctx, t0.Add(10*time.Millisecond), neuron.StimulusResult{Node: neuron.Input1, Applied: false, Level: 60})
		},
		func() error {
			return s.RecordStimulus(ctx, t0.Add(20*time.Millisecond), neuron.StimulusResult{Node: neuron.Input2, Applied: true, Level: 120})
		},
		func() error {
			return s.RecordTick(ctx, t0.Add(20*time.Millisecond), neuron.TickResult{Fired: true, Level: 120})
		},
		// Quiet tick stores nothing.
		func() error {
			return s.RecordTick(ctx, t0.Add(30*time.Millisecond), neuron.TickResult{Level: 120})
		},
		func() error {
			return s.RecordTick(ctx, t0.Add(500*time.Millisecond), neuron.TickResult{
				Reset:       true,
				Deactivated: []neuron.NodeID{neuron.Input1, neuron.Output},
			})
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	if err := s.EndSession(ctx, t0.Add(time.Second)); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !sess.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want %v", sess.StartedAt, t0)
	}
	if sess.EndedAt == nil || !sess.EndedAt.Equal(t0.Add(time.Second)) {
		t.Errorf("EndedAt = %v, want %v", sess.EndedAt, t0.Add(time.Second))
	}
	if sess.Params.ActivationThreshold != 120 {
		t.Errorf("params threshold = %v, want 120", sess.Params.ActivationThreshold)
	}
	if sess.Params.RefractoryPeriod != params.RefractoryPeriod {
		t.Errorf("params refractory = %v, want %v", sess.Params.RefractoryPeriod, params.RefractoryPeriod)
	}

	events, err := s.Events(ctx, id)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}

	want := []struct {
		kind string
		node neuron.NodeID
	}{
		{KindStimulate, neuron.Input1},
		{KindBlocked, neuron.Input1},
		{KindStimulate, neuron.Input2},
		{KindFire, neuron.Output},
		{KindDeactivate, neuron.Input1},
		{KindDeactivate, neuron.Output},
		{KindReset, neuron.Output},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, w := range want {
		e := events[i]
		if e.Seq != int64(i+1) {
			t.Errorf("event %d seq = %d", i, e.Seq)
		}
		if e.Kind != w.kind || e.Node != w.node {
			t.Errorf("event %d = %s/%s, want %s/%s", i, e.Kind, e.Node, w.kind, w.node)
		}
	}
	if !events[1].At.Equal(t0.Add(10 * time.Millisecond)) {
		t.Errorf("event time = %v", events[1].At)
	}
	if sess.Events != len(want) {
		t.Errorf("session event count = %d, want %d", sess.Events, len(want))
	}

	// Recording stops after the session ends.
	err = s.RecordStimulus(ctx, t0.Add(2*time.Second), neuron.StimulusResult{Node: neuron.Input1, Applied: true})
	if !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("RecordStimulus after end = %v, want ErrNoActiveSession", err)
	}
}

func TestRecordParams(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := neuron.DefaultParams()
	id, err := s.StartSession(ctx, t0, start)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	reloaded := start
	reloaded.ActivationThreshold = 150
	reloaded.RefractoryPeriod = 2 * time.Second
	if err := s.RecordParams(ctx, t0.Add(time.Second), reloaded); err != nil {
		t.Fatalf("RecordParams failed: %v", err)
	}
	if err := s.RecordStimulus(ctx, t0.Add(2*time.Second), neuron.StimulusResult{Node: neuron.Input1, Applied: true, Level: 60}); err != nil {
		t.Fatal(err)
	}

	events, err := s.Events(ctx, id)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	e := events[0]
	if e.Kind != KindParams || e.Node != "" || e.Level != 150 {
		t.Errorf("params event = %+v", e)
	}
	if e.Params == nil || *e.Params != reloaded {
		t.Errorf("params event detail = %+v, want %+v", e.Params, reloaded)
	}
	if events[1].Params != nil {
		t.Errorf("stimulus event should carry no params, got %+v", events[1].Params)
	}

	// The session keeps the parameters it started with.
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Params != start {
		t.Errorf("session params = %+v, want starting params %+v", sess.Params, start)
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.StartSession(ctx, t0, neuron.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordStimulus(ctx, t0, neuron.StimulusResult{Node: neuron.Input2, Applied: true, Level: 60}); err != nil {
		t.Fatal(err)
	}
	if err := s.EndSession(ctx, t0.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	// Sub-second start times must still order correctly.
	second, err := s.StartSession(ctx, t0.Add(1500*time.Millisecond), neuron.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != second || sessions[1].ID != first {
		t.Errorf("order = [%s %s], want [%s %s]", sessions[0].ID, sessions[1].ID, second, first)
	}
	if sessions[0].EndedAt != nil {
		t.Error("open session should have no end time")
	}
	if sessions[1].Events != 1 {
		t.Errorf("first session events = %d, want 1", sessions[1].Events)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession = %v, want ErrSessionNotFound", err)
	}
	if _, err := s.Events(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Events = %v, want ErrSessionNotFound", err)
	}
}

func TestReopenKeepsSessions(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.StartSession(ctx, t0, neuron.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if _, err := s.GetSession(ctx, id); err != nil {
		t.Errorf("session lost after reopen: %v", err)
	}
}
