// Package loop runs the single render/update loop that owns the activation
// model. Each frame samples the clock once, applies queued input events in
// arrival order, advances the model by one tick, and publishes the
// resulting Frame to the latest-frame slot and to subscribers.
//
// Only the loop goroutine touches the model. Everything else talks to it by
// submitting events and reading published frames.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/neurodemo/internal/constants"
	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/logging"
	"github.com/nvandessel/neurodemo/internal/neuron"
)

// ErrQueueFull is returned by Submit when the pending event queue is full.
var ErrQueueFull = errors.New("loop: event queue full")

// Recorder receives model events worth keeping. Implementations must not
// retain the results beyond the call.
type Recorder interface {
	RecordStimulus(ctx context.Context, at time.Time, res neuron.StimulusResult) error
	RecordTick(ctx context.Context, at time.Time, res neuron.TickResult) error
}

// ParamsRecorder is implemented by recorders that also keep parameter
// changes applied while the loop runs.
type ParamsRecorder interface {
	RecordParams(ctx context.Context, at time.Time, params neuron.Params) error
}

// Config holds loop tuning.
type Config struct {
	// FPS is the number of frames per second Run produces. Default: 60.
	FPS int

	// QueueSize bounds pending input events. Default: 64.
	QueueSize int

	// SubscriberBuffer is the per-subscriber frame buffer. Default: 8.
	SubscriberBuffer int

	// Clock supplies the per-frame timestamp. Default: time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		FPS:              constants.DefaultFPS,
		QueueSize:        constants.DefaultEventQueueSize,
		SubscriberBuffer: constants.DefaultSubscriberBuffer,
		Clock:            time.Now,
	}
}

// Frame is what one loop iteration produced.
type Frame struct {
	Seq      uint64                  `json:"seq"`
	Time     time.Time               `json:"time"`
	Snapshot neuron.Snapshot         `json:"snapshot"`
	Tick     neuron.TickResult       `json:"tick"`
	Stimuli  []neuron.StimulusResult `json:"stimuli,omitempty"`

	// Misses counts clicks in this frame that landed on no input neuron.
	Misses int `json:"misses,omitempty"`
}

// Loop drives a neuron.Model from queued events and a frame clock.
type Loop struct {
	cfg      Config
	model    *neuron.Model
	layout   layout.Layout
	queue    chan Event
	logger   *slog.Logger
	trace    *logging.EventLogger
	recorder Recorder

	mu      sync.Mutex
	latest  Frame
	subs    map[int]chan Frame
	nextSub int
	seq     uint64
}

// Option customizes a Loop.
type Option func(*Loop)

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithEventLogger sets the JSONL event trace. A nil trace is allowed.
func WithEventLogger(trace *logging.EventLogger) Option {
	return func(l *Loop) { l.trace = trace }
}

// WithRecorder sets the session recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// New creates a loop owning model. Zero values in cfg fall back to defaults.
func New(model *neuron.Model, lay layout.Layout, cfg Config, opts ...Option) *Loop {
	def := DefaultConfig()
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}

	l := &Loop{
		cfg:    cfg,
		model:  model,
		layout: lay,
		queue:  make(chan Event, cfg.QueueSize),
		logger: logging.Discard(),
		subs:   make(map[int]chan Frame),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.latest = Frame{Snapshot: model.Snapshot()}
	return l
}

// Layout returns the canvas geometry used for hit-testing.
func (l *Loop) Layout() layout.Layout {
	return l.layout
}

// Submit queues an event for the next frame. It never blocks.
func (l *Loop) Submit(ev Event) error {
	select {
	case l.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Latest returns the most recently published frame.
func (l *Loop) Latest() Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

// Subscribe returns a channel receiving every published frame and a
// function that cancels the subscription and closes the channel. Frames are
// dropped for a subscriber whose buffer is full.
func (l *Loop) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, l.cfg.SubscriberBuffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Step runs one frame at time now: drain the queue, tick, publish.
// It must only be called from the goroutine that owns the loop.
func (l *Loop) Step(ctx context.Context, now time.Time) Frame {
	var frame Frame

drain:
	for {
		select {
		case ev := <-l.queue:
			l.apply(ctx, ev, now, &frame)
		default:
			break drain
		}
	}

	frame.Tick = l.model.Tick(now)
	l.trace.Tick(now, frame.Tick)
	if frame.Tick.Fired {
		l.logger.Info("output neuron fired", "level", frame.Tick.Level)
	}
	if frame.Tick.Reset {
		l.logger.Debug("output neuron reset")
	}
	if l.recorder != nil && (frame.Tick.Fired || frame.Tick.Reset || len(frame.Tick.Deactivated) > 0) {
		if err := l.recorder.RecordTick(ctx, now, frame.Tick); err != nil {
			l.logger.Warn("record tick failed", "error", err)
		}
	}

	frame.Time = now
	frame.Snapshot = l.model.Snapshot()
	l.publish(&frame)
	l.logger.Log(ctx, logging.LevelTrace, "frame", "seq", frame.Seq, "level", frame.Snapshot.Level)
	return frame
}

func (l *Loop) apply(ctx context.Context, ev Event, now time.Time, frame *Frame) {
	switch ev.Kind {
	case KindClick:
		id, ok := l.layout.HitTest(ev.Point)
		if !ok {
			frame.Misses++
			l.logger.Debug("click missed", "x", ev.Point.X, "y", ev.Point.Y)
			return
		}
		l.stimulate(ctx, id, now, frame)

	case KindStimulate:
		if !ev.Node.IsInput() {
			l.logger.Warn("ignoring stimulation of non-input neuron", "node", ev.Node)
			return
		}
		l.stimulate(ctx, ev.Node, now, frame)

	case KindParams:
		l.model.SetParams(ev.Params)
		l.logger.Info("model parameters updated",
			"threshold", ev.Params.ActivationThreshold,
			"decay_mode", ev.Params.DecayMode)
		if pr, ok := l.recorder.(ParamsRecorder); ok {
			if err := pr.RecordParams(ctx, now, ev.Params); err != nil {
				l.logger.Warn("record params failed", "error", err)
			}
		}

	case KindReset:
		l.model.Reset()
		l.logger.Info("model reset")

	default:
		l.logger.Warn("unknown event kind", "kind", ev.Kind)
	}
}

func (l *Loop) stimulate(ctx context.Context, id neuron.NodeID, now time.Time, frame *Frame) {
	res := l.model.Stimulate(id, now)
	frame.Stimuli = append(frame.Stimuli, res)
	l.trace.Stimulus(now, res)
	l.logger.Debug("stimulate", "node", id, "applied", res.Applied, "level", res.Level)

	if l.recorder != nil {
		if err := l.recorder.RecordStimulus(ctx, now, res); err != nil {
			l.logger.Warn("record stimulus failed", "error", err)
		}
	}
}

func (l *Loop) publish(frame *Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	frame.Seq = l.seq
	l.latest = *frame

	for _, ch := range l.subs {
		select {
		case ch <- *frame:
		default:
		}
	}
}

// Run steps the loop at the configured frame rate until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("render loop started", "fps", l.cfg.FPS)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("render loop stopped", "frames", l.Latest().Seq)
			return nil
		case <-ticker.C:
			l.Step(ctx, l.cfg.Clock())
		}
	}
}
