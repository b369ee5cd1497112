package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nvandessel/neurodemo/internal/config"
	"github.com/nvandessel/neurodemo/internal/logging"
	"github.com/nvandessel/neurodemo/internal/loop"
	"github.com/nvandessel/neurodemo/internal/neuron"
	"github.com/nvandessel/neurodemo/internal/store"
)

// demo is a render loop plus the resources it writes to.
type demo struct {
	loop    *loop.Loop
	logger  *slog.Logger
	trace   *logging.EventLogger
	store   *store.SessionStore
	session string
}

// newDemo builds the loop described by cfg. When record is set, a session
// is started in the recording database and every model event is stored.
func newDemo(ctx context.Context, cfg *config.NeuroConfig, logger *slog.Logger, record bool) (*demo, error) {
	d := &demo{
		logger: logger,
		trace:  logging.NewEventLogger(cfg.LogDir(), cfg.Logging.Level),
	}

	opts := []loop.Option{loop.WithLogger(logger), loop.WithEventLogger(d.trace)}
	if record {
		st, err := store.Open(cfg.RecordingDir())
		if err != nil {
			d.trace.Close()
			return nil, fmt.Errorf("open session store: %w", err)
		}
		id, err := st.StartSession(ctx, time.Now(), cfg.Model)
		if err != nil {
			st.Close()
			d.trace.Close()
			return nil, fmt.Errorf("start session: %w", err)
		}
		d.store = st
		d.session = id
		opts = append(opts, loop.WithRecorder(st))
		logger.Info("recording session", "id", id, "db", st.Path())
	}

	d.loop = loop.New(neuron.New(cfg.Model), cfg.Display.Layout, loop.Config{FPS: cfg.Display.FPS}, opts...)
	return d, nil
}

// watchConfig forwards valid edits of the config file at path to the loop
// as parameter updates. It returns immediately when path is empty.
func (d *demo) watchConfig(ctx context.Context, path string) {
	if path == "" {
		return
	}
	go func() {
		err := config.Watch(ctx, path, d.logger, func(cfg *config.NeuroConfig) {
			if err := d.loop.Submit(loop.SetParams(cfg.Model)); err != nil {
				d.logger.Warn("dropping config reload", "error", err)
			}
		})
		if err != nil {
			d.logger.Warn("config hot reload disabled", "error", err)
		}
	}()
}

// Close ends the recorded session, if any, and releases files.
func (d *demo) Close() error {
	defer d.trace.Close()
	if d.store == nil {
		return nil
	}
	if err := d.store.EndSession(context.Background(), time.Now()); err != nil {
		d.store.Close()
		return fmt.Errorf("end session: %w", err)
	}
	return d.store.Close()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
