package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/loop"
	"github.com/nvandessel/neurodemo/internal/neuron"
	"github.com/nvandessel/neurodemo/internal/ratelimit"
)

// errFrameTimeout is returned when the loop publishes no frame in time,
// usually because it is not running.
var errFrameTimeout = errors.New("render loop did not publish a frame in time")

// registerTools registers all neuron MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolStimulate,
		Description: "Stimulate an input neuron (input1 or input2). Adds charge to the output neuron unless the input is in its refractory period.",
	}, s.handleStimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolClick,
		Description: "Click the demo canvas at pixel coordinates. A click inside an input neuron stimulates it.",
	}, s.handleClick)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSnapshot,
		Description: "Read the current neuron states and output charge",
	}, s.handleSnapshot)
}

// handleStimulate implements the neuron_stimulate tool.
func (s *Server) handleStimulate(ctx context.Context, req *sdk.CallToolRequest, args StimulateInput) (_ *sdk.CallToolResult, _ StimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolStimulate, start, retErr, map[string]any{"node": args.Node})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolStimulate); err != nil {
		return nil, StimulateOutput{}, err
	}

	id, err := neuron.ParseNodeID(args.Node)
	if err != nil {
		return nil, StimulateOutput{}, err
	}
	if !id.IsInput() {
		return nil, StimulateOutput{}, fmt.Errorf("%s is not an input neuron", id)
	}

	f, err := s.submitAndWait(ctx, loop.Stimulate(id), func(f loop.Frame) bool {
		_, ok := lastStimulus(f, id)
		return ok
	})
	if err != nil {
		return nil, StimulateOutput{}, err
	}

	out := StimulateOutput{Node: string(id), State: summarize(f)}
	if res, ok := lastStimulus(f, id); ok {
		out.Applied = res.Applied
	}
	return nil, out, nil
}

// handleClick implements the neuron_click tool.
func (s *Server) handleClick(ctx context.Context, req *sdk.CallToolRequest, args ClickInput) (_ *sdk.CallToolResult, _ ClickOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolClick, start, retErr, map[string]any{"x": args.X, "y": args.Y})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolClick); err != nil {
		return nil, ClickOutput{}, err
	}

	p := layout.Point{X: args.X, Y: args.Y}
	lay := s.loop.Layout()
	if !lay.Contains(p) {
		return nil, ClickOutput{}, fmt.Errorf("click (%d, %d) is outside the %dx%d canvas", p.X, p.Y, lay.Width, lay.Height)
	}
	id, hit := lay.HitTest(p)
	f, err := s.submitAndWait(ctx, loop.Click(p), func(f loop.Frame) bool {
		if !hit {
			return f.Misses > 0
		}
		_, ok := lastStimulus(f, id)
		return ok
	})
	if err != nil {
		return nil, ClickOutput{}, err
	}

	out := ClickOutput{State: summarize(f)}
	if hit {
		out.Hit = true
		out.Node = string(id)
		if res, ok := lastStimulus(f, id); ok {
			out.Applied = res.Applied
		}
	}
	return nil, out, nil
}

// handleSnapshot implements the neuron_snapshot tool.
func (s *Server) handleSnapshot(ctx context.Context, req *sdk.CallToolRequest, args SnapshotInput) (_ *sdk.CallToolResult, _ SnapshotOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolSnapshot, start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolSnapshot); err != nil {
		return nil, SnapshotOutput{}, err
	}

	return nil, SnapshotOutput{State: summarize(s.loop.Latest())}, nil
}

// submitAndWait queues ev and returns the frame that applied it: the first
// frame published after submission for which match holds. The frame in
// progress when Submit returns may have drained the queue already, so the
// one after it is the latest that can have applied ev and is returned even
// without a match.
func (s *Server) submitAndWait(ctx context.Context, ev loop.Event, match func(loop.Frame) bool) (loop.Frame, error) {
	frames, cancel := s.loop.Subscribe()
	defer cancel()

	before := s.loop.Latest().Seq
	if err := s.loop.Submit(ev); err != nil {
		return loop.Frame{}, err
	}
	last := s.loop.Latest().Seq + 2

	return s.awaitFrame(ctx, frames, before, last, match)
}

// awaitFrame returns the first frame newer than before that satisfies match,
// or frame last if none does sooner.
func (s *Server) awaitFrame(ctx context.Context, frames <-chan loop.Frame, before, last uint64, match func(loop.Frame) bool) (loop.Frame, error) {
	timeout := time.NewTimer(s.frameTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return loop.Frame{}, ctx.Err()
		case <-timeout.C:
			return loop.Frame{}, errFrameTimeout
		case f, ok := <-frames:
			if !ok {
				return loop.Frame{}, errFrameTimeout
			}
			if f.Seq > before && (match(f) || f.Seq >= last) {
				return f, nil
			}
		}
	}
}

func lastStimulus(f loop.Frame, id neuron.NodeID) (neuron.StimulusResult, bool) {
	for i := len(f.Stimuli) - 1; i >= 0; i-- {
		if f.Stimuli[i].Node == id {
			return f.Stimuli[i], true
		}
	}
	return neuron.StimulusResult{}, false
}

func summarize(f loop.Frame) Summary {
	return Summary{
		Frame:   f.Seq,
		Input1:  f.Snapshot.Input1.Active,
		Input2:  f.Snapshot.Input2.Active,
		Output:  f.Snapshot.Output.Active,
		Fired:   f.Tick.Fired,
		Level:   f.Snapshot.Level,
		Percent: f.Snapshot.Percent,
	}
}
