package loop

import (
	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/neuron"
)

// Kind identifies what an Event asks the loop to do.
type Kind string

const (
	KindClick     Kind = "click"
	KindStimulate Kind = "stimulate"
	KindParams    Kind = "params"
	KindReset     Kind = "reset"
)

// Event is an input waiting to be applied on the next frame.
type Event struct {
	Kind   Kind
	Point  layout.Point
	Node   neuron.NodeID
	Params neuron.Params
}

// Click is a pointer press at p, hit-tested against the input neurons.
func Click(p layout.Point) Event {
	return Event{Kind: KindClick, Point: p}
}

// Stimulate targets an input neuron directly, bypassing hit-testing.
func Stimulate(id neuron.NodeID) Event {
	return Event{Kind: KindStimulate, Node: id}
}

// SetParams replaces the model parameters between frames.
func SetParams(p neuron.Params) Event {
	return Event{Kind: KindParams, Params: p}
}

// Reset clears all activation state.
func Reset() Event {
	return Event{Kind: KindReset}
}
