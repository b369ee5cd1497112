// Package neuron implements the activation model behind the demo: two input
// neurons that feed charge into one output neuron. The output fires once its
// charge crosses a threshold, stays active for a short display window, then
// resets. Input neurons are gated by a refractory period.
//
// The model is not safe for concurrent use. It is owned by a single
// render/update loop that both mutates and reads it.
package neuron

import (
	"fmt"
	"time"

	"github.com/nvandessel/neurodemo/internal/constants"
)

// NodeID identifies one of the three neurons.
type NodeID string

const (
	Input1 NodeID = "input1"
	Input2 NodeID = "input2"
	Output NodeID = "output"
)

// Nodes lists every neuron in display order.
var Nodes = []NodeID{Input1, Input2, Output}

// Inputs lists the neurons that accept stimulation, in hit-test order.
var Inputs = []NodeID{Input1, Input2}

// IsInput reports whether id names a stimulable input neuron.
func (id NodeID) IsInput() bool {
	return id == Input1 || id == Input2
}

// ParseNodeID converts a user-supplied name into a NodeID.
func ParseNodeID(s string) (NodeID, error) {
	switch id := NodeID(s); id {
	case Input1, Input2, Output:
		return id, nil
	}
	return "", fmt.Errorf("unknown neuron %q (valid: input1, input2, output)", s)
}

type node struct {
	active          bool
	lastActivatedAt time.Time
}

// Model holds the activation state of the three neurons and the output's
// accumulated charge.
type Model struct {
	params Params

	input1 node
	input2 node
	output node

	level    float64
	lastTick time.Time
}

// New creates a model with all neurons inactive and zero charge.
func New(params Params) *Model {
	return &Model{params: params}
}

// Params returns the model's current parameters.
func (m *Model) Params() Params {
	return m.params
}

// SetParams swaps the parameters without discarding state. The charge is
// clamped into the new threshold range.
func (m *Model) SetParams(params Params) {
	m.params = params
	if m.level > params.ActivationThreshold {
		m.level = params.ActivationThreshold
	}
}

// Reset returns the model to its initial state, keeping the parameters.
func (m *Model) Reset() {
	*m = Model{params: m.params}
}

// Level returns the output neuron's current charge.
func (m *Model) Level() float64 {
	return m.level
}

func (m *Model) node(id NodeID) *node {
	switch id {
	case Input1:
		return &m.input1
	case Input2:
		return &m.input2
	case Output:
		return &m.output
	}
	panic(fmt.Sprintf("neuron: unknown node %q", id))
}

// StimulusResult describes the outcome of a Stimulate call.
type StimulusResult struct {
	Node    NodeID  `json:"node"`
	Applied bool    `json:"applied"`
	Level   float64 `json:"level"`
}

// Stimulate delivers an external trigger to an input neuron at time now.
// Outside the neuron's refractory period the output gains one stimulation
// increment and the input becomes active. Inside it, nothing changes.
// Stimulating anything other than an input neuron panics.
func (m *Model) Stimulate(id NodeID, now time.Time) StimulusResult {
	if !id.IsInput() {
		panic(fmt.Sprintf("neuron: %q is not an input neuron", id))
	}

	n := m.node(id)
	if now.Sub(n.lastActivatedAt) <= m.params.RefractoryPeriod {
		return StimulusResult{Node: id, Applied: false, Level: m.level}
	}

	m.level += m.params.StimulationIncrement
	n.active = true
	n.lastActivatedAt = now

	return StimulusResult{Node: id, Applied: true, Level: m.level}
}

// TickResult describes what a single Tick changed.
type TickResult struct {
	// Fired is true when the output crossed the threshold on this tick.
	Fired bool `json:"fired,omitempty"`

	// Reset is true when the output's display window ended and its charge was zeroed.
	Reset bool `json:"reset,omitempty"`

	// Deactivated lists neurons whose display window ended on this tick.
	Deactivated []NodeID `json:"deactivated,omitempty"`

	// Level is the output charge after the tick.
	Level float64 `json:"level"`
}

// Tick advances the model by one time step at time now.
func (m *Model) Tick(now time.Time) TickResult {
	var res TickResult
	threshold := m.params.ActivationThreshold

	switch {
	case m.level > threshold || (m.level == threshold && !m.output.active):
		m.output.active = true
		m.output.lastActivatedAt = now
		m.level = threshold
		res.Fired = true
	case m.level > 0 && m.level < threshold:
		m.level -= m.decay(now)
		if m.level < 0 {
			m.level = 0
		}
	case m.level < 0:
		m.level = 0
	}

	for _, id := range Nodes {
		n := m.node(id)
		if !n.active || now.Sub(n.lastActivatedAt) <= m.params.ActiveDuration {
			continue
		}
		n.active = false
		res.Deactivated = append(res.Deactivated, id)
		if id == Output {
			m.level = 0
			res.Reset = true
		}
	}

	m.lastTick = now
	res.Level = m.level
	return res
}

// decay returns the charge lost on a tick at time now.
func (m *Model) decay(now time.Time) float64 {
	if m.params.DecayMode != constants.DecayPerSecond {
		return m.params.DecayRate
	}
	if m.lastTick.IsZero() || !now.After(m.lastTick) {
		return 0
	}
	return m.params.DecayPerSecond * now.Sub(m.lastTick).Seconds()
}

// NodeState is the render-relevant state of one neuron.
type NodeState struct {
	ID     NodeID `json:"id"`
	Active bool   `json:"active"`
}

// Snapshot is a read-only view of the model for the presentation layer.
type Snapshot struct {
	Input1 NodeState `json:"input1"`
	Input2 NodeState `json:"input2"`
	Output NodeState `json:"output"`

	// Level is the output charge.
	Level float64 `json:"level"`

	// Percent is Level as a percentage of the activation threshold.
	Percent float64 `json:"percent"`
}

// Node returns the state of the neuron named by id.
func (s Snapshot) Node(id NodeID) NodeState {
	switch id {
	case Input1:
		return s.Input1
	case Input2:
		return s.Input2
	case Output:
		return s.Output
	}
	panic(fmt.Sprintf("neuron: unknown node %q", id))
}

// Snapshot returns the current state of all neurons. It has no side effects.
func (m *Model) Snapshot() Snapshot {
	s := Snapshot{
		Input1: NodeState{ID: Input1, Active: m.input1.active},
		Input2: NodeState{ID: Input2, Active: m.input2.active},
		Output: NodeState{ID: Output, Active: m.output.active},
		Level:  m.level,
	}
	if m.params.ActivationThreshold > 0 {
		s.Percent = m.level / m.params.ActivationThreshold * 100
	}
	return s
}
