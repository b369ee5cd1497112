package constants

// DecayMode selects how the output neuron's charge decays between ticks.
type DecayMode string

const (
	// DecayPerFrame subtracts a flat amount every tick, so the perceived decay
	// speed depends on the frame rate. This is the original demo's behavior.
	DecayPerFrame DecayMode = "frame"

	// DecayPerSecond scales the subtracted amount by the wall-clock time elapsed
	// since the previous tick.
	DecayPerSecond DecayMode = "time"
)

// Valid returns true if the mode is a recognized value.
func (m DecayMode) Valid() bool {
	switch m {
	case DecayPerFrame, DecayPerSecond:
		return true
	}
	return false
}

// String returns the string representation of the mode.
func (m DecayMode) String() string {
	return string(m)
}
