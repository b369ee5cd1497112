// Package constants provides named constants used throughout the neurodemo codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

import "time"

// Activation model defaults. These reproduce the feel of the original
// pygame demo: two clicks in quick succession fire the output neuron.
const (
	// DefaultActivationThreshold is the output charge above which the output neuron fires.
	DefaultActivationThreshold = 100.0

	// DefaultStimulationIncrement is the charge a single accepted input stimulation adds.
	DefaultStimulationIncrement = 60.0

	// DefaultDecayRate is the flat charge subtracted per tick in frame decay mode.
	DefaultDecayRate = 0.15

	// DefaultDecayPerSecond is the charge subtracted per elapsed second in time decay mode.
	// Equal to DefaultDecayRate at DefaultFPS so both modes look alike at the default frame rate.
	DefaultDecayPerSecond = DefaultDecayRate * DefaultFPS

	// DefaultRefractoryPeriod is how long an input neuron ignores stimulation after activating.
	DefaultRefractoryPeriod = 1500 * time.Millisecond

	// DefaultActiveDuration is how long a neuron stays visibly active after activating.
	DefaultActiveDuration = 400 * time.Millisecond
)

// Render loop constants.
const (
	// DefaultFPS is the frame rate of the render/update loop.
	DefaultFPS = 60

	// MaxFPS is the highest frame rate accepted by configuration.
	MaxFPS = 240

	// DefaultEventQueueSize is the capacity of the loop's pending input queue.
	// Events arriving while the queue is full are dropped.
	DefaultEventQueueSize = 64

	// DefaultSubscriberBuffer is the per-subscriber frame buffer. Subscribers that
	// fall behind by more than this many frames miss frames.
	DefaultSubscriberBuffer = 8
)

// Canvas geometry of the default layout, in pixels.
const (
	CanvasWidth  = 842
	CanvasHeight = 482

	// NeuronRadius is the radius of each drawn neuron and of its click target.
	NeuronRadius = 60

	// StimulationBarX and StimulationBarY are the top-left corner of the stimulation bar.
	StimulationBarX = 803
	StimulationBarY = 0

	// StimulationBarWidth and StimulationBarHeight size the bar at 100% charge.
	StimulationBarWidth  = 39
	StimulationBarHeight = 480
)

// Server and rate limiting constants.
const (
	// DefaultServerAddr lets the OS pick a free localhost port.
	DefaultServerAddr = "localhost:0"

	// ClickRatePerSecond and ClickBurst bound pointer events per client.
	ClickRatePerSecond = 20.0
	ClickBurst         = 40
)
