package neuron

import (
	"fmt"
	"time"

	"github.com/nvandessel/neurodemo/internal/constants"
)

// Params holds the tunable constants of the activation model.
type Params struct {
	// ActivationThreshold is the output charge above which the output neuron fires.
	ActivationThreshold float64 `json:"activation_threshold" yaml:"activation_threshold"`

	// StimulationIncrement is the charge added by each accepted input stimulation.
	StimulationIncrement float64 `json:"stimulation_increment" yaml:"stimulation_increment"`

	// DecayMode selects flat per-tick decay ("frame") or elapsed-time decay ("time").
	DecayMode constants.DecayMode `json:"decay_mode" yaml:"decay_mode"`

	// DecayRate is the charge subtracted per tick in frame mode.
	DecayRate float64 `json:"decay_rate" yaml:"decay_rate"`

	// DecayPerSecond is the charge subtracted per elapsed second in time mode.
	DecayPerSecond float64 `json:"decay_per_second" yaml:"decay_per_second"`

	// RefractoryPeriod is how long an input neuron ignores stimulation after activating.
	RefractoryPeriod time.Duration `json:"refractory_period" yaml:"refractory_period"`

	// ActiveDuration is how long a neuron stays active after activating.
	ActiveDuration time.Duration `json:"active_duration" yaml:"active_duration"`
}

// DefaultParams returns the parameters of the original demo.
func DefaultParams() Params {
	return Params{
		ActivationThreshold:  constants.DefaultActivationThreshold,
		StimulationIncrement: constants.DefaultStimulationIncrement,
		DecayMode:            constants.DecayPerFrame,
		DecayRate:            constants.DefaultDecayRate,
		DecayPerSecond:       constants.DefaultDecayPerSecond,
		RefractoryPeriod:     constants.DefaultRefractoryPeriod,
		ActiveDuration:       constants.DefaultActiveDuration,
	}
}

// Validate checks that the parameters describe a usable model.
func (p Params) Validate() error {
	if p.ActivationThreshold <= 0 {
		return fmt.Errorf("activation_threshold must be positive, got %v", p.ActivationThreshold)
	}
	if p.StimulationIncrement <= 0 {
		return fmt.Errorf("stimulation_increment must be positive, got %v", p.StimulationIncrement)
	}
	if !p.DecayMode.Valid() {
		return fmt.Errorf("invalid decay_mode: %q (valid: frame, time)", p.DecayMode)
	}
	if p.DecayRate < 0 {
		return fmt.Errorf("decay_rate must be non-negative, got %v", p.DecayRate)
	}
	if p.DecayPerSecond < 0 {
		return fmt.Errorf("decay_per_second must be non-negative, got %v", p.DecayPerSecond)
	}
	if p.RefractoryPeriod < 0 {
		return fmt.Errorf("refractory_period must be non-negative, got %v", p.RefractoryPeriod)
	}
	if p.ActiveDuration <= 0 {
		return fmt.Errorf("active_duration must be positive, got %v", p.ActiveDuration)
	}
	return nil
}
