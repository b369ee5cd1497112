package simulation

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/nvandessel/neurodemo/internal/constants"
	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/neuron"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted run.
type Scenario struct {
	Name string `yaml:"name" json:"name"`

	// Params overrides the model constants. Keys left out keep defaults.
	Params neuron.Params `yaml:"params" json:"params"`

	// FPS is the frame grid between steps. Zero runs frames only at step times.
	FPS int `yaml:"fps" json:"fps"`

	// Duration is how long to run. Defaults to the last step time.
	Duration time.Duration `yaml:"duration" json:"duration"`

	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is input delivered at one instant, relative to the start of the run.
// A step with no input is a plain frame.
type Step struct {
	At        time.Duration   `yaml:"at" json:"at"`
	Stimulate []neuron.NodeID `yaml:"stimulate,omitempty" json:"stimulate,omitempty"`
	Click     *layout.Point   `yaml:"click,omitempty" json:"click,omitempty"`
}

// ParseScenario decodes a YAML scenario on top of the default model
// parameters and frame rate, then validates it.
func ParseScenario(data []byte) (*Scenario, error) {
	sc := &Scenario{
		Params: neuron.DefaultParams(),
		FPS:    constants.DefaultFPS,
	}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}

// Validate checks the scenario and sorts its steps by time.
func (s *Scenario) Validate() error {
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	if s.FPS < 0 || s.FPS > constants.MaxFPS {
		return fmt.Errorf("fps must be between 0 and %d, got %d", constants.MaxFPS, s.FPS)
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration must not be negative, got %s", s.Duration)
	}

	for i, step := range s.Steps {
		if step.At < 0 {
			return fmt.Errorf("step %d: negative time %s", i, step.At)
		}
		for _, id := range step.Stimulate {
			if !id.IsInput() {
				return fmt.Errorf("step %d: %q is not an input neuron", i, id)
			}
		}
	}

	sort.SliceStable(s.Steps, func(i, j int) bool { return s.Steps[i].At < s.Steps[j].At })
	return nil
}

// End returns how long the scenario runs.
func (s *Scenario) End() time.Duration {
	end := s.Duration
	if n := len(s.Steps); n > 0 && s.Steps[n-1].At > end {
		end = s.Steps[n-1].At
	}
	return end
}
