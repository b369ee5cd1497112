// Package config provides unified configuration loading for neurodemo.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/neurodemo/internal/constants"
	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/neuron"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user directory holding the config file, the session
// database, and the event trace.
const DirName = ".neurodemo"

// FileName is the default config file name inside DirName.
const FileName = "config.yaml"

// NeuroConfig contains all neurodemo configuration settings.
type NeuroConfig struct {
	// Model contains the activation model constants.
	Model neuron.Params `json:"model" yaml:"model"`

	// Display contains render loop and canvas settings.
	Display DisplayConfig `json:"display" yaml:"display"`

	// Server contains settings for the local visualization server.
	Server ServerConfig `json:"server" yaml:"server"`

	// Recording contains settings for the session recorder.
	Recording RecordingConfig `json:"recording" yaml:"recording"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// DisplayConfig configures the render loop and canvas.
type DisplayConfig struct {
	// FPS is the render loop frame rate. Range: 1 to 240.
	FPS int `json:"fps" yaml:"fps"`

	// Background is an optional path to a decorative background image.
	// When set, it must be readable at startup. Empty means a blank canvas.
	Background string `json:"background,omitempty" yaml:"background,omitempty"`

	// Layout is the canvas geometry.
	Layout layout.Layout `json:"layout" yaml:"layout"`
}

// ServerConfig configures the visualization server.
type ServerConfig struct {
	// Addr is the listen address. "localhost:0" picks a free port.
	Addr string `json:"addr" yaml:"addr"`

	// OpenBrowser opens the UI in the default browser once the server is up.
	OpenBrowser bool `json:"open_browser" yaml:"open_browser"`
}

// RecordingConfig configures the SQLite session recorder.
type RecordingConfig struct {
	// Enabled turns on session recording.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is where sessions.db lives. Defaults to ~/.neurodemo.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// LoggingConfig configures neurodemo's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the JSONL event trace.
	// "trace" additionally logs every frame.
	Level string `json:"level" yaml:"level"`

	// Dir is where events.jsonl is written. Defaults to ~/.neurodemo.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Default returns a NeuroConfig with the original demo's settings.
func Default() *NeuroConfig {
	return &NeuroConfig{
		Model: neuron.DefaultParams(),
		Display: DisplayConfig{
			FPS:    constants.DefaultFPS,
			Layout: layout.Default(),
		},
		Server: ServerConfig{
			Addr:        constants.DefaultServerAddr,
			OpenBrowser: true,
		},
		Recording: RecordingConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDir returns ~/.neurodemo, or .neurodemo when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), FileName)
}

// Load loads configuration from path, or from the default location when
// path is empty, then applies environment variable overrides.
// Order: defaults -> config file -> environment variables.
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (*NeuroConfig, error) {
	config := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath()); err == nil {
			path = DefaultPath()
		}
	}

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys missing
// from the file keep their default values.
func LoadFromFile(path string) (*NeuroConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Display.Background = os.ExpandEnv(config.Display.Background)
	config.Recording.Dir = os.ExpandEnv(config.Recording.Dir)
	config.Logging.Dir = os.ExpandEnv(config.Logging.Dir)

	return config, nil
}

// Marshal renders the configuration as YAML.
func (c *NeuroConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks that the configuration is valid.
func (c *NeuroConfig) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}

	if c.Display.FPS < 1 || c.Display.FPS > constants.MaxFPS {
		return fmt.Errorf("fps must be between 1 and %d, got %d", constants.MaxFPS, c.Display.FPS)
	}

	l := c.Display.Layout
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("layout size must be positive, got %dx%d", l.Width, l.Height)
	}
	if l.Radius <= 0 {
		return fmt.Errorf("layout radius must be positive, got %d", l.Radius)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// RecordingDir returns the directory for sessions.db.
func (c *NeuroConfig) RecordingDir() string {
	if c.Recording.Dir != "" {
		return c.Recording.Dir
	}
	return DefaultDir()
}

// LogDir returns the directory for events.jsonl.
func (c *NeuroConfig) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return DefaultDir()
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *NeuroConfig) {
	if v := os.Getenv("NEURODEMO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("NEURODEMO_FPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Display.FPS = n
		}
	}

	if v := os.Getenv("NEURODEMO_DECAY_MODE"); v != "" {
		config.Model.DecayMode = constants.DecayMode(v)
	}

	if v := os.Getenv("NEURODEMO_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("NEURODEMO_RECORD"); v != "" {
		config.Recording.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("NEURODEMO_BACKGROUND"); v != "" {
		config.Display.Background = v
	}
}
