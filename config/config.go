// Package config loads the machine configuration from YAML and fills
// in defaults for anything the file leaves out.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// AxisConfig describes one machine axis.
type AxisConfig struct {
	// Min and Max bound machine-space travel, mm.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`

	// StepsPerMM converts positions to step targets for the serial
	// backend.
	StepsPerMM float64 `yaml:"steps_per_mm"`
}

// PlannerConfig tunes the optional junction-deviation lookahead pass.
type PlannerConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MaxVelocity       float64 `yaml:"max_velocity"`       // mm/s
	MaxAccel          float64 `yaml:"max_accel"`          // mm/s^2
	JunctionDeviation float64 `yaml:"junction_deviation"` // mm
	BufferTime        float64 `yaml:"buffer_time"`        // s
	KeepTailMoves     int     `yaml:"keep_tail_moves"`
	MaxWindowMoves    int     `yaml:"max_window_moves"`
}

// SerialConfig selects the MCU link for the serial backend.
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	// MoveCommandID is the MCU dictionary id of the queued-move
	// command.
	MoveCommandID uint16 `yaml:"move_command_id"`
}

// Config is the complete machine configuration.
type Config struct {
	Axes map[string]AxisConfig `yaml:"axes"`

	// RapidFeedrate is carried on rapid primitives, mm/s.
	RapidFeedrate float64 `yaml:"rapid_feedrate"`

	// ArcTolerance is the maximum chord-to-arc deviation, mm.
	ArcTolerance float64 `yaml:"arc_tolerance"`

	// MaxSegmentTime bounds any emitted segment's duration, s.
	MaxSegmentTime float64 `yaml:"max_segment_time"`

	LookaheadPrimitives  int     `yaml:"lookahead_primitives"`
	HighWatermark        float64 `yaml:"high_watermark"`     // s
	ProgressIncrement    float64 `yaml:"progress_increment"` // mm
	CheckRapidSoftLimits *bool   `yaml:"check_rapid_soft_limits"`

	// Strict turns unsupported words into errors.
	Strict bool `yaml:"strict"`

	Planner PlannerConfig `yaml:"planner"`
	Serial  SerialConfig  `yaml:"serial"`
}

// Load parses YAML configuration data and applies defaults.
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses a configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return Load(data)
}

// Default returns the configuration for a small three-axis machine.
func Default() *Config {
	cfg := &Config{
		Axes: map[string]AxisConfig{
			"x": {Min: 0, Max: 300, StepsPerMM: 80},
			"y": {Min: 0, Max: 300, StepsPerMM: 80},
			"z": {Min: -100, Max: 0, StepsPerMM: 400},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.RapidFeedrate == 0 {
		cfg.RapidFeedrate = 100.0
	}
	if cfg.ArcTolerance == 0 {
		cfg.ArcTolerance = 0.01
	}
	if cfg.MaxSegmentTime == 0 {
		cfg.MaxSegmentTime = 0.05
	}
	if cfg.LookaheadPrimitives == 0 {
		cfg.LookaheadPrimitives = 64
	}
	if cfg.HighWatermark == 0 {
		cfg.HighWatermark = 0.5
	}
	if cfg.ProgressIncrement == 0 {
		cfg.ProgressIncrement = 1.0
	}
	if cfg.CheckRapidSoftLimits == nil {
		yes := true
		cfg.CheckRapidSoftLimits = &yes
	}

	if cfg.Planner.MaxVelocity == 0 {
		cfg.Planner.MaxVelocity = 150.0
	}
	if cfg.Planner.MaxAccel == 0 {
		cfg.Planner.MaxAccel = 1000.0
	}
	if cfg.Planner.JunctionDeviation == 0 {
		cfg.Planner.JunctionDeviation = 0.05
	}
	if cfg.Planner.BufferTime == 0 {
		cfg.Planner.BufferTime = 0.25
	}
	if cfg.Planner.KeepTailMoves == 0 {
		cfg.Planner.KeepTailMoves = 2
	}
	if cfg.Planner.MaxWindowMoves == 0 {
		cfg.Planner.MaxWindowMoves = 200
	}

	if cfg.Serial.Device == "" {
		cfg.Serial.Device = "/dev/ttyACM0"
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 250000
	}

	for name, axis := range cfg.Axes {
		if axis.StepsPerMM == 0 {
			axis.StepsPerMM = 80.0
		}
		cfg.Axes[name] = axis
	}
}

func validate(cfg *Config) error {
	if cfg.ArcTolerance <= 0 {
		return errors.New("config: arc_tolerance must be positive")
	}
	if cfg.MaxSegmentTime <= 0 {
		return errors.New("config: max_segment_time must be positive")
	}
	if cfg.RapidFeedrate <= 0 {
		return errors.New("config: rapid_feedrate must be positive")
	}
	for name, axis := range cfg.Axes {
		if axis.Min > axis.Max {
			return errors.Errorf("config: axis %s: min %g above max %g", name, axis.Min, axis.Max)
		}
	}
	return nil
}
