package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load([]byte(`
axes:
  x: {min: 0, max: 200}
rapid_feedrate: 80
`))
	require.NoError(t, err)

	require.Equal(t, 80.0, cfg.RapidFeedrate)
	require.Equal(t, 0.01, cfg.ArcTolerance)
	require.Equal(t, 0.05, cfg.MaxSegmentTime)
	require.Equal(t, 64, cfg.LookaheadPrimitives)
	require.Equal(t, 0.5, cfg.HighWatermark)
	require.Equal(t, 1.0, cfg.ProgressIncrement)
	require.NotNil(t, cfg.CheckRapidSoftLimits)
	require.True(t, *cfg.CheckRapidSoftLimits)

	// Axis defaults fill in steps per mm.
	require.Equal(t, 80.0, cfg.Axes["x"].StepsPerMM)

	require.Equal(t, "/dev/ttyACM0", cfg.Serial.Device)
	require.Equal(t, 250000, cfg.Serial.Baud)
	require.Equal(t, 150.0, cfg.Planner.MaxVelocity)
	require.False(t, cfg.Planner.Enabled)
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load([]byte(`
arc_tolerance: 0.002
max_segment_time: 0.02
check_rapid_soft_limits: false
strict: true
planner:
  enabled: true
  junction_deviation: 0.1
serial:
  device: /dev/ttyUSB3
  move_command_id: 31
`))
	require.NoError(t, err)

	require.Equal(t, 0.002, cfg.ArcTolerance)
	require.Equal(t, 0.02, cfg.MaxSegmentTime)
	require.False(t, *cfg.CheckRapidSoftLimits)
	require.True(t, cfg.Strict)
	require.True(t, cfg.Planner.Enabled)
	require.Equal(t, 0.1, cfg.Planner.JunctionDeviation)
	require.Equal(t, "/dev/ttyUSB3", cfg.Serial.Device)
	require.Equal(t, uint16(31), cfg.Serial.MoveCommandID)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load([]byte("arc_tolerence: 0.01\n"))
	require.Error(t, err)
}

func TestLoadValidates(t *testing.T) {
	cases := []string{
		"arc_tolerance: -1\n",
		"max_segment_time: -0.5\n",
		"rapid_feedrate: -10\n",
		"axes:\n  x: {min: 10, max: 0}\n",
	}
	for _, input := range cases {
		_, err := Load([]byte(input))
		require.Error(t, err, "input %q", input)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Contains(t, cfg.Axes, "x")
	require.Contains(t, cfg.Axes, "y")
	require.Contains(t, cfg.Axes, "z")
	require.Greater(t, cfg.RapidFeedrate, 0.0)
}
