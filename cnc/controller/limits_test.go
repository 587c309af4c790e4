package controller

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/klipper4cnc-coder/klipper4cnc/cnc"
)

func TestSoftLimitsCheck(t *testing.T) {
	limits := NewSoftLimits(map[byte]Range{
		'X': {Min: 0, Max: 300},
		'Y': {Min: 0, Max: 300},
		'Z': {Min: -100, Max: 0},
	})

	tests := []struct {
		name  string
		start cnc.Position
		end   cnc.Position
		axis  byte
		value float64
	}{
		{
			name:  "inside",
			start: cnc.Position{X: 10, Y: 10, Z: -5},
			end:   cnc.Position{X: 290, Y: 290, Z: 0},
		},
		{
			name:  "on the boundary",
			start: cnc.Position{},
			end:   cnc.Position{X: 300, Y: 300, Z: 0},
		},
		{
			name:  "end beyond X max",
			start: cnc.Position{},
			end:   cnc.Position{X: 300.001},
			axis:  'X',
			value: 300.001,
		},
		{
			name:  "start below Y min",
			start: cnc.Position{Y: -1},
			end:   cnc.Position{},
			axis:  'Y',
			value: -1,
		},
		{
			name:  "Z above max",
			start: cnc.Position{},
			end:   cnc.Position{Z: 1},
			axis:  'Z',
			value: 1,
		},
	}

	for _, test := range tests {
		p := cnc.NewPrimitive(cnc.Linear, test.start, test.end, 10, 42)
		err := limits.Check(p)

		if test.axis == 0 {
			require.NoError(t, err, test.name)
			continue
		}

		var verr *SoftLimitViolation
		require.ErrorAs(t, err, &verr, test.name)
		require.Equal(t, test.axis, verr.Axis, test.name)
		require.Equal(t, test.value, verr.Value, test.name)
		require.Equal(t, 42, verr.Line, test.name)
	}
}

func TestSoftLimitsUnconfiguredAxis(t *testing.T) {
	limits := NewSoftLimits(map[byte]Range{'X': {Min: 0, Max: 10}})

	p := cnc.NewPrimitive(cnc.Linear, cnc.Position{}, cnc.Position{Y: 9999, Z: -9999}, 10, 1)
	require.NoError(t, limits.Check(p))
}

func TestSoftLimitsNil(t *testing.T) {
	var limits *SoftLimits
	p := cnc.NewPrimitive(cnc.Linear, cnc.Position{}, cnc.Position{X: 1e9}, 10, 1)
	require.NoError(t, limits.Check(p))
}
