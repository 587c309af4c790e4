package gcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const prescanProgram = `
G21 G90
G1 X10 Y0 F600
G3 X0 Y10 I-10 J0
G91
G1 X5 Y5
G0 Z-2
`

func prescanOnce(t *testing.T) float64 {
	t.Helper()
	total, err := Prescan(NewStreamer(strings.NewReader(prescanProgram)), PrescanConfig{
		ArcTolerance:     testArcTolerance,
		MaxSegmentTime:   testMaxSegmentTime,
		RapidFeedrateMMS: testRapidFeed,
	})
	require.NoError(t, err)
	return total
}

func TestPrescanDeterministic(t *testing.T) {
	first := prescanOnce(t)
	second := prescanOnce(t)

	require.Greater(t, first, 0.0)
	// Identical input and configuration must reproduce the total
	// bit for bit.
	require.Equal(t, first, second)
}

func TestPrescanMatchesDirectInterpretation(t *testing.T) {
	state := NewModalState(testArcTolerance, testMaxSegmentTime)
	in := NewInterpreter(state, Options{RapidFeedrateMMS: testRapidFeed})

	s := NewStreamer(strings.NewReader(prescanProgram))
	total := 0.0
	for {
		line, ok := s.Next()
		if !ok {
			break
		}
		pl, err := ParseLine(line.Text, line.Number)
		require.NoError(t, err)
		prims, err := in.Interpret(pl)
		require.NoError(t, err)
		for _, p := range prims {
			total += p.LengthMM
		}
	}

	require.Equal(t, total, prescanOnce(t))
}

func TestPrescanSurfacesErrors(t *testing.T) {
	_, err := Prescan(NewStreamer(strings.NewReader("G1 X10\n")), PrescanConfig{
		ArcTolerance:     testArcTolerance,
		MaxSegmentTime:   testMaxSegmentTime,
		RapidFeedrateMMS: testRapidFeed,
	})

	var ferr *UnresolvedFeedrateError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, 1, ferr.Line)
}
