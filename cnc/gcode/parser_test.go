package gcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLineWords(t *testing.T) {
	tests := []struct {
		input  string
		gwords []float64
		mwords []int
		params map[byte]float64
	}{
		{
			input:  "G0 X10 Y20",
			gwords: []float64{0},
			params: map[byte]float64{'X': 10, 'Y': 20},
		},
		{
			input:  "G1 X100.5 Y-200.25 F3000",
			gwords: []float64{1},
			params: map[byte]float64{'X': 100.5, 'Y': -200.25, 'F': 3000},
		},
		{
			input:  "g21 g90 g1 x5 f600",
			gwords: []float64{21, 90, 1},
			params: map[byte]float64{'X': 5, 'F': 600},
		},
		{
			input:  "G1X10Y-2.5",
			gwords: []float64{1},
			params: map[byte]float64{'X': 10, 'Y': -2.5},
		},
		{
			input:  "G3 X0 Y10 I-10 J0",
			gwords: []float64{3},
			params: map[byte]float64{'X': 0, 'Y': 10, 'I': -10, 'J': 0},
		},
		{
			input:  "M3 S12000",
			mwords: []int{3},
			params: map[byte]float64{'S': 12000},
		},
		{
			input:  "G1 X1 X2 X3",
			gwords: []float64{1},
			params: map[byte]float64{'X': 3}, // last value wins
		},
		{
			input:  "G1 (center drill) X5 F100 ; finish pass",
			gwords: []float64{1},
			params: map[byte]float64{'X': 5, 'F': 100},
		},
		{
			input:  "X+.5",
			params: map[byte]float64{'X': 0.5},
		},
	}

	for _, test := range tests {
		pl, err := ParseLine(test.input, 1)
		require.NoError(t, err, "input %q", test.input)
		require.NotNil(t, pl, "input %q", test.input)

		require.Equal(t, test.gwords, pl.GWords, "input %q", test.input)
		require.Equal(t, test.mwords, pl.MWords, "input %q", test.input)
		require.Len(t, pl.Params, len(test.params), "input %q", test.input)
		for letter, want := range test.params {
			require.Equal(t, want, pl.Params[letter], "input %q param %c", test.input, letter)
		}
	}
}

func TestParseLineEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "; just a comment", "(all comment)", "(a) (b)"} {
		pl, err := ParseLine(input, 7)
		require.NoError(t, err, "input %q", input)
		require.Nil(t, pl, "input %q", input)
	}
}

func TestParseLineErrors(t *testing.T) {
	tests := []struct {
		input  string
		column int
	}{
		{"G1 X", 5},          // letter without a number
		{"G1 (no end X5", 4}, // unmatched (
		{"G1 ((nested)) X5", 5},
		{"G1 X5 )", 7}, // stray character
		{"G1 X99999999999999999999999999999999999999999999999999999999999999999999" +
			"99999999999999999999999999999999999999999999999999999999999999999999" +
			"99999999999999999999999999999999999999999999999999999999999999999999" +
			"99999999999999999999999999999999999999999999999999999999999999999999" +
			"99999999999999999999999999999999999999999999999999999999999999999999", 5},
	}

	for _, test := range tests {
		_, err := ParseLine(test.input, 3)
		require.Error(t, err, "input %q", test.input)

		var perr *ParseError
		require.ErrorAs(t, err, &perr, "input %q", test.input)
		require.Equal(t, 3, perr.Line)
		require.Equal(t, test.column, perr.Column, "input %q", test.input)
	}
}

func TestParsedLineParamHelpers(t *testing.T) {
	pl, err := ParseLine("G1 X5", 1)
	require.NoError(t, err)

	require.True(t, pl.HasParam('X'))
	require.False(t, pl.HasParam('Y'))
	require.Equal(t, 5.0, pl.Param('X', -1))
	require.Equal(t, -1.0, pl.Param('Y', -1))
}
