package gcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamerSkipsAndNumbers(t *testing.T) {
	input := strings.Join([]string{
		"G21",
		"",
		"; a comment",
		"(setup notes)",
		"G1 X5 F600 ; trailing comment",
		"   ",
		"(a) (b)",
		"G1 X10",
	}, "\n")

	s := NewStreamer(strings.NewReader(input))

	line, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, 1, line.Number)
	require.Equal(t, "G21", line.Text)

	line, ok = s.Next()
	require.True(t, ok)
	require.Equal(t, 5, line.Number)
	require.Equal(t, "G1 X5 F600 ; trailing comment", line.Text)

	line, ok = s.Next()
	require.True(t, ok)
	require.Equal(t, 8, line.Number)
	require.Equal(t, "G1 X10", line.Text)

	_, ok = s.Next()
	require.False(t, ok)
}

func TestStreamerIdempotentEOF(t *testing.T) {
	s := NewStreamer(strings.NewReader("G21\n"))

	_, ok := s.Next()
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		_, ok = s.Next()
		require.False(t, ok)
	}
}

func TestStreamerPassesUnmatchedCommentThrough(t *testing.T) {
	// The parser owns the diagnostic for an unmatched '('.
	s := NewStreamer(strings.NewReader("(oops\n"))

	line, ok := s.Next()
	require.True(t, ok)

	_, err := ParseLine(line.Text, line.Number)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 1, perr.Line)
}

func TestStreamerEmptyInput(t *testing.T) {
	s := NewStreamer(strings.NewReader(""))
	_, ok := s.Next()
	require.False(t, ok)
}
