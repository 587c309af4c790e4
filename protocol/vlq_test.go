package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVLQIntRoundTrip(t *testing.T) {
	cases := []int32{
		0, 1, -1,
		31, -32,
		127, -127, 128, -128,
		255, -255,
		1000, -1000,
		65535, -65535,
		1000000, -1000000,
		1 << 26, -(1 << 26),
	}

	for _, want := range cases {
		encoded := AppendInt(nil, want)
		got, rest, err := ReadInt(encoded)
		require.NoError(t, err, "value %d", want)
		require.Equal(t, want, got, "encoded %v", encoded)
		require.Empty(t, rest, "value %d", want)
	}
}

func TestVLQUintRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 255, 1000, 65535, 1000000, 0xffffffff}

	for _, want := range cases {
		encoded := AppendUint(nil, want)
		got, rest, err := ReadUint(encoded)
		require.NoError(t, err, "value %d", want)
		require.Equal(t, want, got)
		require.Empty(t, rest)
	}
}

func TestVLQBytesRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	encoded := AppendBytes(nil, payload)
	got, rest, err := ReadBytes(encoded)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.Empty(t, rest)
}

func TestVLQTruncated(t *testing.T) {
	_, _, err := ReadInt(nil)
	require.ErrorIs(t, err, ErrTruncated)

	// Continuation bit set with nothing following.
	_, _, err = ReadInt([]byte{0x80})
	require.ErrorIs(t, err, ErrTruncated)

	// Length prefix longer than the data.
	_, _, err = ReadBytes([]byte{5, 1, 2})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestVLQSequential(t *testing.T) {
	var buf []byte
	buf = AppendInt(buf, -42)
	buf = AppendUint(buf, 1234)

	v1, rest, err := ReadInt(buf)
	require.NoError(t, err)
	require.Equal(t, int32(-42), v1)

	v2, rest, err := ReadUint(rest)
	require.NoError(t, err)
	require.Equal(t, uint32(1234), v2)
	require.Empty(t, rest)
}
