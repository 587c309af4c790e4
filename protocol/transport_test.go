package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klipper4cnc-coder/klipper4cnc/host/serial"
)

// fakeMCU acknowledges every frame it receives and records payloads.
type fakeMCU struct {
	port     serial.Port
	payloads chan []byte
}

func startFakeMCU(t *testing.T, port serial.Port) *fakeMCU {
	t.Helper()
	m := &fakeMCU{
		port:     port,
		payloads: make(chan []byte, 16),
	}
	go m.run()
	t.Cleanup(func() { port.Close() })
	return m
}

func (m *fakeMCU) run() {
	var dec Decoder
	buf := make([]byte, 256)
	for {
		n, err := m.port.Read(buf)
		if err != nil {
			return
		}
		dec.Write(buf[:n])
		for {
			f, ok := dec.Next()
			if !ok {
				break
			}
			select {
			case m.payloads <- f.Payload:
			default:
			}
			ack, err := EncodeFrame(f.Seq, nil)
			if err != nil {
				return
			}
			if _, err := m.port.Write(ack); err != nil {
				return
			}
		}
	}
}

// send pushes a response frame to the host.
func (m *fakeMCU) send(t *testing.T, payload []byte) {
	t.Helper()
	msg, err := EncodeFrame(DestBits, payload)
	require.NoError(t, err)
	_, err = m.port.Write(msg)
	require.NoError(t, err)
}

func TestTransportSendAcked(t *testing.T) {
	hostPort, mcuPort := serial.Loopback()
	mcu := startFakeMCU(t, mcuPort)

	tr := NewTransport(hostPort, nil)
	defer tr.Close()

	for i := 0; i < 3; i++ {
		args := AppendInt(nil, int32(i*100))
		require.NoError(t, tr.Send(7, args))
	}

	// Each frame starts with the command id, then the argument.
	for i := 0; i < 3; i++ {
		payload := <-mcu.payloads
		cmd, rest, err := ReadUint(payload)
		require.NoError(t, err)
		require.Equal(t, uint32(7), cmd)

		arg, rest, err := ReadInt(rest)
		require.NoError(t, err)
		require.Equal(t, int32(i*100), arg)
		require.Empty(t, rest)
	}
}

func TestTransportSequenceAdvances(t *testing.T) {
	hostPort, mcuPort := serial.Loopback()
	startFakeMCU(t, mcuPort)

	tr := NewTransport(hostPort, nil)
	defer tr.Close()

	require.NoError(t, tr.Send(1, nil))
	require.NoError(t, tr.Send(1, nil))
	require.Equal(t, uint32(0x12), tr.seq.Load())

	// Sequence wraps within the 0x10-0x1f window.
	for i := 0; i < 20; i++ {
		require.NoError(t, tr.Send(1, nil))
	}
	require.Equal(t, uint32(0x16), tr.seq.Load())
}

func TestTransportAckTimeout(t *testing.T) {
	hostPort, mcuPort := serial.Loopback()
	// Drain without acknowledging.
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := mcuPort.Read(buf); err != nil {
				return
			}
		}
	}()
	defer mcuPort.Close()

	tr := NewTransport(hostPort, nil)
	defer tr.Close()

	err := tr.SendTimeout(1, nil, 50*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ack timeout")
}

func TestTransportReceiveResponse(t *testing.T) {
	hostPort, mcuPort := serial.Loopback()
	mcu := startFakeMCU(t, mcuPort)

	tr := NewTransport(hostPort, nil)
	defer tr.Close()

	want := AppendUint(nil, 42)
	mcu.send(t, want)

	f, err := tr.Receive(time.Second)
	require.NoError(t, err)
	require.Equal(t, want, f.Payload)
}
