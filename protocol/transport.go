package protocol

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"
)

// DefaultAckTimeout bounds how long Send waits for the MCU to
// acknowledge a command frame.
const DefaultAckTimeout = 2 * time.Second

// Transport drives the host side of the protocol over a serial port:
// it frames outgoing commands, tracks the 0x10-0x1f sequence window,
// and matches incoming acknowledgements and responses from a
// background read loop.
type Transport struct {
	port   io.ReadWriteCloser
	logger log.Logger

	seq *atomic.Uint32

	ackCh  chan Frame
	respCh chan Frame
	stopCh chan struct{}
	doneCh chan struct{}

	writeMu sync.Mutex
}

// NewTransport starts a transport on the given port. The read loop
// runs until Close.
func NewTransport(port io.ReadWriteCloser, logger log.Logger) *Transport {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	t := &Transport{
		port:   port,
		logger: logger,
		seq:    atomic.NewUint32(DestBits),
		ackCh:  make(chan Frame, 1),
		respCh: make(chan Frame, 16),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Send frames one command (id plus pre-encoded VLQ arguments), writes
// it, and waits for the matching acknowledgement.
func (t *Transport) Send(cmd uint16, args []byte) error {
	return t.SendTimeout(cmd, args, DefaultAckTimeout)
}

// SendTimeout is Send with an explicit acknowledgement timeout.
func (t *Transport) SendTimeout(cmd uint16, args []byte, timeout time.Duration) error {
	payload := AppendUint(nil, uint32(cmd))
	payload = append(payload, args...)

	seq := byte(t.seq.Load())
	msg, err := EncodeFrame(seq, payload)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	n, werr := t.port.Write(msg)
	t.writeMu.Unlock()
	if werr != nil {
		return werr
	}
	if n != len(msg) {
		return fmt.Errorf("protocol: short write: %d/%d bytes", n, len(msg))
	}

	return t.waitAck(seq, timeout)
}

func (t *Transport) waitAck(seq byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-t.ackCh:
		if ack.Seq != seq {
			return fmt.Errorf("protocol: sequence mismatch: sent 0x%02x, acked 0x%02x", seq, ack.Seq)
		}
		next := ((seq + 1) & SeqMask) | DestBits
		t.seq.Store(uint32(next))
		return nil
	case <-timer.C:
		return fmt.Errorf("protocol: ack timeout after %v", timeout)
	case <-t.stopCh:
		return fmt.Errorf("protocol: transport closed")
	}
}

// Receive returns the next response frame (a frame with a payload)
// within the timeout.
func (t *Transport) Receive(timeout time.Duration) (Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-t.respCh:
		return f, nil
	case <-timer.C:
		return Frame{}, fmt.Errorf("protocol: response timeout after %v", timeout)
	case <-t.stopCh:
		return Frame{}, fmt.Errorf("protocol: transport closed")
	}
}

// Close stops the read loop and closes the port. The port closes
// first so a read blocked on it unblocks.
func (t *Transport) Close() error {
	close(t.stopCh)
	err := t.port.Close()
	<-t.doneCh
	return err
}

func (t *Transport) readLoop() {
	defer close(t.doneCh)

	var dec Decoder
	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
			}
			if err == io.EOF {
				return
			}
			level.Debug(t.logger).Log("msg", "serial read error", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}

		dec.Write(buf[:n])
		for {
			f, ok := dec.Next()
			if !ok {
				break
			}
			t.dispatch(f)
		}
	}
}

func (t *Transport) dispatch(f Frame) {
	if f.Ack() {
		select {
		case t.ackCh <- f:
		default:
		}
		return
	}

	select {
	case t.respCh <- f:
	default:
		// Response channel full: drop the oldest so the newest
		// frame is never lost.
		select {
		case <-t.respCh:
		default:
		}
		t.respCh <- f
	}
}
