package executor

import (
	"math"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/klipper4cnc-coder/klipper4cnc/cnc"
	"github.com/klipper4cnc-coder/klipper4cnc/protocol"
)

// SerialOptions configures the Klipper-protocol backend.
type SerialOptions struct {
	// StepsPerMM converts absolute axis positions to step targets,
	// ordered X, Y, Z.
	StepsPerMM [3]float64

	// MoveCommandID is the MCU's command id for a queued move,
	// resolved out-of-band from the MCU dictionary.
	MoveCommandID uint16

	// AckTimeout bounds the wait for each move acknowledgement.
	// Zero uses the protocol default.
	AckTimeout time.Duration

	Logger log.Logger
}

// Serial streams primitives to a Klipper-compatible MCU over a
// protocol transport. Each primitive becomes one move command carrying
// per-axis step targets and the move duration; the MCU acknowledges
// every frame, so a failed or timed-out acknowledgement surfaces
// immediately as an *Error.
type Serial struct {
	transport *protocol.Transport
	opts      SerialOptions
	logger    log.Logger

	// queuedUntil is the wall-clock instant (unix nanos) the MCU's
	// motion queue drains, advanced by each accepted move. It is held
	// in an atomic; only Execute, QueuedTime and Flush touch it, not
	// the transport's read loop.
	queuedUntil *atomic.Int64
}

// NewSerial creates a serial backend on an open transport.
func NewSerial(transport *protocol.Transport, opts SerialOptions) *Serial {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if opts.AckTimeout == 0 {
		opts.AckTimeout = protocol.DefaultAckTimeout
	}
	return &Serial{
		transport:   transport,
		opts:        opts,
		logger:      logger,
		queuedUntil: atomic.NewInt64(time.Now().UnixNano()),
	}
}

// Execute encodes the primitive as a move command and sends it,
// waiting for the acknowledgement.
func (s *Serial) Execute(p cnc.MotionPrimitive) error {
	args := s.encodeMove(p)
	if err := s.transport.SendTimeout(s.opts.MoveCommandID, args, s.opts.AckTimeout); err != nil {
		return &Error{Op: "queue move", Err: err}
	}

	durNanos := int64(p.Duration() * float64(time.Second))
	now := time.Now().UnixNano()
	until := s.queuedUntil.Load()
	if until < now {
		until = now
	}
	s.queuedUntil.Store(until + durNanos)

	level.Debug(s.logger).Log(
		"msg", "move queued",
		"kind", p.Kind.String(),
		"length_mm", p.LengthMM,
		"duration_s", p.Duration(),
	)
	return nil
}

// encodeMove builds the VLQ argument block: three absolute step
// targets followed by the move duration in microseconds.
func (s *Serial) encodeMove(p cnc.MotionPrimitive) []byte {
	end := p.End.Axes()
	var args []byte
	for i := 0; i < 3; i++ {
		steps := int32(math.Round(end[i] * s.opts.StepsPerMM[i]))
		args = protocol.AppendInt(args, steps)
	}
	us := uint32(p.Duration() * 1e6)
	return protocol.AppendUint(args, us)
}

// Flush blocks until the queued-motion clock drains.
func (s *Serial) Flush() error {
	for {
		if s.QueuedTime() == 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// QueuedTime returns the seconds of motion still queued on the MCU.
func (s *Serial) QueuedTime() float64 {
	remaining := s.queuedUntil.Load() - time.Now().UnixNano()
	if remaining <= 0 {
		return 0
	}
	return float64(remaining) / float64(time.Second)
}

// Close shuts down the transport.
func (s *Serial) Close() error {
	return s.transport.Close()
}
