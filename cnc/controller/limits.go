package controller

import (
	"fmt"

	"github.com/klipper4cnc-coder/klipper4cnc/cnc"
)

// Range is an inclusive machine-space travel bound, mm.
type Range struct {
	Min float64
	Max float64
}

// SoftLimitViolation reports a primitive endpoint outside the
// configured envelope.
type SoftLimitViolation struct {
	Axis  byte
	Value float64
	Min   float64
	Max   float64
	Line  int
}

func (e *SoftLimitViolation) Error() string {
	return fmt.Sprintf("line %d: %c-axis soft limit exceeded: %.3f (limits %g to %g)",
		e.Line, e.Axis, e.Value, e.Min, e.Max)
}

// SoftLimits checks motion against per-axis travel bounds before it is
// handed to the executor. Axes without an entry are unchecked. It does
// not stop motion mid-move; the controller consults it immediately
// before each execute.
type SoftLimits struct {
	bounds map[byte]Range
}

// NewSoftLimits builds a limit table, e.g. {'X': {0, 300}}.
func NewSoftLimits(bounds map[byte]Range) *SoftLimits {
	return &SoftLimits{bounds: bounds}
}

// Check validates both endpoints of a primitive. Straight-line motion
// between two in-bounds endpoints stays in bounds.
func (l *SoftLimits) Check(p cnc.MotionPrimitive) error {
	if l == nil || len(l.bounds) == 0 {
		return nil
	}
	if err := l.checkPoint(p.Start, p.Line); err != nil {
		return err
	}
	return l.checkPoint(p.End, p.Line)
}

func (l *SoftLimits) checkPoint(pos cnc.Position, line int) error {
	axes := pos.Axes()
	for i, letter := range [3]byte{'X', 'Y', 'Z'} {
		r, ok := l.bounds[letter]
		if !ok {
			continue
		}
		if axes[i] < r.Min || axes[i] > r.Max {
			return &SoftLimitViolation{
				Axis:  letter,
				Value: axes[i],
				Min:   r.Min,
				Max:   r.Max,
				Line:  line,
			}
		}
	}
	return nil
}
