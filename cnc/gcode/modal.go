package gcode

import (
	"github.com/klipper4cnc-coder/klipper4cnc/cnc"
)

const mmPerInch = 25.4

// Units selects the active input unit (G20/G21).
type Units uint8

const (
	UnitsMM Units = iota
	UnitsInch
)

// Scale returns the factor converting a value in the active unit to mm.
func (u Units) Scale() float64 {
	if u == UnitsInch {
		return mmPerInch
	}
	return 1.0
}

// DistanceMode selects absolute (G90) or incremental (G91) targets.
type DistanceMode uint8

const (
	Absolute DistanceMode = iota
	Incremental
)

// Plane selects the arc plane (G17/G18/G19).
type Plane uint8

const (
	PlaneXY Plane = iota
	PlaneXZ
	PlaneYZ
)

// MotionMode is the sticky motion class applied when a line carries
// axis words without a motion G-word.
type MotionMode uint8

const (
	MotionRapid  MotionMode = iota // G0
	MotionLinear                   // G1
	MotionArcCW                    // G2
	MotionArcCCW                   // G3
)

// wcsCount is the number of selectable work coordinate systems
// (G54..G59). Offsets are carried as placeholders of zero until work
// coordinate support is designed.
const wcsCount = 6

// ModalState is the persistent interpreter state across lines. It is
// owned exclusively by one Interpreter; a prescan pass and a runtime
// pass each construct their own instance.
type ModalState struct {
	Units        Units
	DistanceMode DistanceMode
	Plane        Plane
	MotionMode   MotionMode

	// FeedrateMMMin is the modal feedrate converted to mm/min.
	// It is unset until the first F word.
	FeedrateMMMin float64
	FeedrateSet   bool

	// Position is the current machine-space position in mm.
	Position cnc.Position

	// WCSIndex selects G54..G59. The offset table is all zeros.
	WCSIndex   int
	wcsOffsets [wcsCount]cnc.Position

	// ArcTolerance is the maximum chord-to-arc deviation (mm)
	// permitted when segmenting arcs. Configuration-time.
	ArcTolerance float64

	// MaxSegmentTime bounds the wall-clock duration any emitted
	// segment may represent at its feedrate (s). Configuration-time.
	MaxSegmentTime float64
}

// NewModalState returns modal state with power-on defaults: mm,
// absolute, XY plane, rapid motion, feedrate unset, position at origin.
func NewModalState(arcTolerance, maxSegmentTime float64) *ModalState {
	return &ModalState{
		Units:          UnitsMM,
		DistanceMode:   Absolute,
		Plane:          PlaneXY,
		MotionMode:     MotionRapid,
		WCSIndex:       0,
		ArcTolerance:   arcTolerance,
		MaxSegmentTime: maxSegmentTime,
	}
}

// UpdateFeedrate records an F word, converting from the active unit
// per minute to mm/min.
func (st *ModalState) UpdateFeedrate(f float64) {
	st.FeedrateMMMin = f * st.Units.Scale()
	st.FeedrateSet = true
}

// FeedrateMMS returns the modal feedrate in mm/s.
func (st *ModalState) FeedrateMMS() float64 {
	return st.FeedrateMMMin / 60.0
}

// WCSOffset returns the active work coordinate offset. All entries are
// identity until work coordinate systems are designed.
func (st *ModalState) WCSOffset() cnc.Position {
	return st.wcsOffsets[st.WCSIndex]
}

// ResolveTarget converts the axis words of a line into an absolute
// machine-space target. Unnamed axes keep their current position. Word
// values are converted from the active unit; in incremental mode they
// offset the current position.
func (st *ModalState) ResolveTarget(pl *ParsedLine) cnc.Position {
	scale := st.Units.Scale()
	target := st.Position.Axes()
	off := st.WCSOffset().Axes()

	for i, letter := range [3]byte{'X', 'Y', 'Z'} {
		v, ok := pl.Params[letter]
		if !ok {
			continue
		}
		if st.DistanceMode == Absolute {
			target[i] = v*scale + off[i]
		} else {
			target[i] += v * scale
		}
	}
	return cnc.FromAxes(target)
}
