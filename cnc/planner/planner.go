// Package planner implements a streaming junction-deviation lookahead
// pass over motion primitives. It assigns entry/exit/peak speeds and
// trapezoid timing to each move, committing a prefix of its window as
// lookahead fills, so that cornering speed limits and acceleration
// reachability are respected across segment boundaries.
//
// The controller executes only the inner primitive of each planned
// move; the planned speeds and timing are not passed to the executor
// or used for time estimates.
package planner

import (
	"math"

	"github.com/klipper4cnc-coder/klipper4cnc/cnc"
)

const eps = 1e-12

// Config bounds the planning pass.
type Config struct {
	MaxVelocity       float64 // mm/s
	MaxAccel          float64 // mm/s^2
	JunctionDeviation float64 // mm

	// BufferTime is how many seconds of optimistic motion to keep
	// uncommitted in the window.
	BufferTime float64

	// KeepTailMoves is the minimum number of trailing moves kept
	// uncommitted so the forced stop at the window end does not
	// pollute committed motion.
	KeepTailMoves int

	// MaxWindowMoves caps the window to bound memory.
	MaxWindowMoves int
}

// PlannedPrimitive wraps a primitive with its planned speed profile.
// Speeds are mm/s, times seconds.
type PlannedPrimitive struct {
	Primitive cnc.MotionPrimitive

	VEntry float64
	VExit  float64
	VPeak  float64
	Accel  float64

	TAccel  float64
	TCruise float64
	TDecel  float64
}

// Time returns the planned duration of the move.
func (p PlannedPrimitive) Time() float64 {
	return p.TAccel + p.TCruise + p.TDecel
}

type moveInfo struct {
	p       cnc.MotionPrimitive
	length  float64
	unit    [3]float64
	vmax    float64
	accel   float64
	minTime float64
	deltaV2 float64 // 2 * length * accel
}

// Planner accepts primitives incrementally and emits committed planned
// moves. Reset returns it to the initial state for a new job.
type Planner struct {
	cfg Config

	window     []moveInfo
	windowTime float64
	carryInV2  float64
}

// New creates a planner, clamping degenerate configuration.
func New(cfg Config) *Planner {
	if cfg.KeepTailMoves < 1 {
		cfg.KeepTailMoves = 1
	}
	if cfg.MaxWindowMoves < 10 {
		cfg.MaxWindowMoves = 10
	}
	return &Planner{cfg: cfg}
}

// Reset clears the window and the carried junction speed.
func (pl *Planner) Reset() {
	pl.window = pl.window[:0]
	pl.windowTime = 0
	pl.carryInV2 = 0
}

// Push adds one primitive and returns any moves that became committed.
func (pl *Planner) Push(p cnc.MotionPrimitive) []PlannedPrimitive {
	mi, ok := pl.makeMoveInfo(p)
	if !ok {
		return nil
	}

	pl.window = append(pl.window, mi)
	pl.windowTime += mi.minTime

	force := len(pl.window) >= pl.cfg.MaxWindowMoves
	return pl.commit(force)
}

// Finish plans the remaining window with a forced stop at the end and
// resets the planner.
func (pl *Planner) Finish() []PlannedPrimitive {
	if len(pl.window) == 0 {
		return nil
	}
	planned := planWindow(pl.window, pl.cfg.JunctionDeviation, pl.carryInV2)
	pl.Reset()
	return planned
}

func (pl *Planner) makeMoveInfo(p cnc.MotionPrimitive) (moveInfo, bool) {
	length := p.LengthMM
	if length < eps {
		return moveInfo{}, false
	}

	vmax := pl.cfg.MaxVelocity
	if p.Kind != cnc.Rapid && p.FeedrateMMS > 0 && p.FeedrateMMS < vmax {
		vmax = p.FeedrateMMS
	}

	d := p.End.Sub(p.Start)
	unit := [3]float64{d.X / length, d.Y / length, d.Z / length}

	minTime := 0.0
	if vmax > eps {
		minTime = length / vmax
	}

	return moveInfo{
		p:       p,
		length:  length,
		unit:    unit,
		vmax:    vmax,
		accel:   pl.cfg.MaxAccel,
		minTime: minTime,
		deltaV2: 2 * length * pl.cfg.MaxAccel,
	}, true
}

// commit plans the current window and pops the oldest prefix once
// enough motion is buffered, keeping BufferTime seconds plus the tail
// uncommitted.
func (pl *Planner) commit(force bool) []PlannedPrimitive {
	if len(pl.window) <= pl.cfg.KeepTailMoves {
		return nil
	}
	if !force && pl.windowTime < pl.cfg.BufferTime {
		return nil
	}

	planned := planWindow(pl.window, pl.cfg.JunctionDeviation, pl.carryInV2)

	remaining := pl.windowTime
	count := 0
	maxCommit := len(pl.window) - pl.cfg.KeepTailMoves
	for count < maxCommit {
		next := remaining - pl.window[count].minTime
		if !force && next < pl.cfg.BufferTime {
			break
		}
		count++
		remaining = next
	}
	if count == 0 {
		return nil
	}

	committed := planned[:count]

	if count < len(planned) {
		head := planned[count]
		pl.carryInV2 = head.VEntry * head.VEntry
	} else {
		pl.carryInV2 = 0
	}

	for i := 0; i < count; i++ {
		pl.windowTime -= pl.window[i].minTime
	}
	if pl.windowTime < 0 {
		pl.windowTime = 0
	}
	pl.window = append(pl.window[:0], pl.window[count:]...)

	return committed
}

// junctionV2 returns the squared junction speed limit between two
// segments using Klipper's junction deviation formula.
func junctionV2(prev, cur moveInfo, jd, accel float64) float64 {
	dot := prev.unit[0]*cur.unit[0] + prev.unit[1]*cur.unit[1] + prev.unit[2]*cur.unit[2]
	dot = clamp(dot, -1, 1)

	// Supplementary angle, as Klipper defines it.
	junctionCos := -dot

	sinHalf := math.Sqrt(math.Max(0.5*(1-junctionCos), 0))
	cosHalf := math.Sqrt(math.Max(0.5*(1+junctionCos), 0))

	oneMinusSin := 1 - sinHalf
	if oneMinusSin <= eps || cosHalf <= eps {
		// Nearly straight: no junction limit.
		return math.Inf(1)
	}

	r := sinHalf / oneMinusSin
	v2 := accel * jd * r

	// Keep the implied blend inside short neighbouring segments.
	quarterTan := 0.25 * sinHalf / cosHalf
	v2 = math.Min(v2, cur.deltaV2*quarterTan)
	v2 = math.Min(v2, prev.deltaV2*quarterTan)
	return v2
}

// planWindow assigns boundary speeds with junction caps plus backward
// and forward reachability passes in v^2 space, then builds trapezoid
// timing per move. The final boundary is forced to zero.
func planWindow(moves []moveInfo, jd, startV2 float64) []PlannedPrimitive {
	n := len(moves)
	if n == 0 {
		return nil
	}

	cap2 := make([]float64, n+1)
	for i := range cap2 {
		cap2[i] = math.Inf(1)
	}
	cap2[0] = math.Max(0, startV2)
	cap2[n] = 0

	for i := 0; i < n; i++ {
		vmax2 := moves[i].vmax * moves[i].vmax
		cap2[i] = math.Min(cap2[i], vmax2)
		cap2[i+1] = math.Min(cap2[i+1], vmax2)
	}
	for i := 1; i < n; i++ {
		prev, cur := moves[i-1], moves[i]
		aj := math.Min(prev.accel, cur.accel)
		v2 := junctionV2(prev, cur, jd, aj)
		cap2[i] = math.Min(cap2[i], v2)
	}

	v2b := make([]float64, n+1)
	copy(v2b, cap2)

	// Backward: each boundary must be able to decelerate to the
	// next across the move between them. Boundary 0 is a given
	// carry-in and is never raised.
	for i := n - 1; i >= 1; i-- {
		reachable := v2b[i+1] + 2*moves[i].accel*moves[i].length
		v2b[i] = math.Min(v2b[i], reachable)
	}
	// Forward: each boundary must be reachable by accelerating from
	// the previous one.
	for i := 0; i < n; i++ {
		reachable := v2b[i] + 2*moves[i].accel*moves[i].length
		v2b[i+1] = math.Min(v2b[i+1], reachable)
	}

	planned := make([]PlannedPrimitive, 0, n)
	for i := 0; i < n; i++ {
		m := moves[i]
		vIn2 := math.Max(0, v2b[i])
		vOut2 := math.Max(0, v2b[i+1])
		vmax2 := m.vmax * m.vmax

		vPeak2 := math.Min(vmax2, m.accel*m.length+0.5*(vIn2+vOut2))
		vIn := math.Sqrt(vIn2)
		vOut := math.Sqrt(vOut2)
		vPeak := math.Sqrt(math.Max(0, vPeak2))

		pp := PlannedPrimitive{
			Primitive: m.p,
			VEntry:    vIn,
			VExit:     vOut,
			VPeak:     vPeak,
			Accel:     m.accel,
		}

		if m.accel <= eps {
			if vPeak > eps {
				pp.TCruise = m.length / vPeak
			}
			planned = append(planned, pp)
			continue
		}

		dAccel := (vPeak2 - vIn2) / (2 * m.accel)
		dDecel := (vPeak2 - vOut2) / (2 * m.accel)
		dCruise := math.Max(0, m.length-dAccel-dDecel)

		pp.TAccel = (vPeak - vIn) / m.accel
		pp.TDecel = (vPeak - vOut) / m.accel
		if vPeak > eps {
			pp.TCruise = dCruise / vPeak
		}
		planned = append(planned, pp)
	}

	return planned
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
