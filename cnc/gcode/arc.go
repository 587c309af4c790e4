package gcode

import (
	"fmt"
	"math"

	"github.com/klipper4cnc-coder/klipper4cnc/cnc"
)

const (
	// Segment count bounds per full turn when segmenting by chord
	// error.
	minSegmentsPerTurn = 8
	maxSegmentsPerTurn = 2048

	// Endpoints closer than this in the arc plane command a full
	// circle (IJK form only).
	fullCircleEps = 1e-9

	// Sweeps smaller than this with distinct endpoints are
	// degenerate.
	sweepEps = 1e-12
)

// planeAxes returns the in-plane axis indices (a, b), the out-of-plane
// index c, and the center-offset letters for the active plane.
func planeAxes(p Plane) (a, b, c int, offA, offB byte) {
	switch p {
	case PlaneXZ:
		return 0, 2, 1, 'I', 'K'
	case PlaneYZ:
		return 1, 2, 0, 'J', 'K'
	default:
		return 0, 1, 2, 'I', 'J'
	}
}

// interpretArc resolves a G2/G3 command into linear chord primitives.
// The center comes from either the IJK offset (relative to the start
// point) or the R radius form; the sweep follows the commanded
// direction and wraps to (0, 2pi]. Out-of-plane travel is distributed
// linearly in arc parameter (helical interpolation).
func (in *Interpreter) interpretArc(pl *ParsedLine) ([]cnc.MotionPrimitive, error) {
	st := in.state
	if !st.FeedrateSet {
		return nil, &UnresolvedFeedrateError{Line: pl.Line}
	}
	feed := st.FeedrateMMS()
	scale := st.Units.Scale()
	clockwise := st.MotionMode == MotionArcCW

	start := st.Position
	end := st.ResolveTarget(pl)
	ai, bi, ci, offA, offB := planeAxes(st.Plane)

	s := start.Axes()
	e := end.Axes()
	a0, b0 := s[ai], s[bi]
	a1, b1 := e[ai], e[bi]

	chord := math.Hypot(a1-a0, b1-b0)
	fullCircle := chord < fullCircleEps

	var ca, cb float64
	if pl.HasParam('R') {
		if fullCircle {
			return nil, &ArcGeometryError{Line: pl.Line, Reason: "R form requires distinct endpoints"}
		}
		r := pl.Params['R'] * scale
		var err error
		ca, cb, err = centerFromRadius(a0, b0, a1, b1, r, clockwise, pl.Line)
		if err != nil {
			return nil, err
		}
	} else {
		ia := pl.Param(offA, 0) * scale
		ib := pl.Param(offB, 0) * scale
		if ia == 0 && ib == 0 {
			return nil, &ArcGeometryError{Line: pl.Line, Reason: "zero center offset"}
		}
		ca, cb = a0+ia, b0+ib
	}

	rs := math.Hypot(a0-ca, b0-cb)
	re := math.Hypot(a1-ca, b1-cb)
	if rs == 0 {
		return nil, &ArcGeometryError{Line: pl.Line, Reason: "arc radius is zero"}
	}
	if tol := math.Max(0.002, 1e-4*rs); math.Abs(rs-re) > tol {
		return nil, &ArcGeometryError{
			Line:   pl.Line,
			Reason: fmt.Sprintf("radius mismatch: start %.4f end %.4f", rs, re),
		}
	}

	startAng := math.Atan2(b0-cb, a0-ca)
	endAng := math.Atan2(b1-cb, a1-ca)

	var sweep float64
	if fullCircle {
		sweep = 2 * math.Pi
		if clockwise {
			sweep = -sweep
		}
	} else {
		sweep = endAng - startAng
		if clockwise && sweep >= 0 {
			sweep -= 2 * math.Pi
		} else if !clockwise && sweep <= 0 {
			sweep += 2 * math.Pi
		}
		if math.Abs(sweep) < sweepEps {
			return nil, &ArcGeometryError{Line: pl.Line, Reason: "degenerate sweep"}
		}
	}

	// Chord-error criterion: the largest step angle keeping the
	// perpendicular chord deviation within ArcTolerance, clamped to
	// [8, 2048] segments per full turn.
	stepAng := 2 * math.Acos(clampUnit(1-st.ArcTolerance/rs))
	if max := 2 * math.Pi / minSegmentsPerTurn; stepAng > max {
		stepAng = max
	}
	if min := 2 * math.Pi / maxSegmentsPerTurn; stepAng < min {
		stepAng = min
	}
	n := int(math.Ceil(math.Abs(sweep) / stepAng))

	// The max-segment-time bound may demand finer segmentation; take
	// the larger count. Path length includes the helical component.
	dc := e[ci] - s[ci]
	pathLen := math.Hypot(math.Abs(sweep)*rs, dc)
	if maxLen := feed * st.MaxSegmentTime; maxLen > 0 {
		if nt := int(math.Ceil(pathLen / maxLen)); nt > n {
			n = nt
		}
	}
	if n < 1 {
		n = 1
	}

	prims := make([]cnc.MotionPrimitive, 0, n)
	prev := start
	for i := 1; i <= n; i++ {
		var next cnc.Position
		if i == n {
			next = end
		} else {
			t := float64(i) / float64(n)
			ang := startAng + sweep*t
			pt := [3]float64{}
			pt[ai] = ca + rs*math.Cos(ang)
			pt[bi] = cb + rs*math.Sin(ang)
			pt[ci] = s[ci] + dc*t
			next = cnc.FromAxes(pt)
		}
		prims = append(prims, cnc.NewPrimitive(cnc.Linear, prev, next, feed, pl.Line))
		prev = next
	}

	st.Position = end
	return prims, nil
}

// centerFromRadius solves the R-format arc center. Of the two circle
// centers on the chord's perpendicular bisector, the one matching the
// commanded direction is chosen for R > 0 (the short arc); a negative R
// selects the opposite center, sweeping the long way around.
func centerFromRadius(a0, b0, a1, b1, r float64, clockwise bool, line int) (float64, float64, error) {
	da := a1 - a0
	db := b1 - b0
	chord := math.Hypot(da, db)
	rAbs := math.Abs(r)

	// The boundary chord == 2R (a half circle with no bisector
	// height) is rejected along with impossible geometry.
	if h2 := rAbs*rAbs - (chord/2)*(chord/2); h2 <= 0 {
		return 0, 0, &ArcGeometryError{
			Line:   line,
			Reason: fmt.Sprintf("radius %.4f too small for chord %.4f", rAbs, chord),
		}
	}

	ma := (a0 + a1) / 2
	mb := (b0 + b1) / 2
	h := math.Sqrt(rAbs*rAbs - (chord/2)*(chord/2))
	na := -db / chord
	nb := da / chord

	c1a, c1b := ma+na*h, mb+nb*h
	c2a, c2b := ma-na*h, mb-nb*h

	// Arc direction around a candidate center follows the sign of
	// the cross product start->center x end->center.
	isCW := func(ca, cb float64) bool {
		cross := (a0-ca)*(b1-cb) - (b0-cb)*(a1-ca)
		return cross < 0
	}

	useFirst := isCW(c1a, c1b) == clockwise
	if r < 0 {
		useFirst = !useFirst
	}
	if useFirst {
		return c1a, c1b, nil
	}
	return c2a, c2b, nil
}

func clampUnit(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}
