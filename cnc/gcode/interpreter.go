package gcode

import (
	"fmt"
	"math"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/klipper4cnc-coder/klipper4cnc/cnc"
)

// modalGroup partitions G-words so that conflicts within a group on one
// line can be rejected.
type modalGroup uint8

const (
	groupMotion modalGroup = iota
	groupPlane
	groupDistance
	groupUnits
	groupWCS
)

func (g modalGroup) String() string {
	switch g {
	case groupMotion:
		return "motion"
	case groupPlane:
		return "plane"
	case groupDistance:
		return "distance"
	case groupUnits:
		return "units"
	case groupWCS:
		return "wcs"
	}
	return "unknown"
}

// gHandler applies one modal G-word to the state.
type gHandler struct {
	group modalGroup
	apply func(st *ModalState)
}

// gDispatch maps integer G numbers to their modal group and state
// mutation. Handlers only mutate state; motion emission happens after
// all modal words on the line are applied.
var gDispatch = map[int]gHandler{
	0:  {groupMotion, func(st *ModalState) { st.MotionMode = MotionRapid }},
	1:  {groupMotion, func(st *ModalState) { st.MotionMode = MotionLinear }},
	2:  {groupMotion, func(st *ModalState) { st.MotionMode = MotionArcCW }},
	3:  {groupMotion, func(st *ModalState) { st.MotionMode = MotionArcCCW }},
	17: {groupPlane, func(st *ModalState) { st.Plane = PlaneXY }},
	18: {groupPlane, func(st *ModalState) { st.Plane = PlaneXZ }},
	19: {groupPlane, func(st *ModalState) { st.Plane = PlaneYZ }},
	20: {groupUnits, func(st *ModalState) { st.Units = UnitsInch }},
	21: {groupUnits, func(st *ModalState) { st.Units = UnitsMM }},
	54: {groupWCS, func(st *ModalState) { st.WCSIndex = 0 }},
	55: {groupWCS, func(st *ModalState) { st.WCSIndex = 1 }},
	56: {groupWCS, func(st *ModalState) { st.WCSIndex = 2 }},
	57: {groupWCS, func(st *ModalState) { st.WCSIndex = 3 }},
	58: {groupWCS, func(st *ModalState) { st.WCSIndex = 4 }},
	59: {groupWCS, func(st *ModalState) { st.WCSIndex = 5 }},
	90: {groupDistance, func(st *ModalState) { st.DistanceMode = Absolute }},
	91: {groupDistance, func(st *ModalState) { st.DistanceMode = Incremental }},
}

// applyOrder fixes the order modal groups take effect within one line:
// units first so that every other value on the line is read in the new
// unit, then plane, distance mode, and work coordinate selection.
// Motion is dispatched last, after the feedrate word.
var applyOrder = [...]modalGroup{groupUnits, groupPlane, groupDistance, groupWCS}

// Options configures an Interpreter.
type Options struct {
	// RapidFeedrateMMS is the backend's rapid feedrate, carried
	// explicitly on rapid primitives.
	RapidFeedrateMMS float64

	// Strict turns unsupported G/M words into errors instead of
	// logged skips.
	Strict bool

	Logger log.Logger
}

// Interpreter turns parsed lines into ordered motion primitives,
// mutating its owned ModalState as modal words require.
type Interpreter struct {
	state  *ModalState
	rapid  float64
	strict bool
	logger log.Logger
}

// NewInterpreter creates an interpreter owning the given modal state.
func NewInterpreter(state *ModalState, opts Options) *Interpreter {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Interpreter{
		state:  state,
		rapid:  opts.RapidFeedrateMMS,
		strict: opts.Strict,
		logger: logger,
	}
}

// State exposes the modal state for inspection in tests and status
// reporting. Callers must not mutate it.
func (in *Interpreter) State() *ModalState {
	return in.state
}

// Interpret applies one parsed line to the modal state and returns the
// motion primitives it commands, in emission order. A nil line or a
// line with only modal updates emits no primitives.
//
// Interpretation is deterministic: the same modal state and the same
// parsed line always produce identical output.
func (in *Interpreter) Interpret(pl *ParsedLine) ([]cnc.MotionPrimitive, error) {
	if pl == nil {
		return nil, nil
	}

	selected, err := in.selectModal(pl)
	if err != nil {
		return nil, err
	}

	// Modal updates in fixed order; units take effect before any
	// other value on the line is interpreted.
	for _, g := range applyOrder {
		if h, ok := selected[g]; ok {
			h.apply(in.state)
		}
	}
	if f, ok := pl.Params['F']; ok {
		in.state.UpdateFeedrate(f)
	}
	if h, ok := selected[groupMotion]; ok {
		h.apply(in.state)
	}

	for _, m := range pl.MWords {
		word := fmt.Sprintf("M%d", m)
		if in.strict {
			return nil, &UnsupportedWordError{Line: pl.Line, Word: word}
		}
		level.Debug(in.logger).Log("msg", "ignoring M word", "line", pl.Line, "word", word)
	}

	hasAxis := pl.HasParam('X') || pl.HasParam('Y') || pl.HasParam('Z')
	hasArcParam := pl.HasParam('I') || pl.HasParam('J') || pl.HasParam('K') || pl.HasParam('R')

	switch in.state.MotionMode {
	case MotionArcCW, MotionArcCCW:
		if !hasAxis && !hasArcParam {
			return nil, nil
		}
		return in.interpretArc(pl)
	default:
		if !hasAxis {
			return nil, nil
		}
		return in.interpretLinear(pl)
	}
}

// selectModal scans the line's G-words, resolving each to its handler
// and rejecting a second word in any one modal group.
func (in *Interpreter) selectModal(pl *ParsedLine) (map[modalGroup]gHandler, error) {
	selected := make(map[modalGroup]gHandler, len(pl.GWords))
	for _, gw := range pl.GWords {
		gn := int(gw)
		h, known := gDispatch[gn]
		if !known || float64(gn) != gw {
			word := fmt.Sprintf("G%g", gw)
			if in.strict {
				return nil, &UnsupportedWordError{Line: pl.Line, Word: word}
			}
			level.Warn(in.logger).Log("msg", "ignoring unsupported word", "line", pl.Line, "word", word)
			continue
		}
		if _, dup := selected[h.group]; dup {
			return nil, &ModalError{
				Line:   pl.Line,
				Reason: fmt.Sprintf("conflicting G-words in %s group", h.group),
			}
		}
		selected[h.group] = h
	}
	return selected, nil
}

// interpretLinear resolves the line's target and segments the straight
// move so that no segment exceeds MaxSegmentTime at its feedrate.
func (in *Interpreter) interpretLinear(pl *ParsedLine) ([]cnc.MotionPrimitive, error) {
	st := in.state
	start := st.Position
	end := st.ResolveTarget(pl)

	kind := cnc.Linear
	feed := 0.0
	switch st.MotionMode {
	case MotionRapid:
		kind = cnc.Rapid
		feed = in.rapid
	default:
		if !st.FeedrateSet {
			return nil, &UnresolvedFeedrateError{Line: pl.Line}
		}
		feed = st.FeedrateMMS()
	}

	prims := segmentLinear(kind, start, end, feed, st.MaxSegmentTime, pl.Line)
	st.Position = end
	return prims, nil
}

// segmentLinear splits one commanded straight move into n equal
// segments with n = ceil(distance / (feedrate * maxSegmentTime)). The
// final segment ends exactly at the commanded end so no round-off
// accumulates. A zero-distance commanded move emits one zero-length
// primitive; the controller drops those before execution.
func segmentLinear(kind cnc.Kind, start, end cnc.Position, feedMMS, maxSegTime float64, line int) []cnc.MotionPrimitive {
	distance := start.Distance(end)
	if distance == 0 {
		return []cnc.MotionPrimitive{cnc.NewPrimitive(kind, start, end, feedMMS, line)}
	}

	n := 1
	if maxLen := feedMMS * maxSegTime; maxLen > 0 {
		n = int(math.Ceil(distance / maxLen))
		if n < 1 {
			n = 1
		}
	}

	s := start.Axes()
	e := end.Axes()
	prims := make([]cnc.MotionPrimitive, 0, n)
	prev := start
	for i := 1; i <= n; i++ {
		var next cnc.Position
		if i == n {
			next = end
		} else {
			t := float64(i) / float64(n)
			next = cnc.FromAxes([3]float64{
				s[0] + (e[0]-s[0])*t,
				s[1] + (e[1]-s[1])*t,
				s[2] + (e[2]-s[2])*t,
			})
		}
		prims = append(prims, cnc.NewPrimitive(kind, prev, next, feedMMS, line))
		prev = next
	}
	return prims
}
