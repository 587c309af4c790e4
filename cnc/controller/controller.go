// Package controller owns the execution state machine of a CNC job: it
// pumps lines from the streamer through the interpreter into a bounded
// ready queue, steps primitives into the executor while running, and
// reports progress, completion, and fail-fast errors.
package controller

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/klipper4cnc-coder/klipper4cnc/cnc"
	"github.com/klipper4cnc-coder/klipper4cnc/cnc/executor"
	"github.com/klipper4cnc-coder/klipper4cnc/cnc/gcode"
	"github.com/klipper4cnc-coder/klipper4cnc/cnc/planner"
)

// State is the execution state of the controller.
type State uint8

const (
	Idle State = iota
	Running
	Hold
	Cancelled
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Hold:
		return "hold"
	case Cancelled:
		return "cancelled"
	case Done:
		return "done"
	}
	return "unknown"
}

type event uint8

const (
	evStart event = iota
	evFeedHold
	evResume
	evCancel
	evComplete
	evReset
)

func (e event) String() string {
	switch e {
	case evStart:
		return "start"
	case evFeedHold:
		return "feed_hold"
	case evResume:
		return "resume"
	case evCancel:
		return "cancel"
	case evComplete:
		return "complete"
	case evReset:
		return "reset"
	}
	return "unknown"
}

// transitions is the exhaustive table of legal state changes. Anything
// absent is an IllegalStateTransition.
var transitions = map[State]map[event]State{
	Idle: {
		evStart: Running,
	},
	Running: {
		evFeedHold: Hold,
		evCancel:   Cancelled,
		evComplete: Done,
	},
	Hold: {
		evResume: Running,
		evCancel: Cancelled,
	},
	Cancelled: {
		evReset: Idle,
	},
	Done: {
		evReset: Idle,
	},
}

// IllegalStateTransition is returned when a control command is not
// legal in the current state. State is left unchanged.
type IllegalStateTransition struct {
	From  State
	Event string
}

func (e *IllegalStateTransition) Error() string {
	return fmt.Sprintf("controller: illegal transition: %s from %s", e.Event, e.From)
}

// Budget bounds one pump invocation: at most MaxLines pulled from the
// streamer and at most MaxSteps primitives handed to the executor.
// Small budgets keep hold and cancel latency bounded.
type Budget struct {
	MaxLines int
	MaxSteps int
}

// Config tunes the controller.
type Config struct {
	// LookaheadPrimitives bounds the ready queue.
	LookaheadPrimitives int

	// HighWatermark stops the fill phase for the tick once the
	// executor reports this many seconds of queued motion.
	HighWatermark float64

	// ProgressIncrementMM is the reporting cadence by completed
	// distance.
	ProgressIncrementMM float64

	// CheckRapidSoftLimits applies the soft-limit envelope to rapid
	// moves as well as feed moves.
	CheckRapidSoftLimits bool
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		LookaheadPrimitives:  64,
		HighWatermark:        0.5,
		ProgressIncrementMM:  1.0,
		CheckRapidSoftLimits: true,
	}
}

// Params wires a controller together.
type Params struct {
	Source      *gcode.Streamer
	Interpreter *gcode.Interpreter
	Executor    executor.Executor

	// Limits is optional; nil disables soft-limit checking.
	Limits *SoftLimits

	// Planner is optional; when set, interpreter output passes
	// through the lookahead planner before entering the ready
	// queue.
	Planner *planner.Planner

	Sink       cnc.EventSink
	Logger     log.Logger
	Registerer prometheus.Registerer

	Config Config
}

// Controller coordinates streaming execution of one job. All methods
// must be called from a single driver goroutine.
type Controller struct {
	cfg     Config
	source  *gcode.Streamer
	interp  *gcode.Interpreter
	exec    executor.Executor
	limits  *SoftLimits
	planner *planner.Planner
	sink    cnc.EventSink
	logger  log.Logger
	metrics *metrics

	state State
	queue []cnc.MotionPrimitive

	eofReached bool

	completed  float64
	total      float64
	totalKnown bool
	lastFeed   float64
	nextReport float64
}

// New builds a controller in the Idle state. Zero numeric Config
// fields take their defaults.
func New(p Params) *Controller {
	cfg := p.Config
	if cfg.LookaheadPrimitives <= 0 {
		cfg.LookaheadPrimitives = 64
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = 0.5
	}
	if cfg.ProgressIncrementMM <= 0 {
		cfg.ProgressIncrementMM = 1.0
	}

	sink := p.Sink
	if sink == nil {
		sink = cnc.NopSink{}
	}
	logger := p.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Controller{
		cfg:        cfg,
		source:     p.Source,
		interp:     p.Interpreter,
		exec:       p.Executor,
		limits:     p.Limits,
		planner:    p.Planner,
		sink:       sink,
		logger:     logger,
		metrics:    newMetrics(p.Registerer),
		state:      Idle,
		nextReport: cfg.ProgressIncrementMM,
	}
}

// State returns the current execution state.
func (c *Controller) State() State {
	return c.state
}

// CompletedLength returns the executed motion length so far, mm.
func (c *Controller) CompletedLength() float64 {
	return c.completed
}

// SetTotalLength records a prescanned total so progress events carry a
// percentage and an ETA.
func (c *Controller) SetTotalLength(mm float64) {
	c.total = mm
	c.totalKnown = true
}

// Start begins execution. Legal only from Idle.
func (c *Controller) Start() error {
	return c.apply(evStart)
}

// FeedHold pauses stepping. The fill phase keeps running so lookahead
// stays warm for resume; motion already handed to the backend
// completes there.
func (c *Controller) FeedHold() error {
	if err := c.apply(evFeedHold); err != nil {
		return err
	}
	c.reportProgress()
	return nil
}

// Resume continues after a feed hold.
func (c *Controller) Resume() error {
	return c.apply(evResume)
}

// Cancel terminates the job. Moves already handed to the backend are
// not interrupted; backends expose their own abort path.
func (c *Controller) Cancel() error {
	return c.apply(evCancel)
}

// Reset returns a finished or cancelled controller to Idle and clears
// all execution state. The streamer is not restartable; attach a fresh
// controller for a rerun of the same file.
func (c *Controller) Reset() error {
	if err := c.apply(evReset); err != nil {
		return err
	}
	c.queue = c.queue[:0]
	c.eofReached = false
	c.completed = 0
	c.total = 0
	c.totalKnown = false
	c.lastFeed = 0
	c.nextReport = c.cfg.ProgressIncrementMM
	if c.planner != nil {
		c.planner.Reset()
	}
	c.metrics.queueDepth.Set(0)
	return nil
}

// apply dispatches one event through the transition table.
func (c *Controller) apply(ev event) error {
	next, ok := transitions[c.state][ev]
	if !ok {
		return &IllegalStateTransition{From: c.state, Event: ev.String()}
	}
	c.setState(next)
	return nil
}

func (c *Controller) setState(next State) {
	from := c.state
	c.state = next
	c.metrics.stateTransitions.WithLabelValues(from.String(), next.String()).Inc()
	level.Debug(c.logger).Log("msg", "state change", "from", from, "to", next)
	c.sink.StateChange(cnc.StateChangeEvent{From: from.String(), To: next.String()})
}

// Pump runs one bounded fill-and-step cycle. It returns the pipeline
// error that cancelled the job, if any; control-flow returns (budget
// exhausted, hold, backpressure) are nil.
func (c *Controller) Pump(b Budget) error {
	if c.state == Cancelled || c.state == Done {
		return nil
	}

	if err := c.fill(b.MaxLines); err != nil {
		return err
	}
	if err := c.step(b.MaxSteps); err != nil {
		return err
	}

	if c.state == Running && c.eofReached && len(c.queue) == 0 && c.exec.QueuedTime() == 0 {
		if err := c.apply(evComplete); err != nil {
			return err
		}
		c.sink.Completion(cnc.CompletionEvent{TotalExecutedMM: c.completed})
	}
	return nil
}

// fill pulls up to maxLines lines through the interpreter into the
// ready queue, stopping early on a full queue, EOF, or backend
// backpressure.
func (c *Controller) fill(maxLines int) error {
	for i := 0; i < maxLines; i++ {
		if len(c.queue) >= c.cfg.LookaheadPrimitives || c.eofReached {
			return nil
		}
		if c.exec.QueuedTime() > c.cfg.HighWatermark {
			return nil
		}

		line, ok := c.source.Next()
		if !ok {
			c.eofReached = true
			if c.planner != nil {
				c.enqueuePlanned(c.planner.Finish())
			}
			return nil
		}

		pl, err := gcode.ParseLine(line.Text, line.Number)
		if err != nil {
			return c.fail(err, line.Number)
		}
		prims, err := c.interp.Interpret(pl)
		if err != nil {
			return c.fail(err, line.Number)
		}

		for _, p := range prims {
			if p.LengthMM == 0 {
				continue
			}
			if c.planner != nil {
				c.enqueuePlanned(c.planner.Push(p))
			} else {
				c.queue = append(c.queue, p)
			}
		}
		c.metrics.queueDepth.Set(float64(len(c.queue)))
	}
	return nil
}

func (c *Controller) enqueuePlanned(planned []planner.PlannedPrimitive) {
	for _, pp := range planned {
		c.queue = append(c.queue, pp.Primitive)
	}
}

// step executes up to maxSteps primitives while the state remains
// Running.
func (c *Controller) step(maxSteps int) error {
	for i := 0; i < maxSteps; i++ {
		if c.state != Running || len(c.queue) == 0 {
			return nil
		}

		p := c.queue[0]
		c.queue = append(c.queue[:0], c.queue[1:]...)
		c.metrics.queueDepth.Set(float64(len(c.queue)))

		if p.FeedrateMMS <= 0 {
			return c.fail(&gcode.UnresolvedFeedrateError{Line: p.Line}, p.Line)
		}
		if p.Kind != cnc.Rapid || c.cfg.CheckRapidSoftLimits {
			if err := c.limits.Check(p); err != nil {
				return c.fail(err, p.Line)
			}
		}
		if err := c.exec.Execute(p); err != nil {
			return c.fail(errors.Wrap(err, "execute"), p.Line)
		}

		c.completed += p.LengthMM
		c.lastFeed = p.FeedrateMMS
		c.metrics.executedPrimitives.Inc()
		c.metrics.completedMM.Add(p.LengthMM)

		if c.completed >= c.nextReport {
			c.reportProgress()
			for c.nextReport <= c.completed {
				c.nextReport += c.cfg.ProgressIncrementMM
			}
		}
	}
	return nil
}

// fail emits the error event, cancels the job, and returns the error.
func (c *Controller) fail(err error, line int) error {
	c.metrics.pipelineErrors.Inc()
	level.Error(c.logger).Log("msg", "pipeline error", "line", line, "err", err)
	c.sink.Error(cnc.ErrorEvent{Line: line, Err: err})
	if c.state != Cancelled && c.state != Done {
		c.setState(Cancelled)
	}
	return err
}

func (c *Controller) reportProgress() {
	ev := cnc.ProgressEvent{CompletedMM: c.completed}
	if c.totalKnown && c.total > 0 {
		ev.HasTotal = true
		ev.TotalMM = c.total
		ev.Percent = c.completed / c.total * 100
		if c.lastFeed > 0 {
			remaining := c.total - c.completed
			if remaining < 0 {
				remaining = 0
			}
			ev.HasETA = true
			ev.ETASeconds = remaining / c.lastFeed
		}
	}
	c.sink.Progress(ev)
}
