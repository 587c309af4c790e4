package executor

import "github.com/klipper4cnc-coder/klipper4cnc/cnc"

// Recording is the reference backend: it performs no motion, recording
// each primitive instead. Tests use it to observe exactly what reached
// the backend; the CLI uses it for dry runs.
type Recording struct {
	Primitives []cnc.MotionPrimitive

	// LastFeedrate is the feedrate of the most recent primitive,
	// mm/s.
	LastFeedrate float64

	// FailAfter, when > 0, makes Execute fail once that many
	// primitives have been accepted.
	FailAfter int
	failErr   error

	queued float64
}

// NewRecording returns an empty recording backend.
func NewRecording() *Recording {
	return &Recording{}
}

// FailWith arms a synthetic failure after n successful executes.
func (r *Recording) FailWith(n int, err error) {
	r.FailAfter = n
	r.failErr = err
}

// SetQueuedTime sets the synthetic queued-motion time QueuedTime
// reports, letting tests exercise the controller's backpressure path.
func (r *Recording) SetQueuedTime(seconds float64) {
	r.queued = seconds
}

func (r *Recording) Execute(p cnc.MotionPrimitive) error {
	if r.FailAfter > 0 && len(r.Primitives) >= r.FailAfter {
		return &Error{Op: "execute", Err: r.failErr}
	}
	r.Primitives = append(r.Primitives, p)
	r.LastFeedrate = p.FeedrateMMS
	return nil
}

func (r *Recording) Flush() error {
	r.queued = 0
	return nil
}

func (r *Recording) QueuedTime() float64 {
	return r.queued
}

// TotalLength sums the recorded primitive lengths.
func (r *Recording) TotalLength() float64 {
	total := 0.0
	for _, p := range r.Primitives {
		total += p.LengthMM
	}
	return total
}
