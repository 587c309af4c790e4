// Package executor defines the motion backend abstraction the
// controller drives, plus two implementations: a recording backend for
// tests and dry runs, and a serial backend speaking the Klipper wire
// protocol.
package executor

import "github.com/klipper4cnc-coder/klipper4cnc/cnc"

// Executor consumes fully-resolved motion primitives.
//
// Execute enqueues one primitive into the backend motion queue and
// must not block indefinitely; unrecoverable backend failures are
// reported fail-fast as *Error and the primitive counts as not
// executed. Flush blocks until all enqueued motion has completed and
// is meant for offline use; reactor-driven callers poll QueuedTime
// toward zero instead. QueuedTime reports the wall-clock seconds of
// motion still queued behind Execute, which the controller uses for
// backpressure.
type Executor interface {
	Execute(p cnc.MotionPrimitive) error
	Flush() error
	QueuedTime() float64
}

// Error wraps an unrecoverable backend failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "executor: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
