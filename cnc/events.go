package cnc

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ProgressEvent reports execution progress by completed motion length.
// TotalMM and Percent are only meaningful when HasTotal is set (a
// prescan ran); ETASeconds only when HasETA is set (total and a last
// feedrate are both known).
type ProgressEvent struct {
	CompletedMM float64
	TotalMM     float64
	HasTotal    bool
	Percent     float64
	ETASeconds  float64
	HasETA      bool
}

// StateChangeEvent reports a controller state transition.
type StateChangeEvent struct {
	From string
	To   string
}

// ErrorEvent reports a fail-fast pipeline error. Line is 0 when the
// originating source line is unknown.
type ErrorEvent struct {
	Line int
	Err  error
}

// CompletionEvent reports the end of a job.
type CompletionEvent struct {
	TotalExecutedMM float64
}

// EventSink receives controller events. Implementations must not block:
// events are delivered synchronously from the pump.
type EventSink interface {
	Progress(ProgressEvent)
	StateChange(StateChangeEvent)
	Error(ErrorEvent)
	Completion(CompletionEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Progress(ProgressEvent)       {}
func (NopSink) StateChange(StateChangeEvent) {}
func (NopSink) Error(ErrorEvent)             {}
func (NopSink) Completion(CompletionEvent)   {}

// LogSink writes events to a go-kit logger.
type LogSink struct {
	Logger log.Logger
}

func (s LogSink) Progress(ev ProgressEvent) {
	kv := []interface{}{"msg", "progress", "completed_mm", fmt.Sprintf("%.3f", ev.CompletedMM)}
	if ev.HasTotal {
		kv = append(kv, "percent", fmt.Sprintf("%.1f", ev.Percent))
	}
	if ev.HasETA {
		kv = append(kv, "eta", FormatETA(ev.ETASeconds))
	}
	level.Info(s.Logger).Log(kv...)
}

func (s LogSink) StateChange(ev StateChangeEvent) {
	level.Info(s.Logger).Log("msg", "state change", "from", ev.From, "to", ev.To)
}

func (s LogSink) Error(ev ErrorEvent) {
	level.Error(s.Logger).Log("msg", "pipeline error", "line", ev.Line, "err", ev.Err)
}

func (s LogSink) Completion(ev CompletionEvent) {
	level.Info(s.Logger).Log("msg", "job complete", "executed_mm", fmt.Sprintf("%.3f", ev.TotalExecutedMM))
}

// FormatETA renders a duration in seconds as a short human string:
// 45 -> "45s", 125 -> "2m 5s", 3723 -> "1h 2m 3s".
func FormatETA(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	h := s / 3600
	m := (s % 3600) / 60
	s = s % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
