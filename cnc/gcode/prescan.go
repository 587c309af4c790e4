package gcode

import (
	"github.com/go-kit/log"
)

// PrescanConfig carries the interpreter settings a dry-run pass shares
// with the runtime pass. Using identical values guarantees identical
// segmentation and therefore an identical total length.
type PrescanConfig struct {
	ArcTolerance     float64
	MaxSegmentTime   float64
	RapidFeedrateMMS float64
	Strict           bool
	Logger           log.Logger
}

// Prescan interprets the stream to exhaustion without executing
// anything and returns the summed length of all primitives the runtime
// pass would emit. It constructs its own ModalState so that nothing of
// the dry run can leak into the runtime interpretation. Errors surface
// exactly as they would at runtime.
func Prescan(s *Streamer, cfg PrescanConfig) (float64, error) {
	state := NewModalState(cfg.ArcTolerance, cfg.MaxSegmentTime)
	interp := NewInterpreter(state, Options{
		RapidFeedrateMMS: cfg.RapidFeedrateMMS,
		Strict:           cfg.Strict,
		Logger:           cfg.Logger,
	})

	total := 0.0
	for {
		line, ok := s.Next()
		if !ok {
			return total, nil
		}
		pl, err := ParseLine(line.Text, line.Number)
		if err != nil {
			return total, err
		}
		prims, err := interp.Interpret(pl)
		if err != nil {
			return total, err
		}
		for _, p := range prims {
			total += p.LengthMM
		}
	}
}
