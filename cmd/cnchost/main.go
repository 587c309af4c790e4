// Command cnchost streams a G-code file through the CNC pipeline:
// prescan for total length, then reactor-driven execution with
// interactive hold/resume/cancel control.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/klipper4cnc-coder/klipper4cnc/cnc"
	"github.com/klipper4cnc-coder/klipper4cnc/cnc/controller"
	"github.com/klipper4cnc-coder/klipper4cnc/cnc/executor"
	"github.com/klipper4cnc-coder/klipper4cnc/cnc/gcode"
	"github.com/klipper4cnc-coder/klipper4cnc/cnc/planner"
	"github.com/klipper4cnc-coder/klipper4cnc/config"
	"github.com/klipper4cnc-coder/klipper4cnc/host/reactor"
	"github.com/klipper4cnc-coder/klipper4cnc/host/serial"
	"github.com/klipper4cnc-coder/klipper4cnc/protocol"
)

var (
	configPath = flag.String("config", "", "Machine configuration file (YAML); defaults apply when empty")
	filePath   = flag.String("file", "", "G-code file to execute")
	backend    = flag.String("backend", "none", "Motion backend: none (dry run) or serial")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")

	pumpTick   = 20 * time.Millisecond
	pumpBudget = controller.Budget{MaxLines: 16, MaxSteps: 8}
)

func main() {
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if *verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if err := run(logger); err != nil {
		level.Error(logger).Log("msg", "job failed", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger) error {
	if *filePath == "" {
		return fmt.Errorf("-file is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Dry-run pass over the file to populate total length for
	// progress and ETA.
	total, err := prescan(cfg, logger)
	if err != nil {
		return err
	}
	level.Info(logger).Log("msg", "prescan complete", "total_mm", fmt.Sprintf("%.3f", total))

	exec, cleanup, err := buildExecutor(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	source, err := gcode.OpenFile(*filePath)
	if err != nil {
		return err
	}
	defer source.Close()

	state := gcode.NewModalState(cfg.ArcTolerance, cfg.MaxSegmentTime)
	interp := gcode.NewInterpreter(state, gcode.Options{
		RapidFeedrateMMS: cfg.RapidFeedrate,
		Strict:           cfg.Strict,
		Logger:           logger,
	})

	var lookahead *planner.Planner
	if cfg.Planner.Enabled {
		lookahead = planner.New(planner.Config{
			MaxVelocity:       cfg.Planner.MaxVelocity,
			MaxAccel:          cfg.Planner.MaxAccel,
			JunctionDeviation: cfg.Planner.JunctionDeviation,
			BufferTime:        cfg.Planner.BufferTime,
			KeepTailMoves:     cfg.Planner.KeepTailMoves,
			MaxWindowMoves:    cfg.Planner.MaxWindowMoves,
		})
	}

	ctrl := controller.New(controller.Params{
		Source:      source,
		Interpreter: interp,
		Executor:    exec,
		Limits:      softLimits(cfg),
		Planner:     lookahead,
		Sink:        cnc.LogSink{Logger: logger},
		Logger:      logger,
		Config: controller.Config{
			LookaheadPrimitives:  cfg.LookaheadPrimitives,
			HighWatermark:        cfg.HighWatermark,
			ProgressIncrementMM:  cfg.ProgressIncrement,
			CheckRapidSoftLimits: *cfg.CheckRapidSoftLimits,
		},
	})
	ctrl.SetTotalLength(total)

	if err := ctrl.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands := readCommands()
	var pumpErr error

	r := reactor.New()
	r.Register(pumpTick, func(time.Time) time.Duration {
		drainCommands(commands, ctrl, total, logger)

		if err := ctrl.Pump(pumpBudget); err != nil {
			pumpErr = err
			return 0
		}
		switch ctrl.State() {
		case controller.Done, controller.Cancelled:
			return 0
		}
		return pumpTick
	})

	if err := r.Run(ctx); err != nil {
		ctrl.Cancel()
		return err
	}
	if pumpErr != nil {
		return pumpErr
	}
	if ctrl.State() == controller.Cancelled {
		return fmt.Errorf("job cancelled")
	}

	return exec.Flush()
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	return config.LoadFile(*configPath)
}

func prescan(cfg *config.Config, logger log.Logger) (float64, error) {
	s, err := gcode.OpenFile(*filePath)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	return gcode.Prescan(s, gcode.PrescanConfig{
		ArcTolerance:     cfg.ArcTolerance,
		MaxSegmentTime:   cfg.MaxSegmentTime,
		RapidFeedrateMMS: cfg.RapidFeedrate,
		Strict:           cfg.Strict,
		Logger:           logger,
	})
}

func buildExecutor(cfg *config.Config, logger log.Logger) (executor.Executor, func(), error) {
	switch *backend {
	case "none":
		return executor.NewRecording(), func() {}, nil

	case "serial":
		dev := cfg.Serial.Device
		if *device != "" {
			dev = *device
		}
		scfg := serial.DefaultConfig(dev)
		scfg.Baud = cfg.Serial.Baud

		port, err := serial.Open(scfg)
		if err != nil {
			return nil, nil, err
		}
		transport := protocol.NewTransport(port, logger)
		exec := executor.NewSerial(transport, executor.SerialOptions{
			StepsPerMM: [3]float64{
				cfg.Axes["x"].StepsPerMM,
				cfg.Axes["y"].StepsPerMM,
				cfg.Axes["z"].StepsPerMM,
			},
			MoveCommandID: cfg.Serial.MoveCommandID,
			Logger:        logger,
		})
		return exec, func() { exec.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", *backend)
	}
}

func softLimits(cfg *config.Config) *controller.SoftLimits {
	bounds := make(map[byte]controller.Range)
	for name, axis := range cfg.Axes {
		if len(name) != 1 {
			continue
		}
		letter := strings.ToUpper(name)[0]
		bounds[letter] = controller.Range{Min: axis.Min, Max: axis.Max}
	}
	return controller.NewSoftLimits(bounds)
}

// readCommands forwards stdin lines to a channel the reactor drains
// between pumps, keeping all controller access on one goroutine.
func readCommands() <-chan string {
	ch := make(chan string, 4)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				ch <- line
			}
		}
	}()
	return ch
}

func drainCommands(ch <-chan string, ctrl *controller.Controller, total float64, logger log.Logger) {
	for {
		select {
		case cmd, ok := <-ch:
			if !ok {
				return
			}
			handleCommand(cmd, ctrl, total, logger)
		default:
			return
		}
	}
}

func handleCommand(cmd string, ctrl *controller.Controller, total float64, logger log.Logger) {
	var err error
	switch cmd {
	case "hold":
		err = ctrl.FeedHold()
	case "resume":
		err = ctrl.Resume()
	case "cancel", "quit":
		err = ctrl.Cancel()
	case "status":
		level.Info(logger).Log(
			"msg", "status",
			"state", ctrl.State(),
			"completed_mm", fmt.Sprintf("%.3f", ctrl.CompletedLength()),
			"total_mm", fmt.Sprintf("%.3f", total),
		)
	case "help", "?":
		level.Info(logger).Log("msg", "commands: hold resume cancel status quit")
	default:
		level.Warn(logger).Log("msg", "unknown command", "cmd", cmd)
	}
	if err != nil {
		level.Warn(logger).Log("msg", "command rejected", "cmd", cmd, "err", err)
	}
}
