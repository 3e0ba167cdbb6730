package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cjeanneret/radarscan/internal/config"
	"github.com/cjeanneret/radarscan/internal/debug"
	"github.com/cjeanneret/radarscan/internal/hw/gpio"
	"github.com/cjeanneret/radarscan/internal/hw/sonar"
	"github.com/cjeanneret/radarscan/internal/hw/stepper"
	"github.com/cjeanneret/radarscan/internal/logic/motion"
	"github.com/cjeanneret/radarscan/internal/logic/scan"
	"github.com/cjeanneret/radarscan/internal/metrics"
	"github.com/cjeanneret/radarscan/internal/radar"
	"github.com/cjeanneret/radarscan/internal/telemetry"
	"github.com/cjeanneret/radarscan/internal/web"
)

// simulatedEchoDelay mimics the round trip of a real ping at ~1m.
const simulatedEchoDelay = 6 * time.Millisecond

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	observe := flag.String("observe", "", "read a readout stream from this serial device (\"-\" for stdin) instead of scanning")
	ticks := flag.Int("ticks", 0, "stop after N ticks (0 = run until interrupted)")
	thresholdCm := flag.Float64("threshold_cm", 0, "override obstacle threshold in cm")
	angleMode := flag.String("angle_mode", "", "override angle mode (literal or position)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Zero values mean "use config default"
	if err := validateCLIOverrides(*ticks, *thresholdCm, *angleMode); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides{ThresholdCm: *thresholdCm, AngleMode: *angleMode})

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if err := run(ctx, cfg, webPort.port(), *observe, *ticks); err != nil {
		log.Fatalf("radarscan: %v", err)
	}
}

// run wires the readout source (local scanner or remote stream) to the
// radar observer and, if enabled, the web server. It returns once the
// source is exhausted and the web server (if any) has stopped.
func run(ctx context.Context, cfg *config.Config, port int, observePath string, ticks int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	history := radar.NewHistory(cfg.Observer.HistorySize)
	observer := radar.NewObserver(cfg.Observer.WarningCm, history, nil)

	var broadcaster *web.StatusBroadcaster
	if port > 0 {
		broadcaster = web.NewStatusBroadcaster()
		observer.Sink = broadcaster
		debug.SetOutput(io.MultiWriter(os.Stderr, web.BroadcastWriter(broadcaster)))
	}

	info := web.ScanInfo{
		Mode:                "scan",
		StepsPerRev:         cfg.Motor.StepsPerRev,
		StepSize:            cfg.Scan.StepSize,
		MaxSteps:            cfg.Scan.MaxSteps,
		MaxAngleDeg:         float64(cfg.Scan.MaxSteps) * 360 / float64(cfg.Motor.StepsPerRev),
		ObstacleThresholdCm: cfg.Scan.ObstacleThresholdCm,
		WarningCm:           cfg.Observer.WarningCm,
		AngleMode:           cfg.Scan.AngleMode,
	}

	var (
		loop     func(ctx context.Context) error
		handlers *web.Handlers
		gatherer prometheus.Gatherer
	)

	if observePath != "" {
		info.Mode = "observe"
		src, err := openStream(observePath, cfg.Telemetry)
		if err != nil {
			return err
		}
		defer src.Close()
		debug.Info("Observing readout stream from %s", observePath)
		loop = func(ctx context.Context) error {
			// Closing the source unblocks a pending read on ports and pipes,
			// but not on every terminal, so the reader is not waited for
			// once ctx is done.
			done := make(chan error, 1)
			go func() { done <- observer.Consume(ctx, src) }()
			select {
			case err := <-done:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			case <-ctx.Done():
				src.Close()
				return ctx.Err()
			}
		}
		if broadcaster != nil {
			handlers = web.NewHandlers(broadcaster, history, info, web.StaticFS())
		}
	} else {
		sc, err := newScanner(cfg, observer)
		if err != nil {
			return err
		}
		defer sc.Close()
		loop = func(ctx context.Context) error {
			return sc.ctrl.Run(ctx, ticks)
		}
		gatherer = sc.collector.Gatherer()
		if broadcaster != nil {
			handlers = web.NewHandlers(broadcaster, history, info, web.StaticFS()).
				WithState(sc.ctrl.Params(), sc.ctrl.Snapshot)
		}
	}

	webErr := make(chan error, 1)
	if handlers != nil {
		srv := web.NewServer(fmt.Sprintf(":%d", port), handlers, gatherer)
		go func() { webErr <- srv.Run(ctx) }()
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- loop(ctx) }()

	select {
	case err := <-webErr:
		cancel()
		<-loopErr
		return err
	case err := <-loopErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			cancel()
			if handlers != nil {
				<-webErr
			}
			return err
		}
		if handlers == nil {
			return nil
		}
		if ctx.Err() == nil {
			debug.Info("Readout finished; web server keeps running until interrupted")
		}
		return <-webErr
	}
}

// scanner bundles the local scanning hardware and its controllers.
type scanner struct {
	ctrl      *scan.Controller
	motion    *motion.Controller
	collector *metrics.Collector
	gpio      gpio.Driver
	out       io.Closer // serial port, nil for stdout
}

// newScanner initialises the GPIO, motor, sensor and telemetry output and
// builds the scan controller. Telemetry events also feed observer.
func newScanner(cfg *config.Config, observer *radar.Observer) (*scanner, error) {
	sc := &scanner{}

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	g, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, fmt.Errorf("init GPIO failed: %w", err)
	}
	sc.gpio = g

	debug.Step(2, "Initializing stepper motor")
	motor, err := stepper.NewStepper(g, stepper.Config{
		Pins:        cfg.CoilPins(),
		StepsPerRev: cfg.Motor.StepsPerRev,
		RPM:         cfg.Motor.RPM,
	})
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("init stepper failed: %w", err)
	}
	debug.PrintStruct("Motor config", cfg.Motor)
	sc.motion = motion.NewController(motor)

	debug.Step(3, "Initializing distance sensor")
	sensor, err := newSensor(g, cfg)
	if err != nil {
		sc.Close()
		return nil, err
	}

	debug.Step(4, "Opening telemetry output")
	var out io.Writer = os.Stdout
	if cfg.Telemetry.Output == config.OutputSerial {
		port, err := telemetry.OpenSerial(cfg.Telemetry.SerialPort, portOptions(cfg.Telemetry))
		if err != nil {
			sc.Close()
			return nil, err
		}
		out = port
		sc.out = port
	}
	debug.Value("Telemetry output", cfg.Telemetry.Output)
	emitter := telemetry.NewEmitter(out, cfg.Scan.ObstacleThresholdCm)
	emitter.Subscribe(observer.Handle)

	debug.Step(5, "Creating scan controller")
	mode, err := scan.ParseAngleMode(cfg.Scan.AngleMode)
	if err != nil {
		sc.Close()
		return nil, err
	}
	params := scan.Params{
		StepsPerRev:         cfg.Motor.StepsPerRev,
		StepSize:            cfg.Scan.StepSize,
		MaxSteps:            cfg.Scan.MaxSteps,
		ObstacleThresholdCm: cfg.Scan.ObstacleThresholdCm,
		AngleMode:           mode,
	}
	debug.PrintStruct("Scan params", params)
	ctrl, err := scan.NewController(sensor, sc.motion, emitter, scan.Config{
		Params:     params,
		TickDelay:  cfg.TickDelay(),
		PauseDelay: cfg.PauseDelay(),
		Strict:     cfg.Sensor.Strict,
	})
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("create scan controller: %w", err)
	}
	sc.ctrl = ctrl

	collector, err := metrics.NewCollector(prometheus.NewRegistry(), emitter.WriteErrors)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	sc.collector = collector
	ctrl.AddObserver(collector)

	debug.Section("Starting sweep")
	return sc, nil
}

// newSensor returns the HC-SR04 driver, or a simulated room when running
// without hardware.
func newSensor(g gpio.Driver, cfg *config.Config) (scan.Sensor, error) {
	if cfg.Defaults.SimulateSensor || cfg.Defaults.MockGPIO {
		ticksPerSweep := 2 * (cfg.Scan.MaxSteps/cfg.Scan.StepSize + 1)
		debug.Info("Using simulated distance sensor (%d readings per sweep)", ticksPerSweep)
		return sonar.NewSimulated(simulatedEchoDelay,
			sonar.Room(ticksPerSweep, 40, cfg.Scan.ObstacleThresholdCm/2)...), nil
	}
	s, err := sonar.NewHCSR04(g, cfg.Sensor.TrigPin, cfg.Sensor.EchoPin, cfg.SensorTimeout())
	if err != nil {
		return nil, fmt.Errorf("init sensor failed: %w", err)
	}
	debug.PrintStruct("Sensor config", cfg.Sensor)
	return s, nil
}

// Close releases the coils and closes the telemetry output and GPIO.
func (s *scanner) Close() {
	if s.motion != nil {
		if err := s.motion.Close(); err != nil {
			log.Printf("releasing motor failed: %v", err)
		}
		debug.Value("Odometer (steps)", s.motion.Odometer())
	}
	if s.out != nil {
		if err := s.out.Close(); err != nil {
			log.Printf("closing telemetry output failed: %v", err)
		}
	}
	if s.gpio != nil {
		if err := s.gpio.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}
}

// openStream opens the readout source for observe mode.
func openStream(path string, tc config.TelemetryConfig) (io.ReadCloser, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	port, err := telemetry.OpenSerial(path, portOptions(tc))
	if err != nil {
		return nil, err
	}
	return port, nil
}

func portOptions(tc config.TelemetryConfig) telemetry.PortOptions {
	return telemetry.PortOptions{
		BaudRate: tc.BaudRate,
		DataBits: tc.DataBits,
		StopBits: tc.StopBits,
		Parity:   tc.Parity,
	}
}

// overrides holds start-up values taken from the command line.
type overrides struct {
	ThresholdCm float64
	AngleMode   string
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(ticks int, thresholdCm float64, angleMode string) error {
	if ticks < 0 {
		return fmt.Errorf("ticks must be >= 0, got %d", ticks)
	}
	if thresholdCm != 0 {
		if math.IsNaN(thresholdCm) || math.IsInf(thresholdCm, 0) || thresholdCm < 0 || thresholdCm > 400 {
			return fmt.Errorf("threshold_cm must be between 0 and 400, got %g", thresholdCm)
		}
	}
	switch angleMode {
	case "", config.AngleModeLiteral, config.AngleModePosition:
	default:
		return fmt.Errorf("angle_mode must be %q or %q, got %q", config.AngleModeLiteral, config.AngleModePosition, angleMode)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, o overrides) {
	if o.ThresholdCm > 0 {
		cfg.Scan.ObstacleThresholdCm = o.ThresholdCm
	}
	if o.AngleMode != "" {
		cfg.Scan.AngleMode = o.AngleMode
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
