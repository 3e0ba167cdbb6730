package stepper

import (
	"fmt"
	"time"

	"github.com/cjeanneret/radarscan/internal/debug"
	"github.com/cjeanneret/radarscan/internal/hw/gpio"
)

// Config holds the hardware configuration for a 4-wire stepper motor
// (28BYJ-48 behind a ULN2003 board).
type Config struct {
	Pins        [4]int // coil pins in drive order (IN1, IN3, IN2, IN4 for a 28BYJ-48)
	StepsPerRev int
	RPM         int
	StepDelay   time.Duration // explicit delay per step; 0 = derive from RPM
}

// fullStep is the 4-wire full-step sequence, one row per phase.
var fullStep = [4][4]gpio.Level{
	{gpio.High, gpio.Low, gpio.High, gpio.Low},
	{gpio.Low, gpio.High, gpio.High, gpio.Low},
	{gpio.Low, gpio.High, gpio.Low, gpio.High},
	{gpio.High, gpio.Low, gpio.Low, gpio.High},
}

// Stepper drives the coils of a unipolar stepper one phase at a time.
// Speed is fixed at construction; there is no acceleration ramp.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	delay time.Duration // delay between two steps
	phase int           // index into fullStep of the last energised phase
}

// NewStepper creates a new stepper motor controller.
// Per-step delay is 60s / StepsPerRev / RPM unless cfg.StepDelay is set;
// if neither gives a positive value it defaults to 2ms.
func NewStepper(g gpio.Driver, cfg Config) (*Stepper, error) {
	for i, pin := range cfg.Pins {
		if pin <= 0 {
			return nil, fmt.Errorf("stepper: coil pin %d not configured", i+1)
		}
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("stepper: setup pin %d: %w", pin, err)
		}
	}

	delay := cfg.StepDelay
	if delay <= 0 && cfg.StepsPerRev > 0 && cfg.RPM > 0 {
		delay = time.Minute / time.Duration(cfg.StepsPerRev) / time.Duration(cfg.RPM)
	}
	if delay <= 0 {
		delay = 2 * time.Millisecond
	}

	debug.Verbose("Stepper: pins=%v steps/rev=%d rpm=%d step delay=%v", cfg.Pins, cfg.StepsPerRev, cfg.RPM, delay)

	return &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
	}, nil
}

// StepDelay returns the time spent on each step.
func (s *Stepper) StepDelay() time.Duration {
	return s.delay
}

// MoveSteps moves the motor by a number of steps (positive = clockwise,
// negative = counter-clockwise). It blocks until every step is done.
func (s *Stepper) MoveSteps(steps int) error {
	if steps == 0 {
		return nil
	}

	dir := 1
	direction := "CW"
	if steps < 0 {
		dir = -1
		direction = "CCW"
		steps = -steps
	}

	debug.Printf("Stepper: moving %d steps (%s)", steps, direction)

	for i := 0; i < steps; i++ {
		s.phase = (s.phase + dir + len(fullStep)) % len(fullStep)
		if err := s.energise(fullStep[s.phase]); err != nil {
			return err
		}
		time.Sleep(s.delay)
	}
	return nil
}

// Release de-energises every coil. The shaft loses holding torque.
func (s *Stepper) Release() error {
	return s.energise([4]gpio.Level{})
}

func (s *Stepper) energise(levels [4]gpio.Level) error {
	for i, pin := range s.cfg.Pins {
		if err := s.gpio.WritePin(pin, levels[i]); err != nil {
			return fmt.Errorf("stepper: write pin %d: %w", pin, err)
		}
	}
	return nil
}
