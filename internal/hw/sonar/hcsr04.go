// Package sonar wraps the HC-SR04 ultrasonic ranger into a single blocking
// distance measurement.
package sonar

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/radarscan/internal/debug"
	"github.com/cjeanneret/radarscan/internal/hw/gpio"
)

// ErrEchoTimeout is returned by Measure when no complete echo pulse was seen
// within the configured timeout. The accompanying distance is 0.
var ErrEchoTimeout = errors.New("sonar: echo timeout")

// DefaultTimeout matches the 1s default wait of a classic pulseIn.
const DefaultTimeout = time.Second

// DurationToCm converts an echo round-trip time in microseconds to centimetres:
// 0.034 cm/µs (speed of sound), halved for the round trip.
func DurationToCm(us float64) float64 {
	return us * 0.034 / 2
}

// HCSR04 is an HC-SR04 wired to two GPIO pins.
type HCSR04 struct {
	gpio    gpio.Driver
	trig    int
	echo    int
	timeout time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// NewHCSR04 configures the trigger pin as output (held LOW) and the echo pin as input.
func NewHCSR04(g gpio.Driver, trigPin, echoPin int, timeout time.Duration) (*HCSR04, error) {
	if err := g.SetupPin(trigPin, gpio.Output); err != nil {
		return nil, fmt.Errorf("sonar: setup trig pin %d: %w", trigPin, err)
	}
	if err := g.SetupPin(echoPin, gpio.Input); err != nil {
		return nil, fmt.Errorf("sonar: setup echo pin %d: %w", echoPin, err)
	}
	if err := g.WritePin(trigPin, gpio.Low); err != nil {
		return nil, fmt.Errorf("sonar: idle trig pin %d: %w", trigPin, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HCSR04{
		gpio:    g,
		trig:    trigPin,
		echo:    echoPin,
		timeout: timeout,
		now:     time.Now,
		sleep:   time.Sleep,
	}, nil
}

// MeasureDistanceCm fires one ping and returns the distance in centimetres.
// A missing echo reads as 0.
func (s *HCSR04) MeasureDistanceCm() float64 {
	d, _ := s.Measure()
	return d
}

// Measure fires one ping and returns the distance in centimetres. When the
// echo does not arrive in time it returns 0 together with ErrEchoTimeout.
func (s *HCSR04) Measure() (float64, error) {
	if err := s.trigger(); err != nil {
		return 0, err
	}
	width, err := s.pulseWidth()
	if err != nil {
		debug.Trace("sonar: %v", err)
		return 0, err
	}
	cm := DurationToCm(float64(width) / float64(time.Microsecond))
	debug.Trace("sonar: echo %v -> %.2f cm", width, cm)
	return cm, nil
}

// trigger emits the 10µs ping request.
func (s *HCSR04) trigger() error {
	if err := s.gpio.WritePin(s.trig, gpio.Low); err != nil {
		return err
	}
	s.sleep(2 * time.Microsecond)
	if err := s.gpio.WritePin(s.trig, gpio.High); err != nil {
		return err
	}
	s.sleep(10 * time.Microsecond)
	return s.gpio.WritePin(s.trig, gpio.Low)
}

// pulseWidth waits for the echo line to go HIGH and returns how long it stays HIGH.
// The timeout covers the whole wait, as pulseIn does.
func (s *HCSR04) pulseWidth() (time.Duration, error) {
	deadline := s.now().Add(s.timeout)

	// a previous echo still in flight
	if err := s.waitWhile(gpio.High, deadline); err != nil {
		return 0, err
	}
	if err := s.waitWhile(gpio.Low, deadline); err != nil {
		return 0, err
	}
	start := s.now()
	if err := s.waitWhile(gpio.High, deadline); err != nil {
		return 0, err
	}
	return s.now().Sub(start), nil
}

func (s *HCSR04) waitWhile(level gpio.Level, deadline time.Time) error {
	for {
		got, err := s.gpio.ReadPin(s.echo)
		if err != nil {
			return fmt.Errorf("sonar: read echo pin %d: %w", s.echo, err)
		}
		if got != level {
			return nil
		}
		if s.now().After(deadline) {
			return ErrEchoTimeout
		}
	}
}
