package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/radarscan/internal/debug"
)

// Sensor produces one distance sample in centimetres per call, blocking for
// the echo round trip. A reading that failed still carries a distance
// (0 for a missing echo) which is used for the gate like any other.
type Sensor interface {
	Measure() (float64, error)
}

// Actuator moves the motor by a signed number of steps and blocks until done.
type Actuator interface {
	Move(steps int) error
}

// Reporter receives the readout stream.
type Reporter interface {
	Sample(angle, distance float64)
	Paused(distance float64)
	DirectionChanged(d Direction)
}

// Observer is notified after every tick with the committed state.
type Observer interface {
	Observe(s State, r Result)
}

// Config configures a Controller.
type Config struct {
	Params     Params
	TickDelay  time.Duration // wait after a tick that moved
	PauseDelay time.Duration // wait after a tick held by an obstacle
	Strict     bool          // log sensor errors instead of ignoring them
}

// Controller runs the tick loop against real or simulated hardware.
// It is the only writer of its State; Snapshot may be called from any goroutine.
type Controller struct {
	cfg       Config
	sensor    Sensor
	actuator  Actuator
	reporter  Reporter
	observers []Observer

	mu    sync.RWMutex
	state State
	ticks uint64

	wait func(ctx context.Context, d time.Duration) error
}

// NewController creates a controller starting from NewState.
func NewController(sensor Sensor, actuator Actuator, reporter Reporter, cfg Config) (*Controller, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if sensor == nil || actuator == nil || reporter == nil {
		return nil, fmt.Errorf("scan: sensor, actuator and reporter are required")
	}
	return &Controller{
		cfg:      cfg,
		sensor:   sensor,
		actuator: actuator,
		reporter: reporter,
		state:    NewState(),
		wait:     sleepCtx,
	}, nil
}

// AddObserver registers o for per-tick notifications. Call before Run.
func (c *Controller) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Params returns the sweep parameters.
func (c *Controller) Params() Params {
	return c.cfg.Params
}

// Snapshot returns a copy of the current state and the number of ticks run.
func (c *Controller) Snapshot() (State, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.ticks
}

// Step runs a single tick: measure, report, gate, move, reverse-check.
// The position is only committed once the actuator has completed the move.
func (c *Controller) Step() (Result, error) {
	distance, err := c.sensor.Measure()
	if err != nil && c.cfg.Strict {
		debug.Error(fmt.Errorf("sensor: %w (reading %.2f cm)", err, distance))
	}

	c.mu.RLock()
	cur := c.state
	c.mu.RUnlock()

	next, res := Tick(c.cfg.Params, cur, distance)
	c.reporter.Sample(res.Angle, res.Distance)

	if res.Paused {
		debug.Pause(distance, c.cfg.Params.ObstacleThresholdCm)
		c.reporter.Paused(distance)
		c.commit(cur, res)
		return res, nil
	}

	if err := c.actuator.Move(res.Command); err != nil {
		return res, fmt.Errorf("move %d steps: %w", res.Command, err)
	}
	debug.Move(commandLabel(res.Command), abs(res.Command), next.Position, c.cfg.Params.Degrees(next.Position))

	if res.Reversed {
		debug.Reverse(next.Position, next.Direction.String())
		c.reporter.DirectionChanged(next.Direction)
	}
	c.commit(next, res)
	return res, nil
}

func (c *Controller) commit(s State, r Result) {
	c.mu.Lock()
	c.state = s
	c.ticks++
	c.mu.Unlock()
	for _, o := range c.observers {
		o.Observe(s, r)
	}
}

// Run ticks until ctx is cancelled, an actuator error occurs, or maxTicks
// ticks have run (maxTicks <= 0 means no limit).
func (c *Controller) Run(ctx context.Context, maxTicks int) error {
	debug.Info("Scan started: max=%d steps, step=%d, obstacle<%.1fcm, angle=%s",
		c.cfg.Params.MaxSteps, c.cfg.Params.StepSize, c.cfg.Params.ObstacleThresholdCm, c.cfg.Params.AngleMode)

	for n := 0; maxTicks <= 0 || n < maxTicks; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := c.Step()
		if err != nil {
			return err
		}
		delay := c.cfg.TickDelay
		if res.Paused {
			delay = c.cfg.PauseDelay
		}
		if err := c.wait(ctx, delay); err != nil {
			return err
		}
	}

	s, ticks := c.Snapshot()
	debug.Info("Scan stopped after %d ticks at %d steps (%s)", ticks, s.Position, s.Direction)
	return nil
}

// commandLabel names the direction a command turned the shaft, which on a
// reversing tick differs from the new sweep direction.
func commandLabel(command int) string {
	if command < 0 {
		return CounterClockwise.String()
	}
	return Clockwise.String()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
