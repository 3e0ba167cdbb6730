// Package scan holds the sweep state machine: position tracking, direction
// reversal at the travel limits and the obstacle gate that holds the motor.
package scan

import (
	"fmt"
)

// Direction is the current sweep direction.
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "CW"
	case CounterClockwise:
		return "CCW"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// MarshalText renders the direction as "CW" or "CCW".
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// AngleMode selects how the reported angle is derived from the position.
type AngleMode int

const (
	// AngleLiteral always reports 0, matching the deployed firmware, whose
	// angle expression multiplies the position by 0.0.
	AngleLiteral AngleMode = iota
	// AnglePosition reports position * 360 / StepsPerRev.
	AnglePosition
)

// ParseAngleMode maps the configuration spelling to an AngleMode.
func ParseAngleMode(s string) (AngleMode, error) {
	switch s {
	case "", "literal":
		return AngleLiteral, nil
	case "position":
		return AnglePosition, nil
	default:
		return AngleLiteral, fmt.Errorf("unknown angle mode %q", s)
	}
}

func (m AngleMode) String() string {
	if m == AnglePosition {
		return "position"
	}
	return "literal"
}

// State is the only mutable state of the scanner.
type State struct {
	Position  int       `json:"position"` // signed steps from the start position
	Direction Direction `json:"direction"`
}

// NewState returns the power-on state: position 0, sweeping clockwise.
func NewState() State {
	return State{Position: 0, Direction: Clockwise}
}

// Params are the fixed sweep parameters.
type Params struct {
	StepsPerRev         int
	StepSize            int
	MaxSteps            int
	ObstacleThresholdCm float64
	AngleMode           AngleMode
}

// DefaultParams matches a 28BYJ-48 sweeping half a turn in 10-step increments.
func DefaultParams() Params {
	return Params{
		StepsPerRev:         2048,
		StepSize:            10,
		MaxSteps:            1024,
		ObstacleThresholdCm: 17.0,
		AngleMode:           AngleLiteral,
	}
}

// Validate reports parameters the tick cannot work with.
func (p Params) Validate() error {
	if p.StepsPerRev <= 0 {
		return fmt.Errorf("steps per revolution must be > 0, got %d", p.StepsPerRev)
	}
	if p.StepSize <= 0 {
		return fmt.Errorf("step size must be > 0, got %d", p.StepSize)
	}
	if p.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be > 0, got %d", p.MaxSteps)
	}
	return nil
}

// Degrees converts a position to degrees of shaft rotation.
func (p Params) Degrees(position int) float64 {
	return float64(position) * 360.0 / float64(p.StepsPerRev)
}

// Angle returns the angle reported in telemetry for position.
func (p Params) Angle(position int) float64 {
	if p.AngleMode == AnglePosition {
		return p.Degrees(position)
	}
	return 0
}
