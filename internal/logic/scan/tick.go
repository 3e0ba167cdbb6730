package scan

// Result describes what one tick decided.
type Result struct {
	Angle    float64 // reported angle, taken before any move
	Distance float64 // the sample the decision was based on
	Paused   bool    // distance was below the obstacle threshold
	Command  int     // signed steps to move; 0 when paused
	Reversed bool    // direction flipped on this tick
}

// Tick applies one control decision to s for the given distance sample.
//
// Below the obstacle threshold nothing changes and no command is issued.
// Otherwise the position moves by one step size in the current direction,
// then the limits are checked with >= and <=, so an overshoot of less than
// one step size is kept as is.
func Tick(p Params, s State, distance float64) (State, Result) {
	res := Result{
		Angle:    p.Angle(s.Position),
		Distance: distance,
	}

	if distance < p.ObstacleThresholdCm {
		res.Paused = true
		return s, res
	}

	res.Command = p.StepSize
	if s.Direction == CounterClockwise {
		res.Command = -p.StepSize
	}
	next := State{Position: s.Position + res.Command, Direction: s.Direction}
	next.Direction = reverse(p, next)
	res.Reversed = next.Direction != s.Direction
	return next, res
}

// reverse returns the direction s should sweep in after reaching its position.
func reverse(p Params, s State) Direction {
	switch {
	case s.Position >= p.MaxSteps:
		return CounterClockwise
	case s.Position <= 0:
		return Clockwise
	default:
		return s.Direction
	}
}
