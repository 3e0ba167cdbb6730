package scan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// scriptedSensor returns distances in order, repeating the last one.
type scriptedSensor struct {
	distances []float64
	err       error
	calls     int
}

func (s *scriptedSensor) Measure() (float64, error) {
	i := s.calls
	if i >= len(s.distances) {
		i = len(s.distances) - 1
	}
	s.calls++
	return s.distances[i], s.err
}

type recordingActuator struct {
	commands []int
	failAt   int // 1-based command index that fails; 0 = never
}

func (a *recordingActuator) Move(steps int) error {
	if a.failAt > 0 && len(a.commands)+1 == a.failAt {
		return errors.New("coil driver fault")
	}
	a.commands = append(a.commands, steps)
	return nil
}

// recordingReporter renders every event as a line, in emission order.
type recordingReporter struct {
	lines []string
}

func (r *recordingReporter) Sample(angle, distance float64) {
	r.lines = append(r.lines, fmt.Sprintf("sample %.1f,%v", angle, distance))
}

func (r *recordingReporter) Paused(distance float64) {
	r.lines = append(r.lines, "paused")
}

func (r *recordingReporter) DirectionChanged(d Direction) {
	r.lines = append(r.lines, "direction "+d.String())
}

type countingObserver struct {
	states []State
}

func (o *countingObserver) Observe(s State, r Result) {
	o.states = append(o.states, s)
}

func newTestController(t *testing.T, distances ...float64) (*Controller, *recordingActuator, *recordingReporter) {
	t.Helper()
	act := &recordingActuator{}
	rep := &recordingReporter{}
	c, err := NewController(&scriptedSensor{distances: distances}, act, rep, Config{
		Params:     DefaultParams(),
		TickDelay:  50 * time.Millisecond,
		PauseDelay: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, act, rep
}

func TestNewController_RejectsBadInput(t *testing.T) {
	if _, err := NewController(&scriptedSensor{}, &recordingActuator{}, &recordingReporter{}, Config{}); err == nil {
		t.Error("expected error for zero params")
	}
	if _, err := NewController(nil, &recordingActuator{}, &recordingReporter{}, Config{Params: DefaultParams()}); err == nil {
		t.Error("expected error for nil sensor")
	}
}

func TestController_StepMoves(t *testing.T) {
	c, act, rep := newTestController(t, 20)
	res, err := c.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Command != 10 {
		t.Errorf("command = %d, want 10", res.Command)
	}
	if len(act.commands) != 1 || act.commands[0] != 10 {
		t.Errorf("actuator commands = %v, want [10]", act.commands)
	}
	s, ticks := c.Snapshot()
	if s.Position != 10 || ticks != 1 {
		t.Errorf("snapshot = %+v ticks=%d, want position 10 after 1 tick", s, ticks)
	}
	if len(rep.lines) != 1 || rep.lines[0] != "sample 0.0,20" {
		t.Errorf("report = %v", rep.lines)
	}
}

func TestController_StepPausedIssuesNoCommand(t *testing.T) {
	c, act, rep := newTestController(t, 5)
	c.state = State{Position: 500, Direction: Clockwise}

	res, err := c.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !res.Paused {
		t.Error("expected paused tick")
	}
	if len(act.commands) != 0 {
		t.Errorf("paused tick issued commands %v", act.commands)
	}
	if s, _ := c.Snapshot(); s.Position != 500 || s.Direction != Clockwise {
		t.Errorf("state = %+v, want {500 CW}", s)
	}
	want := []string{"sample 0.0,5", "paused"}
	if fmt.Sprint(rep.lines) != fmt.Sprint(want) {
		t.Errorf("report = %v, want %v", rep.lines, want)
	}
}

func TestController_DirectionNoticeOnlyOnFlip(t *testing.T) {
	c, _, rep := newTestController(t, 20)
	c.state = State{Position: 1010, Direction: Clockwise}

	for i := 0; i < 3; i++ {
		if _, err := c.Step(); err != nil {
			t.Fatal(err)
		}
	}
	// 1010 -> 1020 -> 1030 (flip) -> 1020
	want := []string{"sample 0.0,20", "sample 0.0,20", "direction CCW", "sample 0.0,20"}
	if fmt.Sprint(rep.lines) != fmt.Sprint(want) {
		t.Errorf("report = %v, want %v", rep.lines, want)
	}
	if s, _ := c.Snapshot(); s.Position != 1020 || s.Direction != CounterClockwise {
		t.Errorf("state = %+v, want {1020 CCW}", s)
	}
}

func TestController_ActuatorErrorKeepsPosition(t *testing.T) {
	c, act, _ := newTestController(t, 20)
	act.failAt = 2

	if _, err := c.Step(); err != nil {
		t.Fatalf("first Step: %v", err)
	}
	if _, err := c.Step(); err == nil {
		t.Fatal("expected actuator error")
	}
	if s, ticks := c.Snapshot(); s.Position != 10 || ticks != 1 {
		t.Errorf("snapshot = %+v ticks=%d, want position 10 after 1 tick", s, ticks)
	}
}

func TestController_SensorErrorUsesReading(t *testing.T) {
	act := &recordingActuator{}
	c, err := NewController(&scriptedSensor{distances: []float64{0}, err: errors.New("echo timeout")}, act, &recordingReporter{}, Config{
		Params: DefaultParams(),
		Strict: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Step()
	if err != nil {
		t.Fatalf("sensor errors must not stop the tick: %v", err)
	}
	if !res.Paused || len(act.commands) != 0 {
		t.Errorf("a 0cm timeout reading should pause, got %+v commands=%v", res, act.commands)
	}
}

func TestController_RunWaitsPerOutcome(t *testing.T) {
	c, _, _ := newTestController(t, 20, 5, 20)
	var waits []time.Duration
	c.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	obs := &countingObserver{}
	c.AddObserver(obs)

	if err := c.Run(context.Background(), 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 50 * time.Millisecond}
	if fmt.Sprint(waits) != fmt.Sprint(want) {
		t.Errorf("waits = %v, want %v", waits, want)
	}
	if len(obs.states) != 3 {
		t.Errorf("observer saw %d ticks, want 3", len(obs.states))
	}
	if s, ticks := c.Snapshot(); s.Position != 20 || ticks != 3 {
		t.Errorf("snapshot = %+v ticks=%d, want position 20 after 3 ticks", s, ticks)
	}
}

func TestController_RunFullSweep(t *testing.T) {
	c, act, rep := newTestController(t, 20)
	c.wait = func(context.Context, time.Duration) error { return nil }

	if err := c.Run(context.Background(), 103); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s, _ := c.Snapshot()
	if s.Position != 1030 || s.Direction != CounterClockwise {
		t.Errorf("state = %+v, want {1030 CCW}", s)
	}
	if len(act.commands) != 103 {
		t.Errorf("commands = %d, want 103", len(act.commands))
	}
	if last := rep.lines[len(rep.lines)-1]; last != "direction CCW" {
		t.Errorf("last report = %q, want direction CCW", last)
	}
}

func TestController_RunStopsOnCancel(t *testing.T) {
	c, _, _ := newTestController(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	c.wait = func(ctx context.Context, d time.Duration) error {
		ticks++
		if ticks == 5 {
			cancel()
		}
		return ctx.Err()
	}
	err := c.Run(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if _, n := c.Snapshot(); n != 5 {
		t.Errorf("ticks = %d, want 5", n)
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx on cancelled ctx = %v", err)
	}
	if err := sleepCtx(context.Background(), time.Microsecond); err != nil {
		t.Errorf("sleepCtx = %v", err)
	}
}
