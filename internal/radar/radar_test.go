package radar

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/radarscan/internal/telemetry"
)

type recordingSink struct {
	points   []Point
	notices  []string
	warnings []Point
}

func (s *recordingSink) Point(p Point)      { s.points = append(s.points, p) }
func (s *recordingSink) Notice(line string) { s.notices = append(s.notices, line) }
func (s *recordingSink) Warning(p Point)    { s.warnings = append(s.warnings, p) }

func TestHistory_OrderAndEviction(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Add(Point{Distance: float64(i)})
	}
	pts := h.Points()
	if len(pts) != 3 {
		t.Fatalf("len = %d, want 3", len(pts))
	}
	for i, want := range []float64{3, 4, 5} {
		if pts[i].Distance != want {
			t.Errorf("point %d = %v, want %v", i, pts[i].Distance, want)
		}
	}
}

func TestHistory_Partial(t *testing.T) {
	h := NewHistory(10)
	h.Add(Point{Distance: 1})
	h.Add(Point{Distance: 2})
	if got := h.Points(); len(got) != 2 || got[1].Distance != 2 {
		t.Errorf("points = %+v", got)
	}
}

func TestHistory_MinimumSize(t *testing.T) {
	h := NewHistory(0)
	h.Add(Point{Distance: 1})
	h.Add(Point{Distance: 2})
	if pts := h.Points(); len(pts) != 1 || pts[0].Distance != 2 {
		t.Errorf("points = %+v, want only the latest", pts)
	}
}

func TestObserver_ConsumeStream(t *testing.T) {
	stream := strings.Join([]string{
		"0.0,20",
		"0.0,8.5",
		"Object detected < 17cm. Paused.",
		"0.0,7",
		"0.0,30",
		"",
		"0.0,9\r",
		"Direction changed to CCW",
	}, "\n")

	sink := &recordingSink{}
	h := NewHistory(100)
	o := NewObserver(10, h, sink)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return fixed }

	if err := o.Consume(context.Background(), strings.NewReader(stream)); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(h.Points()) != 5 || len(sink.points) != 5 {
		t.Errorf("points = %d/%d, want 5", len(h.Points()), len(sink.points))
	}
	if len(sink.notices) != 2 {
		t.Errorf("notices = %v, want 2", sink.notices)
	}
	// 8.5 raises, 7 keeps it up, 30 re-arms, 9 raises again.
	if len(sink.warnings) != 2 {
		t.Fatalf("warnings = %d, want 2", len(sink.warnings))
	}
	if sink.warnings[0].Distance != 8.5 || sink.warnings[1].Distance != 9 {
		t.Errorf("warnings = %+v", sink.warnings)
	}
	if !h.Points()[1].Warning || h.Points()[3].Warning {
		t.Error("warning flags on points are wrong")
	}
	if !h.Points()[0].Time.Equal(fixed) {
		t.Errorf("time = %v, want %v", h.Points()[0].Time, fixed)
	}
}

func TestObserver_ConsumeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := NewObserver(10, NewHistory(10), nil)
	if err := o.Consume(ctx, strings.NewReader("0.0,20\n")); err == nil {
		t.Error("expected context error")
	}
}

func TestObserver_HandleEvents(t *testing.T) {
	sink := &recordingSink{}
	o := NewObserver(10, NewHistory(10), sink)

	o.Handle(telemetry.Event{Kind: telemetry.KindSample, Line: "0.0,5", Sample: telemetry.Sample{Distance: 5}})
	o.Handle(telemetry.Event{Kind: telemetry.KindPause, Line: "Object detected < 17cm. Paused."})

	if len(sink.points) != 1 || len(sink.warnings) != 1 {
		t.Errorf("points=%d warnings=%d, want 1/1", len(sink.points), len(sink.warnings))
	}
	if len(sink.notices) != 1 || sink.notices[0] != "Object detected < 17cm. Paused." {
		t.Errorf("notices = %v", sink.notices)
	}
}

func TestObserver_ConsumeSkipsOversizedLine(t *testing.T) {
	h := NewHistory(10)
	o := NewObserver(10, h, nil)
	noise := strings.Repeat("x", 70*1024)

	err := o.Consume(context.Background(), strings.NewReader(noise+"\n0.0,20\n"+noise))
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	pts := h.Points()
	if len(pts) != 1 || pts[0].Distance != 20 {
		t.Errorf("points = %+v, want the single sample after the noise", pts)
	}
}

func TestObserver_ConsumeLastLineWithoutNewline(t *testing.T) {
	h := NewHistory(10)
	o := NewObserver(10, h, nil)

	if err := o.Consume(context.Background(), strings.NewReader("0.0,20\r\n0.0,30")); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	pts := h.Points()
	if len(pts) != 2 || pts[0].Distance != 20 || pts[1].Distance != 30 {
		t.Errorf("points = %+v, want distances 20 then 30", pts)
	}
}
