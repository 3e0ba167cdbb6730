package radar

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cjeanneret/radarscan/internal/debug"
	"github.com/cjeanneret/radarscan/internal/telemetry"
)

// Sink receives what the observer sees.
type Sink interface {
	Point(p Point)
	Notice(line string)
	Warning(p Point) // rising edge of the proximity warning
}

// Observer turns the readout stream into points. A warning is raised once
// when the distance drops below WarningCm and re-armed when it rises again.
type Observer struct {
	WarningCm float64
	History   *History
	Sink      Sink // optional

	warning bool
	now     func() time.Time
}

// NewObserver creates an observer storing into h.
func NewObserver(warningCm float64, h *History, sink Sink) *Observer {
	return &Observer{
		WarningCm: warningCm,
		History:   h,
		Sink:      sink,
		now:       time.Now,
	}
}

// Handle processes one telemetry event from a local Emitter.
func (o *Observer) Handle(ev telemetry.Event) {
	if ev.Kind == telemetry.KindSample {
		o.sample(ev.Sample)
		return
	}
	if o.Sink != nil {
		o.Sink.Notice(ev.Line)
	}
}

// HandleLine processes one raw line. Lines that are not samples are
// passed on as notices; blank lines are ignored.
func (o *Observer) HandleLine(line string) {
	if s, ok := telemetry.ParseLine(line); ok {
		o.sample(s)
		return
	}
	if line == "" {
		return
	}
	if o.Sink != nil {
		o.Sink.Notice(line)
	}
}

// MaxLineBytes bounds one stream line. Longer lines (UART noise without a
// newline) are dropped and reading carries on.
const MaxLineBytes = 4096

// Consume reads lines from r until EOF, a read error or ctx is done.
// Cancelling ctx does not interrupt a blocked Read; close r for that.
func (o *Observer) Consume(ctx context.Context, r io.Reader) error {
	br := bufio.NewReaderSize(r, MaxLineBytes)
	for {
		line, err := br.ReadSlice('\n')
		oversized := false
		for err == bufio.ErrBufferFull {
			oversized = true
			_, err = br.ReadSlice('\n')
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if oversized {
			debug.Verbose("radar: dropped a line longer than %d bytes", MaxLineBytes)
		} else if len(line) > 0 {
			o.HandleLine(trimLine(string(line)))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read telemetry: %w", err)
		}
	}
}

func (o *Observer) sample(s telemetry.Sample) {
	p := Point{
		Angle:    s.Angle,
		Distance: s.Distance,
		Warning:  s.Distance < o.WarningCm,
		Time:     o.now(),
	}
	if o.History != nil {
		o.History.Add(p)
	}
	if o.Sink != nil {
		o.Sink.Point(p)
	}
	if p.Warning && !o.warning {
		debug.Live("Proximity warning: %.2f cm at %.1f°", p.Distance, p.Angle)
		if o.Sink != nil {
			o.Sink.Warning(p)
		}
	}
	o.warning = p.Warning
}

func trimLine(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
