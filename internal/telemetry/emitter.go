package telemetry

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/cjeanneret/radarscan/internal/logic/scan"
)

// Kind tells listeners what an Event carries.
type Kind int

const (
	KindSample Kind = iota
	KindPause
	KindDirection
)

func (k Kind) String() string {
	switch k {
	case KindSample:
		return "sample"
	case KindPause:
		return "pause"
	case KindDirection:
		return "direction"
	default:
		return "unknown"
	}
}

// Event is one line of the stream, decoded.
type Event struct {
	Kind   Kind
	Line   string
	Sample Sample // set for KindSample
}

// Emitter writes the readout stream to w and fans each line out to listeners.
// It implements scan.Reporter. Writes are best effort: a failed write is
// counted and otherwise ignored.
type Emitter struct {
	mu        sync.Mutex
	w         io.Writer
	threshold float64
	listeners []func(Event)

	writeErrors atomic.Uint64
}

// NewEmitter creates an emitter writing to w. thresholdCm is only used to
// word the pause notice.
func NewEmitter(w io.Writer, thresholdCm float64) *Emitter {
	return &Emitter{w: w, threshold: thresholdCm}
}

// Subscribe registers fn to receive every event. fn runs on the scan loop
// and must not block.
func (e *Emitter) Subscribe(fn func(Event)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// WriteErrors returns how many lines could not be written.
func (e *Emitter) WriteErrors() uint64 {
	return e.writeErrors.Load()
}

func (e *Emitter) Sample(angle, distance float64) {
	line := FormatSample(angle, distance)
	e.emit(Event{Kind: KindSample, Line: line, Sample: Sample{Angle: angle, Distance: distance}})
}

func (e *Emitter) Paused(distance float64) {
	e.emit(Event{Kind: KindPause, Line: PauseNotice(e.threshold)})
}

func (e *Emitter) DirectionChanged(d scan.Direction) {
	e.emit(Event{Kind: KindDirection, Line: DirectionNotice(d)})
}

func (e *Emitter) emit(ev Event) {
	e.mu.Lock()
	listeners := e.listeners
	if _, err := io.WriteString(e.w, ev.Line+"\n"); err != nil {
		e.writeErrors.Add(1)
	}
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
