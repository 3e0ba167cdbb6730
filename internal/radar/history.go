// Package radar is the reading end of the telemetry stream: it keeps the
// recent points for display and raises a proximity warning.
package radar

import (
	"sync"
	"time"
)

// Point is one plotted reading.
type Point struct {
	Angle    float64   `json:"angle"`
	Distance float64   `json:"distance"`
	Warning  bool      `json:"warning"`
	Time     time.Time `json:"t"`
}

// History is a bounded, concurrency-safe ring of recent points.
type History struct {
	mu     sync.RWMutex
	points []Point
	next   int
	full   bool
}

// NewHistory keeps at most size points (minimum 1).
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{points: make([]Point, size)}
}

// Add records p, evicting the oldest point when full.
func (h *History) Add(p Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points[h.next] = p
	h.next = (h.next + 1) % len(h.points)
	if h.next == 0 {
		h.full = true
	}
}

// Points returns the stored points, oldest first.
func (h *History) Points() []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full {
		return append([]Point(nil), h.points[:h.next]...)
	}
	out := make([]Point, 0, len(h.points))
	out = append(out, h.points[h.next:]...)
	return append(out, h.points[:h.next]...)
}
