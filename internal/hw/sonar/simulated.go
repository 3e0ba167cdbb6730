package sonar

import (
	"math"
	"sync"
	"time"
)

// Simulated stands in for the HC-SR04 when running without hardware.
// It replays a list of distances, wrapping around at the end, and can
// block for a fixed echo time to mimic the real round trip.
type Simulated struct {
	mu        sync.Mutex
	distances []float64
	next      int
	echoDelay time.Duration
}

// NewSimulated returns a simulated sensor replaying distances in order.
// An empty list always reads 0.
func NewSimulated(echoDelay time.Duration, distances ...float64) *Simulated {
	return &Simulated{
		distances: append([]float64(nil), distances...),
		echoDelay: echoDelay,
	}
}

// Room builds a distance profile for a sweep of n readings: a wall at
// wallCm with a closer object in the middle third of the sweep, and one
// reading below obstacleCm halfway through to exercise the pause path.
func Room(n int, wallCm, obstacleCm float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(n)
		d := wallCm + 10*math.Sin(2*math.Pi*t)
		if t > 1.0/3 && t < 2.0/3 {
			d = wallCm / 2
		}
		out[i] = math.Round(d*100) / 100
	}
	if n > 0 {
		out[n/2] = obstacleCm
	}
	return out
}

// MeasureDistanceCm returns the next scripted distance.
func (s *Simulated) MeasureDistanceCm() float64 {
	d, _ := s.Measure()
	return d
}

// Measure returns the next scripted distance. It never fails.
func (s *Simulated) Measure() (float64, error) {
	if s.echoDelay > 0 {
		time.Sleep(s.echoDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.distances) == 0 {
		return 0, nil
	}
	d := s.distances[s.next]
	s.next = (s.next + 1) % len(s.distances)
	return d, nil
}
