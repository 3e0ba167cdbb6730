package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/radarscan/internal/logic/scan"
	"github.com/cjeanneret/radarscan/internal/radar"
)

// ScanInfo describes the fixed sweep parameters shown by the radar page.
type ScanInfo struct {
	Mode                string  `json:"mode"` // "scan" or "observe"
	StepsPerRev         int     `json:"steps_per_rev"`
	StepSize            int     `json:"step_size"`
	MaxSteps            int     `json:"max_steps"`
	MaxAngleDeg         float64 `json:"max_angle_deg"`
	ObstacleThresholdCm float64 `json:"obstacle_threshold_cm"`
	WarningCm           float64 `json:"warning_cm"`
	AngleMode           string  `json:"angle_mode"`
}

// StateFunc returns the live scan state and tick count.
type StateFunc func() (scan.State, uint64)

// StateView is the JSON body of GET /state.
type StateView struct {
	Position  int            `json:"position"`
	Direction scan.Direction `json:"direction"`
	AngleDeg  float64        `json:"angle_deg"`
	Ticks     uint64         `json:"ticks"`
}

// Handlers holds dependencies for HTTP handlers. Every route is read-only.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	History     *radar.History
	Info        ScanInfo
	State       StateFunc // nil in observe mode
	Params      scan.Params
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, history *radar.History, info ScanInfo, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		History:     history,
		Info:        info,
		staticFS:    staticFS,
	}
}

// WithState attaches the live scan state. Without it GET /state answers 404.
func (h *Handlers) WithState(params scan.Params, state StateFunc) *Handlers {
	h.Params = params
	h.State = state
	return h
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// HandleConfig returns the sweep parameters as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Info)
}

// HandleState returns the current position and direction.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.State == nil {
		http.Error(w, "no local scanner in observe mode", http.StatusNotFound)
		return
	}
	s, ticks := h.State()
	writeJSON(w, StateView{
		Position:  s.Position,
		Direction: s.Direction,
		AngleDeg:  h.Params.Degrees(s.Position),
		Ticks:     ticks,
	})
}

// HandlePoints returns the recent points, oldest first.
func (h *Handlers) HandlePoints(w http.ResponseWriter, r *http.Request) {
	pts := []radar.Point{}
	if h.History != nil {
		pts = append(pts, h.History.Points()...)
	}
	writeJSON(w, pts)
}

// ServeIndex serves the radar page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
