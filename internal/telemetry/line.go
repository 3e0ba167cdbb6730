// Package telemetry encodes the one-way readout stream: one "angle,distance"
// line per tick plus human-readable notices for pauses and reversals.
package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

// Sample is one decoded "angle,distance" line.
type Sample struct {
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
}

// FormatSample renders a sample line without the trailing newline.
// The angle has one decimal place; the distance is written in the shortest
// form that reads back to the same value.
func FormatSample(angle, distance float64) string {
	return strconv.FormatFloat(angle, 'f', 1, 64) + "," + strconv.FormatFloat(distance, 'f', -1, 64)
}

// ParseLine decodes a sample line. Lines that are not exactly two numbers
// separated by one comma (notices, boot banners, noise) report false.
func ParseLine(line string) (Sample, bool) {
	line = strings.TrimSpace(line)
	angleStr, distStr, ok := strings.Cut(line, ",")
	if !ok || strings.Contains(distStr, ",") {
		return Sample{}, false
	}
	angle, err := strconv.ParseFloat(strings.TrimSpace(angleStr), 64)
	if err != nil {
		return Sample{}, false
	}
	dist, err := strconv.ParseFloat(strings.TrimSpace(distStr), 64)
	if err != nil {
		return Sample{}, false
	}
	return Sample{Angle: angle, Distance: dist}, true
}

// PauseNotice is the line written on a tick held by an obstacle.
func PauseNotice(thresholdCm float64) string {
	return fmt.Sprintf("Object detected < %scm. Paused.", strconv.FormatFloat(thresholdCm, 'f', -1, 64))
}

// DirectionNotice is the line written on the tick the sweep reverses.
func DirectionNotice(dir fmt.Stringer) string {
	return "Direction changed to " + dir.String()
}
