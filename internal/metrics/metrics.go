package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cjeanneret/radarscan/internal/logic/scan"
)

// Collector bundles the scan loop metrics. It implements scan.Observer.
type Collector struct {
	gatherer prometheus.Gatherer

	Ticks     prometheus.Counter
	Pauses    prometheus.Counter
	Reversals *prometheus.CounterVec
	Position  prometheus.Gauge
	Distance  prometheus.Gauge
}

// NewCollector registers the scan metrics against reg, defaulting to the
// global Prometheus registry when nil. writeErrors, when non-nil, is
// exported as radarscan_telemetry_write_errors_total.
func NewCollector(reg prometheus.Registerer, writeErrors func() uint64) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radarscan_ticks_total",
			Help: "Control loop ticks run, paused or not.",
		}),
		Pauses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radarscan_pauses_total",
			Help: "Ticks held because the distance was below the obstacle threshold.",
		}),
		Reversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radarscan_reversals_total",
			Help: "Sweep direction changes, labeled by the new direction.",
		}, []string{"direction"}),
		Position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radarscan_position_steps",
			Help: "Current position in steps from the start position.",
		}),
		Distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radarscan_distance_cm",
			Help: "Last distance sample in centimetres.",
		}),
	}

	collectors := []prometheus.Collector{c.Ticks, c.Pauses, c.Reversals, c.Position, c.Distance}
	if writeErrors != nil {
		collectors = append(collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "radarscan_telemetry_write_errors_total",
			Help: "Telemetry lines that could not be written to the output.",
		}, func() float64 { return float64(writeErrors()) }))
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return nil, fmt.Errorf("metrics already registered: %w", err)
			}
			return nil, err
		}
	}
	return c, nil
}

// Gatherer returns the gatherer matching the registerer the collector uses.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// Observe records one tick.
func (c *Collector) Observe(s scan.State, r scan.Result) {
	c.Ticks.Inc()
	c.Distance.Set(r.Distance)
	c.Position.Set(float64(s.Position))
	if r.Paused {
		c.Pauses.Inc()
	}
	if r.Reversed {
		c.Reversals.WithLabelValues(s.Direction.String()).Inc()
	}
}
