// Package metrics exposes capture statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/CyberPuffer/HelloCamera"
)

const namespace = "hellocamera"

// Collector turns StatsReports into Prometheus counters and gauges.
//
// Counters are advanced by the per-interval deltas, so they match the
// session counters as of the last report.
type Collector struct {
	registry *prometheus.Registry

	captured prometheus.Counter
	normal   prometheus.Counter
	black    prometheus.Counter
	skipped  prometheus.Counter
	corrupt  prometheus.Counter

	captureFPS prometheus.Gauge
	targetFPS  prometheus.Gauge
}

// NewCollector creates a collector registered on its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		captured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Frame arrival events seen while running.",
		}),
		normal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_normal_total",
			Help:      "Frames neither black nor skipped.",
		}),
		black: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_black_total",
			Help:      "Frames rejected by the luma filter.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Empty or dropped frames, including corrupt ones.",
		}),
		corrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_corrupt_total",
			Help:      "Frames dropped because the buffer size was not byte aligned.",
		}),
		captureFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_fps",
			Help:      "Frame arrival rate over the last stats interval.",
		}),
		targetFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_fps",
			Help:      "Configured output frame rate.",
		}),
	}

	c.registry.MustRegister(
		c.captured, c.normal, c.black, c.skipped, c.corrupt,
		c.captureFPS, c.targetFPS,
		prometheus.NewGoCollector(),
	)
	return c
}

// ObserveStats implements hellocamera.StatsObserver
func (c *Collector) ObserveStats(r hellocamera.StatsReport) {
	c.captured.Add(float64(r.Captured))
	c.normal.Add(float64(r.Normal))
	c.black.Add(float64(r.Black))
	c.skipped.Add(float64(r.Skipped))
	c.corrupt.Add(float64(r.Corrupt))
	c.captureFPS.Set(r.CaptureFPS())
	c.targetFPS.Set(r.TargetFPS)
}

// Registry returns the registry the collector's metrics live on
func (c *Collector) Registry() *prometheus.Registry { return c.registry }
