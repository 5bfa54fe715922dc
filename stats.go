package hellocamera

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultStatsInterval is the StatsReporter sampling period
const DefaultStatsInterval = time.Second

// Counters are the per-session frame outcome counters.
//
// Written only by the arrival handler, read by StatsReporter through
// Snapshot. Every field is an independent atomic; after quiescence
// Frames == Black + Skipped + Good.
type Counters struct {
	frame   atomic.Uint64
	black   atomic.Uint64
	skipped atomic.Uint64
	good    atomic.Uint64
	corrupt atomic.Uint64 // subset of skipped
}

// CounterSnapshot is a point-in-time copy of Counters
type CounterSnapshot struct {
	Frames  uint64
	Black   uint64
	Skipped uint64
	Good    uint64
	Corrupt uint64
}

// Snapshot reads all counters without blocking the producer.
//
// Outcome counters are read before Frames so that a snapshot taken while a
// frame is in flight never shows more outcomes than arrivals.
func (c *Counters) Snapshot() CounterSnapshot {
	good := c.good.Load()
	black := c.black.Load()
	corrupt := c.corrupt.Load()
	skipped := c.skipped.Load()
	return CounterSnapshot{
		Frames:  c.frame.Load(),
		Black:   black,
		Skipped: skipped,
		Good:    good,
		Corrupt: corrupt,
	}
}

// StatsReport holds per-interval deltas
type StatsReport struct {
	// At is when the sample was taken
	At time.Time
	// Elapsed is the actual time covered by the deltas
	Elapsed time.Duration

	Captured uint64
	Normal   uint64 // Captured - Black - Skipped
	Black    uint64
	Skipped  uint64
	Corrupt  uint64

	// TargetFPS is the configured output rate the deltas are reported against
	TargetFPS float64

	// Totals is the cumulative snapshot the deltas were computed from
	Totals CounterSnapshot
}

// CaptureFPS returns Captured normalized to frames per second
func (r StatsReport) CaptureFPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Captured) / r.Elapsed.Seconds()
}

// NormalFPS returns Normal normalized to frames per second
func (r StatsReport) NormalFPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Normal) / r.Elapsed.Seconds()
}

// StatsObserver receives every report produced by a StatsReporter
type StatsObserver interface {
	ObserveStats(r StatsReport)
}

// StatsObserverFunc adapts a function to StatsObserver
type StatsObserverFunc func(r StatsReport)

// ObserveStats calls f(r)
func (f StatsObserverFunc) ObserveStats(r StatsReport) { f(r) }

// LogObserver writes each report as one Info line
func LogObserver(logger *slog.Logger) StatsObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return StatsObserverFunc(func(r StatsReport) {
		logger.Info("stats: frames",
			"captured", r.Captured,
			"normal", r.Normal,
			"black", r.Black,
			"skipped", r.Skipped,
			"target_fps", r.TargetFPS,
			"elapsed", r.Elapsed.Round(time.Millisecond),
		)
	})
}

// StatsConfig configures a StatsReporter
type StatsConfig struct {
	// Interval between samples (default 1s)
	Interval time.Duration
	// TargetFPS is echoed in every report
	TargetFPS float64
}

// StatsReporter periodically samples Counters and emits per-interval deltas.
//
// The wait before each sample is interval minus the time already spent since
// the previous deadline, so wake jitter and observer latency do not
// accumulate into drift.
type StatsReporter struct {
	counters  *Counters
	interval  time.Duration
	targetFPS float64
	observers []StatsObserver

	now func() time.Time

	prev   CounterSnapshot
	prevAt time.Time
}

// NewStatsReporter creates a reporter over counters. The first report
// covers everything counted after this call.
func NewStatsReporter(counters *Counters, cfg StatsConfig, observers ...StatsObserver) *StatsReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	r := &StatsReporter{
		counters:  counters,
		interval:  interval,
		targetFPS: cfg.TargetFPS,
		observers: observers,
		now:       time.Now,
	}
	r.reset(r.now())
	return r
}

// Run samples until ctx is cancelled. Frames captured since the last
// report are emitted once more on cancellation.
func (r *StatsReporter) Run(ctx context.Context) {
	next := r.prevAt.Add(r.interval)
	timer := time.NewTimer(next.Sub(r.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Partial final interval, so totals seen by observers add up
			if tail := r.sample(r.now()); tail.Captured > 0 {
				r.emit(tail)
			}
			return
		case <-timer.C:
		}

		r.emit(r.sample(r.now()))

		// Sleep interval - elapsedSinceTick; skip ticks we are already late for
		now := r.now()
		next = next.Add(r.interval)
		if !next.After(now) {
			next = now.Add(r.interval - now.Sub(next)%r.interval)
		}
		timer.Reset(next.Sub(now))
	}
}

func (r *StatsReporter) emit(report StatsReport) {
	for _, obs := range r.observers {
		obs.ObserveStats(report)
	}
}

func (r *StatsReporter) reset(at time.Time) {
	r.prev = r.counters.Snapshot()
	r.prevAt = at
}

// sample computes deltas against the previous snapshot and advances it
func (r *StatsReporter) sample(at time.Time) StatsReport {
	cur := r.counters.Snapshot()

	captured := cur.Frames - r.prev.Frames
	black := cur.Black - r.prev.Black
	skipped := cur.Skipped - r.prev.Skipped

	// Frames is incremented before the outcome, so an in-flight frame can
	// make black+skipped briefly exceed captured across snapshots.
	var normal uint64
	if captured > black+skipped {
		normal = captured - black - skipped
	}

	report := StatsReport{
		At:        at,
		Elapsed:   at.Sub(r.prevAt),
		Captured:  captured,
		Normal:    normal,
		Black:     black,
		Skipped:   skipped,
		Corrupt:   cur.Corrupt - r.prev.Corrupt,
		TargetFPS: r.targetFPS,
		Totals:    cur,
	}

	r.prev = cur
	r.prevAt = at
	return report
}
