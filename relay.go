package hellocamera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RelayConfig configures one capture-to-output relay attempt
type RelayConfig struct {
	Kind       SourceKind
	StreamType StreamType
	Selection  Selection

	Filter   FilterConfig
	Settings SessionSettings

	// Output overrides; zero fields follow the device
	Output OutputConfig

	// StatsInterval defaults to DefaultStatsInterval
	StatsInterval time.Duration
	// Observers receive every StatsReport in addition to the log
	Observers []StatsObserver

	Logger *slog.Logger
}

// Relay wires a CaptureSession, a Sink, a DeliveryLoop and a StatsReporter
// into one run.
//
// Lifecycle:
//   - Run blocks until ctx is cancelled or Stop is called
//   - Stop is the external stop request; it stops the session, which wakes
//     the delivery loop
//   - A Relay is single use
type Relay struct {
	source Source
	sink   Sink
	cfg    RelayConfig
	logger *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}

	mu       sync.Mutex
	session  *CaptureSession
	delivery *DeliveryLoop
}

// NewRelay creates a relay from source to sink
func NewRelay(source Source, sink Sink, cfg RelayConfig) *Relay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		source: source,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Run initializes the session, opens the sink and delivers frames until
// stopped. Init and sink errors are returned unchanged for the caller's
// retry policy. A clean stop returns nil.
func (r *Relay) Run(ctx context.Context) error {
	session := NewCaptureSession(r.source, SessionConfig{
		Filter:   r.cfg.Filter,
		Settings: r.cfg.Settings,
		Logger:   r.logger,
	})
	r.mu.Lock()
	r.session = session
	r.mu.Unlock()

	logger := r.logger.With("session_id", session.ID())
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("relay: session close failed", "error", err)
		}
	}()

	device, err := session.Init(ctx, r.cfg.Kind, r.cfg.StreamType, r.cfg.Selection)
	if err != nil {
		return err
	}

	out := NegotiateOutput(device, r.cfg.Output)
	logger.Info("relay: output negotiated",
		"width", out.Width,
		"height", out.Height,
		"pixel_format", out.PixelKind.String(),
		"fps", out.FPS,
	)

	handle, err := r.sink.Open(ctx, out)
	if err != nil {
		return fmt.Errorf("hellocamera: open sink: %w", err)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Warn("relay: sink close failed", "error", err)
		}
	}()

	// Baseline taken before the first arrival, so the reports add up to
	// the session counters
	observers := append([]StatsObserver{LogObserver(logger)}, r.cfg.Observers...)
	reporter := NewStatsReporter(session.Counters(), StatsConfig{
		Interval:  r.cfg.StatsInterval,
		TargetFPS: float64(out.FPS),
	}, observers...)

	if err := session.Start(ctx); err != nil {
		return err
	}

	loop := NewDeliveryLoop(session.Slot(), handle, logger)
	r.mu.Lock()
	r.delivery = loop
	r.mu.Unlock()

	statsCtx, cancelStats := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reporter.Run(statsCtx)
	}()

	done := make(chan struct{})
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			logger.Info("relay: context cancelled")
		case <-r.stopCh:
			logger.Info("relay: stop requested")
		case <-done:
			return
		}
		session.Stop()
	}()

	loop.Run()

	close(done)
	cancelStats()
	wg.Wait()

	ds := loop.Stats()
	snap := session.Counters().Snapshot()
	logger.Info("relay: finished",
		"frames", snap.Frames,
		"good", snap.Good,
		"black", snap.Black,
		"skipped", snap.Skipped,
		"corrupt", snap.Corrupt,
		"delivered", ds.Delivered,
		"send_errors", ds.SendErrors,
	)
	return nil
}

// Stop requests the running relay to stop. Safe to call more than once and
// before Run.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Session returns the capture session of the current run, or nil before Run
func (r *Relay) Session() *CaptureSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// DeliveryStats returns the delivery counters of the current run
func (r *Relay) DeliveryStats() DeliveryStats {
	r.mu.Lock()
	loop := r.delivery
	r.mu.Unlock()
	if loop == nil {
		return DeliveryStats{}
	}
	return loop.Stats()
}
