package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	hellocamera "github.com/CyberPuffer/HelloCamera"
	"github.com/CyberPuffer/HelloCamera/config"
	"github.com/CyberPuffer/HelloCamera/internal/gstcapture"
	"github.com/CyberPuffer/HelloCamera/internal/gstoutput"
	"github.com/CyberPuffer/HelloCamera/internal/mdcapture"
	"github.com/CyberPuffer/HelloCamera/internal/metrics"
	"github.com/CyberPuffer/HelloCamera/internal/retry"
)

// errDeviceFault ends an attempt whose capture pipeline failed after start
var errDeviceFault = errors.New("hellocamera: capture device fault")

// app runs relay attempts for one configuration
type app struct {
	cfg       *config.Config
	collector *metrics.Collector
	logger    *slog.Logger

	mu    sync.Mutex
	relay *hellocamera.Relay
	fault error
}

func newApp(cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) *app {
	return &app{cfg: cfg, collector: collector, logger: logger}
}

// run retries relay attempts until ctx is cancelled, an attempt ends
// cleanly, or the error is one retrying cannot fix
func (a *app) run(ctx context.Context) error {
	source, err := newSource(a.cfg, a.logger, a.onFault)
	if err != nil {
		return err
	}
	sink := gstoutput.New(a.cfg.OutputSink(a.logger))

	rc, err := a.cfg.Relay()
	if err != nil {
		return err
	}
	rc.Logger = a.logger
	rc.Observers = []hellocamera.StatsObserver{a.collector}

	return retry.Run(ctx, func(ctx context.Context) error {
		return a.attempt(ctx, source, sink, rc)
	}, a.cfg.RetryPolicy(), a.logger)
}

func (a *app) attempt(ctx context.Context, source hellocamera.Source, sink hellocamera.Sink, rc hellocamera.RelayConfig) error {
	relay := hellocamera.NewRelay(source, sink, rc)
	a.mu.Lock()
	a.relay = relay
	a.fault = nil
	a.mu.Unlock()

	err := relay.Run(ctx)

	a.mu.Lock()
	a.relay = nil
	fault := a.fault
	a.mu.Unlock()

	switch {
	case err != nil && permanent(err):
		return retry.Permanent(err)
	case err != nil:
		return err
	case fault != nil:
		return fmt.Errorf("%w: %w", errDeviceFault, fault)
	}
	return nil
}

// onFault stops the current relay; the attempt then reports the fault
// to the retry loop
func (a *app) onFault(err error) {
	a.mu.Lock()
	relay := a.relay
	if a.fault == nil {
		a.fault = err
	}
	a.mu.Unlock()

	a.logger.Error("hellocamera: capture fault", "error", err)
	if relay != nil {
		relay.Stop()
	}
}

// permanent reports configuration errors that no amount of waiting for a
// device fixes
func permanent(err error) bool {
	return errors.Is(err, hellocamera.ErrAmbiguousSource) ||
		errors.Is(err, hellocamera.ErrInvalidSelection) ||
		errors.Is(err, hellocamera.ErrNoSourceFound) ||
		errors.Is(err, hellocamera.ErrInvalidSampleConfig)
}

func newSource(cfg *config.Config, logger *slog.Logger, onFault func(error)) (hellocamera.Source, error) {
	switch cfg.Capture.Backend {
	case config.BackendMediaDevices:
		return mdcapture.New(cfg.MediaDevicesCapture(logger)), nil
	default:
		if err := gstcapture.CheckAvailable(); err != nil {
			return nil, err
		}
		return gstcapture.New(cfg.GStreamerCapture(logger, onFault)), nil
	}
}

// listSources prints every source group and its entries
func listSources(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	source, err := newSource(cfg, logger, nil)
	if err != nil {
		return err
	}
	groups, err := source.Enumerate(ctx)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Println("No capture devices found")
		return nil
	}
	for i, g := range groups {
		fmt.Printf("[%d] %s (%s)\n", i, g.DisplayName, g.ID)
		for _, s := range g.Sources {
			fmt.Printf("    %-28s kind=%s type=%s\n", s.ID, s.Kind, s.StreamType)
		}
	}
	return nil
}
