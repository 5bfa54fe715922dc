package gstcapture

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCounters holds atomic counters for each error category
type ErrorCounters struct {
	Device     uint64
	Format     uint64
	Permission uint64
	Unknown    uint64
}

func (c *ErrorCounters) add(category ErrorCategory) {
	switch category {
	case ErrCategoryDevice:
		atomic.AddUint64(&c.Device, 1)
	case ErrCategoryFormat:
		atomic.AddUint64(&c.Format, 1)
	case ErrCategoryPermission:
		atomic.AddUint64(&c.Permission, 1)
	default:
		atomic.AddUint64(&c.Unknown, 1)
	}
}

// snapshot reads the counters atomically
func (c *ErrorCounters) snapshot() ErrorCounters {
	return ErrorCounters{
		Device:     atomic.LoadUint64(&c.Device),
		Format:     atomic.LoadUint64(&c.Format),
		Permission: atomic.LoadUint64(&c.Permission),
		Unknown:    atomic.LoadUint64(&c.Unknown),
	}
}

// Total returns the sum over all categories
func (c ErrorCounters) Total() uint64 {
	return c.Device + c.Format + c.Permission + c.Unknown
}

// logAttrs renders the counters as slog key/value pairs
func (c ErrorCounters) logAttrs() []any {
	return []any{
		"device_errors", c.Device,
		"format_errors", c.Format,
		"permission_errors", c.Permission,
		"unknown_errors", c.Unknown,
	}
}

// monitorInfo is context attached to monitor log lines
type monitorInfo struct {
	device    string
	samples   *uint64
	startedAt time.Time
}

// monitorPipelineBus polls the pipeline bus until ctx is cancelled.
//
// Returns an error on EOS or a pipeline error (the device went away or the
// format broke). Returns nil on cancellation.
func monitorPipelineBus(ctx context.Context, pipeline *gst.Pipeline, counters *ErrorCounters, info monitorInfo, logger *slog.Logger) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("gstcapture: context cancelled, stopping bus monitor")
			return nil
		default:
		}

		// Short timeout for responsive shutdown
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			logger.Info("gstcapture: end of stream received",
				"uptime", time.Since(info.startedAt),
				"samples", atomic.LoadUint64(info.samples),
			)
			return fmt.Errorf("gstcapture: %s: end of stream", info.device)

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			counters.add(category)

			logger.Error("gstcapture: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"uptime", time.Since(info.startedAt),
				"samples", atomic.LoadUint64(info.samples),
			)
			return fmt.Errorf("gstcapture: %s: pipeline error [%s]: %s", info.device, category, gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, new := msg.ParseStateChanged()
				logger.Debug("gstcapture: pipeline state changed", "from", old, "to", new)
			}
		}
	}
}
