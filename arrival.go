package hellocamera

import (
	"log/slog"
	"time"

	"github.com/CyberPuffer/HelloCamera/internal/luma"
	"github.com/CyberPuffer/HelloCamera/internal/slot"
)

// arrivalHandler is the per-frame producer logic.
//
// Runs on the reader's execution context. CaptureSession guarantees it is
// never entered after Stop has drained the gate, so it does no lifecycle
// checks of its own.
type arrivalHandler struct {
	format   DeviceFormat
	filter   FilterConfig
	counters *Counters
	logger   *slog.Logger
}

// handle accounts for one arrival event and publishes the frame into dst if
// it survives the filter.
func (h *arrivalHandler) handle(ev FrameEvent, dst *FrameSlot) {
	seq := h.counters.frame.Add(1)

	data, release, ok := ev.AcquireFrame()
	if !ok {
		h.counters.skipped.Add(1)
		h.logger.Debug("capture: empty frame skipped", "seq", seq)
		return
	}

	size, err := h.format.BufferSize()
	if err != nil {
		if release != nil {
			release()
		}
		h.counters.skipped.Add(1)
		h.counters.corrupt.Add(1)
		h.logger.Error("capture: frame dropped",
			"seq", seq,
			"format", h.format.String(),
			"error", err,
		)
		return
	}

	buf := make([]byte, size)
	n := copy(buf, data)
	if release != nil {
		release()
	}
	if n < size {
		h.logger.Debug("capture: short payload zero-padded",
			"seq", seq,
			"payload_bytes", n,
			"buffer_bytes", size,
		)
	}

	if !h.filter.RawOutput {
		black, err := luma.IsBlack(buf, h.format.Width, h.format.Height,
			h.filter.LumaSampleCount, h.filter.LumaBase, h.filter.LumaThreshold)
		if err != nil {
			// Init validated the sample config, so only a format the
			// filter cannot read lands here.
			h.counters.skipped.Add(1)
			h.logger.Warn("capture: luma filter failed", "seq", seq, "error", err)
			return
		}
		if black {
			h.counters.black.Add(1)
			return
		}
	}

	h.counters.good.Add(1)
	if !dst.Publish(&slot.Frame{Data: buf, Seq: seq, Timestamp: time.Now()}) {
		h.logger.Debug("capture: publish after stop discarded", "seq", seq)
	}
}

// validateFilter checks that filter can be applied to frames of format
func validateFilter(filter FilterConfig, format DeviceFormat) error {
	if filter.RawOutput {
		return nil
	}
	if _, err := luma.Stride(format.PixelCount(), filter.LumaSampleCount); err != nil {
		return err
	}
	return nil
}
