package hellocamera

import (
	"log/slog"
	"sync/atomic"
)

// DeliveryStats is a snapshot of DeliveryLoop activity
type DeliveryStats struct {
	Delivered  uint64
	SendErrors uint64
	// LastSeq is the arrival sequence number of the last frame handed to the sink
	LastSeq uint64
}

// DeliveryLoop forwards frames from a FrameSlot to a SinkHandle.
//
// WaitAndTake is the only blocking point. Pacing belongs to the sink. The
// loop never stops the capture session; it exits when the slot is marked
// stopped.
type DeliveryLoop struct {
	slot   *FrameSlot
	sink   SinkHandle
	logger *slog.Logger

	delivered  atomic.Uint64
	sendErrors atomic.Uint64
	lastSeq    atomic.Uint64
}

// NewDeliveryLoop creates a loop draining slot into sink
func NewDeliveryLoop(slot *FrameSlot, sink SinkHandle, logger *slog.Logger) *DeliveryLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryLoop{
		slot:   slot,
		sink:   sink,
		logger: logger,
	}
}

// Run blocks until the slot is stopped.
//
// Send errors are logged and counted; a failing sink does not end the loop.
func (d *DeliveryLoop) Run() {
	d.logger.Debug("delivery: loop started")

	for {
		frame, ok := d.slot.WaitAndTake()
		if !ok {
			st := d.Stats()
			d.logger.Info("delivery: loop stopped",
				"delivered", st.Delivered,
				"send_errors", st.SendErrors,
			)
			return
		}

		if err := d.sink.Send(frame.Data); err != nil {
			n := d.sendErrors.Add(1)
			// First failure loud, then sampled to avoid flooding at frame rate
			if n == 1 || n%100 == 0 {
				d.logger.Warn("delivery: send failed",
					"seq", frame.Seq,
					"send_errors", n,
					"error", err,
				)
			}
			continue
		}

		d.delivered.Add(1)
		d.lastSeq.Store(frame.Seq)
	}
}

// Stats returns delivery counters
func (d *DeliveryLoop) Stats() DeliveryStats {
	return DeliveryStats{
		Delivered:  d.delivered.Load(),
		SendErrors: d.sendErrors.Load(),
		LastSeq:    d.lastSeq.Load(),
	}
}
