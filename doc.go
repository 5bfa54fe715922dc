// Package hellocamera relays live video frames from a capture device into a
// virtual-output sink, dropping black frames and reporting throughput.
//
// # Quick Start
//
//	relay := hellocamera.NewRelay(source, sink, hellocamera.RelayConfig{
//	    Kind:       hellocamera.SourceInfrared,
//	    StreamType: hellocamera.StreamVideoRecord,
//	    Selection:  hellocamera.Selection{Mode: hellocamera.SelectFirst},
//	    Filter:     hellocamera.DefaultFilterConfig(),
//	    Output:     hellocamera.OutputConfig{FPS: 30},
//	})
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	if err := relay.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Pipeline
//
//	Reader (device thread) ──OnFrameArrived──▶ arrival handler
//	                                             │ counters, copy, luma filter
//	                                             ▼
//	                                         FrameSlot (capacity 1, latest wins)
//	                                             │ WaitAndTake
//	                                             ▼
//	                                        DeliveryLoop ──Send──▶ SinkHandle
//
//	StatsReporter samples Counters once per interval, independently.
//
// Three executors communicate only through the FrameSlot and the Counters.
// Publish never blocks. WaitAndTake is the only blocking point of the
// delivery loop.
//
// # Stop Protocol
//
// CaptureSession.Stop clears the running flag, waits for arrivals already
// inside the handler, then marks the FrameSlot stopped. A consumer parked in
// WaitAndTake always returns, and no frame is published after Stop returns.
// Stop never fails and may be called from any goroutine, any number of times.
//
// # Black-Frame Filter
//
// Unless FilterConfig.RawOutput is set, LumaSampleCount bytes are sampled at
// stride floor(width*height/LumaSampleCount) from the start of the buffer.
// The frame is dropped when their mean is below LumaBase+LumaThreshold.
//
// # Errors
//
// Init failures are returned as wrapped sentinels (ErrNoDeviceFound,
// ErrAmbiguousSource, ...) and leave the session Failed. Empty and black
// frames are counted, never returned. A frame whose buffer size is not byte
// aligned (ErrBufferSizeCorruption) is logged and dropped.
//
// # Backends
//
//   - internal/gstcapture: V4L2 capture through GStreamer appsink
//   - internal/mdcapture: capture through pion/mediadevices
//   - internal/gstoutput: v4l2loopback output through GStreamer appsrc
package hellocamera
