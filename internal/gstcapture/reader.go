package gstcapture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/CyberPuffer/HelloCamera"
)

// reader implements hellocamera.Reader on top of one capture pipeline
type reader struct {
	device   string
	elements *pipelineElements
	cfg      Config
	logger   *slog.Logger

	mu        sync.Mutex
	handler   hellocamera.FrameArrivedHandler
	format    *hellocamera.DeviceFormat
	callbacks bool

	// Lifecycle
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time

	// Statistics (atomic for thread-safety)
	samples uint64
	errors  ErrorCounters
}

func newReader(device string, elements *pipelineElements, cfg Config, logger *slog.Logger) *reader {
	return &reader{
		device:   device,
		elements: elements,
		cfg:      cfg,
		logger:   logger.With("device", device),
	}
}

// Format plays the pipeline until the first sample arrives, reads its caps
// and returns the pipeline to NULL. Cached after the first success.
func (r *reader) Format() (hellocamera.DeviceFormat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.format != nil {
		return *r.format, nil
	}
	if r.cancel != nil {
		return hellocamera.DeviceFormat{}, fmt.Errorf("gstcapture: format query while running")
	}

	pipeline := r.elements.Pipeline
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return hellocamera.DeviceFormat{}, fmt.Errorf("gstcapture: failed to start format query: %w", err)
	}
	defer func() {
		if err := pipeline.SetState(gst.StateNull); err != nil {
			r.logger.Warn("gstcapture: failed to reset pipeline after format query", "error", err)
		}
	}()

	type result struct {
		caps string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		sample := r.elements.AppSink.PullSample()
		if sample == nil {
			ch <- result{err: fmt.Errorf("no sample (end of stream or pipeline stopped)")}
			return
		}
		caps := sample.GetCaps()
		if caps == nil {
			ch <- result{err: fmt.Errorf("sample without caps")}
			return
		}
		ch <- result{caps: caps.String()}
	}()

	var res result
	select {
	case res = <-ch:
	case <-time.After(r.cfg.FormatTimeout):
		// Setting NULL in the deferred reset unblocks PullSample
		return hellocamera.DeviceFormat{}, fmt.Errorf("gstcapture: no frame within %v", r.cfg.FormatTimeout)
	}
	if res.err != nil {
		return hellocamera.DeviceFormat{}, fmt.Errorf("gstcapture: %w", res.err)
	}

	format, err := parseCaps(res.caps)
	if err != nil {
		return hellocamera.DeviceFormat{}, fmt.Errorf("gstcapture: %w", err)
	}
	r.logger.Info("gstcapture: format negotiated", "caps", res.caps, "format", format.String())

	r.format = &format
	return format, nil
}

func (r *reader) SetFrameArrivedHandler(h hellocamera.FrameArrivedHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Start sets the pipeline to PLAYING and launches the bus monitor
func (r *reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return nil
	}
	if r.handler == nil {
		return fmt.Errorf("gstcapture: no frame handler registered")
	}

	if !r.callbacks {
		handler := r.handler
		r.elements.AppSink.SetCallbacks(&app.SinkCallbacks{
			NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
				atomic.AddUint64(&r.samples, 1)
				handler.OnFrameArrived(sampleEvent{sink: sink})
				return gst.FlowOK
			},
		})
		r.callbacks = true
	}

	if err := r.elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstcapture: failed to start pipeline: %w", err)
	}

	// The monitor outlives the caller's ctx; Stop cancels it
	monitorCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.started = time.Now()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := monitorPipelineBus(monitorCtx, r.elements.Pipeline, &r.errors, monitorInfo{
			device:    r.device,
			samples:   &r.samples,
			startedAt: r.started,
		}, r.logger)
		if err != nil && r.cfg.OnFault != nil {
			r.cfg.OnFault(err)
		}
	}()

	r.logger.Info("gstcapture: pipeline playing")
	return nil
}

// Stop cancels the monitor, waits for it (timeout 3s) and sets the
// pipeline to NULL. Idempotent.
func (r *reader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return nil
	}
	r.cancel()
	r.cancel = nil

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		r.logger.Warn("gstcapture: stop timeout exceeded, bus monitor may still be running")
	}

	if err := destroyPipeline(r.elements); err != nil {
		return fmt.Errorf("gstcapture: %w", err)
	}

	attrs := []any{
		"uptime", time.Since(r.started).Round(time.Millisecond),
		"samples", atomic.LoadUint64(&r.samples),
	}
	r.logger.Info("gstcapture: pipeline stopped", append(attrs, r.errors.snapshot().logAttrs()...)...)
	return nil
}

func (r *reader) Close() error {
	return r.Stop()
}

// sampleEvent defers pulling and mapping the sample until the handler asks
// for it, so a stopped session never touches the buffer.
type sampleEvent struct {
	sink *app.Sink
}

// AcquireFrame pulls and maps the pending sample. The mapped memory is
// valid until release.
func (e sampleEvent) AcquireFrame() ([]byte, func(), bool) {
	sample := e.sink.PullSample()
	if sample == nil {
		return nil, nil, false
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, nil, false
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return nil, nil, false
	}
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return nil, nil, false
	}
	return data, buffer.Unmap, true
}
