// Package gstoutput writes frames into a virtual camera through GStreamer.
//
// Pipeline structure:
//
//	appsrc(source caps) → videoconvert → videoscale → capsfilter(output caps) → v4l2sink
//
// The v4l2sink device is normally a v4l2loopback node. Conversion and
// scaling between the device format and the output format happen inside
// the pipeline; Send paces submissions to the output rate.
package gstoutput

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/CyberPuffer/HelloCamera"
	"github.com/CyberPuffer/HelloCamera/internal/pacing"
)

// DefaultDevice is the conventional v4l2loopback node
const DefaultDevice = "/dev/video10"

// Config configures the output sink
type Config struct {
	// Device is the v4l2loopback node (default DefaultDevice)
	Device string
	// Element is the sink element factory (default "v4l2sink"). Any video
	// sink works, e.g. "autovideosink" for a local preview window.
	Element string

	Logger *slog.Logger
}

// Sink implements hellocamera.Sink
type Sink struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an output sink
func New(cfg Config) *Sink {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	if cfg.Element == "" {
		cfg.Element = "v4l2sink"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{cfg: cfg, logger: logger}
}

// Open builds the output pipeline for format and sets it to PLAYING
func (s *Sink) Open(ctx context.Context, format hellocamera.OutputFormat) (hellocamera.SinkHandle, error) {
	gst.Init(nil)

	inCaps := rawCaps(format.Source.PixelKind, format.Source.Width, format.Source.Height, format.FPS)
	outCaps := rawCaps(format.PixelKind, format.Width, format.Height, format.FPS)

	pipeline, src, err := s.createPipeline(inCaps, outCaps)
	if err != nil {
		return nil, fmt.Errorf("gstoutput: %w", err)
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("gstoutput: failed to start pipeline: %w", err)
	}

	s.logger.Info("gstoutput: output opened",
		"device", s.cfg.Device,
		"element", s.cfg.Element,
		"in_caps", inCaps,
		"out_caps", outCaps,
	)

	handleCtx, cancel := context.WithCancel(context.Background())
	return &handle{
		pipeline: pipeline,
		src:      src,
		pacer:    pacing.New(format.FPS),
		ctx:      handleCtx,
		cancel:   cancel,
		logger:   s.logger,
	}, nil
}

func (s *Sink) createPipeline(inCaps, outCaps string) (*gst.Pipeline, *app.Source, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(inCaps))
	src.SetProperty("is-live", true)
	src.SetProperty("format", gst.FormatTime)
	src.SetProperty("do-timestamp", true)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videoscale: %w", err)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(outCaps))

	sink, err := gst.NewElement(s.cfg.Element)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", s.cfg.Element, err)
	}
	if s.cfg.Element == "v4l2sink" {
		sink.SetProperty("device", s.cfg.Device)
	}
	sink.SetProperty("sync", false) // Send paces, not the clock

	pipeline.AddMany(src.Element, converter, scaler, capsfilter, sink)
	if err := gst.ElementLinkMany(src.Element, converter, scaler, capsfilter, sink); err != nil {
		return nil, nil, fmt.Errorf("failed to link output pipeline: %w", err)
	}
	return pipeline, src, nil
}

// handle is one opened output
type handle struct {
	pipeline *gst.Pipeline
	src      *app.Source
	pacer    *pacing.Pacer

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex // serializes Send and Close
	closed bool
	pushed uint64
}

// Send waits for the next send slot and pushes a copy of buf into the
// pipeline. buf is not retained.
func (h *handle) Send(buf []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("gstoutput: send on closed output")
	}
	if err := h.pacer.Wait(h.ctx); err != nil {
		return fmt.Errorf("gstoutput: %w", err)
	}

	data := make([]byte, len(buf))
	copy(data, buf)
	if ret := h.src.PushBuffer(gst.NewBufferFromBytes(data)); ret != gst.FlowOK {
		return fmt.Errorf("gstoutput: push buffer: %v", ret)
	}
	atomic.AddUint64(&h.pushed, 1)
	return nil
}

// Close sends EOS and tears the pipeline down. Idempotent.
func (h *handle) Close() error {
	// Unblock a Send parked in the pacer before taking the lock
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	h.src.EndStream()
	if err := h.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstoutput: failed to set pipeline to NULL: %w", err)
	}
	h.logger.Info("gstoutput: output closed", "frames", atomic.LoadUint64(&h.pushed))
	return nil
}

// rawCaps builds a fixed raw video caps string
func rawCaps(kind hellocamera.PixelKind, width, height, fps uint) string {
	caps := fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d", kind, width, height)
	if fps > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", fps)
	}
	return caps
}
