// Package gstcapture captures V4L2 devices through GStreamer.
//
// Each /dev/video* node (or configured device) is one source group exposing
// a record and a preview entry of the configured kind. The reader runs
//
//	v4l2src → videoconvert → capsfilter → appsink
//
// and invokes the arrival handler from the appsink new-sample callback, on
// the GStreamer streaming thread.
package gstcapture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/CyberPuffer/HelloCamera"
)

// DefaultDeviceGlob matches V4L2 capture nodes
const DefaultDeviceGlob = "/dev/video*"

// Device is an explicitly configured capture device
type Device struct {
	Path string
	Name string
	Kind hellocamera.SourceKind
}

// Config configures the GStreamer capture backend
type Config struct {
	// Devices lists capture devices; empty means glob DeviceGlob
	Devices []Device
	// DeviceGlob defaults to DefaultDeviceGlob
	DeviceGlob string
	// DefaultKind is reported for globbed devices. V4L2 has no notion of
	// sensor kind.
	DefaultKind hellocamera.SourceKind

	// Requested capture caps; zero values leave negotiation to the device
	Width     uint
	Height    uint
	FPS       uint
	PixelKind hellocamera.PixelKind

	// FormatTimeout bounds the wait for the first sample in Reader.Format
	// (default 5s)
	FormatTimeout time.Duration

	// OnFault is called once per run when the pipeline reports an error or
	// end of stream after Start. Must not block.
	OnFault func(err error)

	Logger *slog.Logger
}

// Source implements hellocamera.Source for V4L2 devices
type Source struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a GStreamer capture source
func New(cfg Config) *Source {
	if cfg.DeviceGlob == "" {
		cfg.DeviceGlob = DefaultDeviceGlob
	}
	if cfg.FormatTimeout <= 0 {
		cfg.FormatTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{cfg: cfg, logger: logger}
}

// CheckAvailable verifies GStreamer and the elements the backend needs
func CheckAvailable() error {
	gst.Init(nil)
	for _, name := range []string{"v4l2src", "videoconvert", "capsfilter", "appsink"} {
		elem, err := gst.NewElement(name)
		if err != nil {
			return fmt.Errorf("gstcapture: element %s not available: %w", name, err)
		}
		elem.SetState(gst.StateNull)
	}
	return nil
}

// Enumerate lists configured devices, or globbed device nodes
func (s *Source) Enumerate(ctx context.Context) ([]hellocamera.SourceGroup, error) {
	devices := s.cfg.Devices
	if len(devices) == 0 {
		paths, err := filepath.Glob(s.cfg.DeviceGlob)
		if err != nil {
			return nil, fmt.Errorf("gstcapture: glob %q: %w", s.cfg.DeviceGlob, err)
		}
		sort.Strings(paths)
		for _, p := range paths {
			devices = append(devices, Device{Path: p, Kind: s.cfg.DefaultKind})
		}
	}

	groups := make([]hellocamera.SourceGroup, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = deviceName(d.Path)
		}
		groups = append(groups, hellocamera.SourceGroup{
			ID:          d.Path,
			DisplayName: name,
			Sources:     hellocamera.StreamSources(d.Path, d.Kind),
		})
	}

	s.logger.Debug("gstcapture: enumerated devices", "count", len(groups))
	return groups, nil
}

// deviceName reads the V4L2 card name from sysfs, falling back to the path
func deviceName(path string) string {
	b, err := os.ReadFile(filepath.Join("/sys/class/video4linux", filepath.Base(path), "name"))
	if err != nil {
		return path
	}
	if name := strings.TrimSpace(string(b)); name != "" {
		return name + " (" + path + ")"
	}
	return path
}

// Initialize opens a session on group. Settings are accepted for interface
// compatibility; v4l2src always delivers system memory video only.
func (s *Source) Initialize(ctx context.Context, group hellocamera.SourceGroup, settings hellocamera.SessionSettings) (hellocamera.Session, error) {
	if group.ID == "" {
		return nil, fmt.Errorf("gstcapture: empty device path")
	}
	gst.Init(nil)
	return &session{device: group.ID, source: s}, nil
}

type session struct {
	device string
	source *Source
}

// CreateReader builds the capture pipeline for the device. Both stream
// types map to the same node.
func (s *session) CreateReader(ctx context.Context, sourceID string) (hellocamera.Reader, error) {
	if !strings.HasPrefix(sourceID, s.device+"#") {
		return nil, fmt.Errorf("gstcapture: source %q does not belong to %s", sourceID, s.device)
	}

	cfg := s.source.cfg
	caps := buildCaps(cfg.Width, cfg.Height, cfg.FPS, cfg.PixelKind)
	elements, err := createPipeline(s.device, caps)
	if err != nil {
		return nil, fmt.Errorf("gstcapture: %w", err)
	}

	s.source.logger.Info("gstcapture: pipeline created", "device", s.device, "caps", caps)
	return newReader(s.device, elements, cfg, s.source.logger), nil
}

func (s *session) Close() error { return nil }
