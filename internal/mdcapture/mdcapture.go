// Package mdcapture captures cameras through pion/mediadevices.
//
// A camera driver must be registered by the binary, e.g.
//
//	import _ "github.com/pion/mediadevices/pkg/driver/camera"
//
// Each video input device is one source group with a record and a preview
// entry of the configured kind. Frames are decoded by mediadevices and
// repacked into a raw layout (I420, GRAY8 or RGBA) on a reader goroutine
// that invokes the arrival handler.
package mdcapture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/CyberPuffer/HelloCamera"
)

// Config configures the mediadevices backend
type Config struct {
	// Kind is reported for every camera
	Kind hellocamera.SourceKind

	// Requested constraints; zero leaves the choice to the driver
	Width  uint
	Height uint
	FPS    uint

	Logger *slog.Logger
}

// Source implements hellocamera.Source
type Source struct {
	cfg    Config
	logger *slog.Logger

	enumerate    func() []mediadevices.MediaDeviceInfo
	getUserMedia func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
}

// New creates a mediadevices capture source
func New(cfg Config) *Source {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:          cfg,
		logger:       logger,
		enumerate:    mediadevices.EnumerateDevices,
		getUserMedia: mediadevices.GetUserMedia,
	}
}

// Enumerate lists video input devices
func (s *Source) Enumerate(ctx context.Context) ([]hellocamera.SourceGroup, error) {
	var groups []hellocamera.SourceGroup
	for _, d := range s.enumerate() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		name := d.Label
		if name == "" {
			name = d.DeviceID
		}
		groups = append(groups, hellocamera.SourceGroup{
			ID:          d.DeviceID,
			DisplayName: name,
			Sources:     hellocamera.StreamSources(d.DeviceID, s.cfg.Kind),
		})
	}

	s.logger.Debug("mdcapture: enumerated devices", "count", len(groups))
	return groups, nil
}

// Initialize binds a session to the device of group. The device is opened
// by CreateReader.
func (s *Source) Initialize(ctx context.Context, group hellocamera.SourceGroup, settings hellocamera.SessionSettings) (hellocamera.Session, error) {
	if group.ID == "" {
		return nil, fmt.Errorf("mdcapture: empty device id")
	}
	return &session{deviceID: group.ID, source: s}, nil
}

type session struct {
	deviceID string
	source   *Source
}

// CreateReader opens the camera and a raw frame reader on its video track
func (s *session) CreateReader(ctx context.Context, sourceID string) (hellocamera.Reader, error) {
	if !strings.HasPrefix(sourceID, s.deviceID+"#") {
		return nil, fmt.Errorf("mdcapture: source %q does not belong to %s", sourceID, s.deviceID)
	}

	cfg := s.source.cfg
	stream, err := s.source.getUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(s.deviceID)
			c.FrameFormat = prop.FrameFormat(frame.FormatI420)
			if cfg.Width > 0 && cfg.Height > 0 {
				c.Width = prop.Int(int32(cfg.Width))
				c.Height = prop.Int(int32(cfg.Height))
			}
			if cfg.FPS > 0 {
				c.FrameRate = prop.Float(float32(cfg.FPS))
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mdcapture: open %s: %w", s.deviceID, err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("mdcapture: %s: no video track", s.deviceID)
	}
	track := tracks[0]
	for _, extra := range tracks[1:] {
		extra.Close()
	}

	videoTrack, ok := track.(*mediadevices.VideoTrack)
	if !ok {
		track.Close()
		return nil, fmt.Errorf("mdcapture: %s: unexpected track type %T", s.deviceID, track)
	}

	s.source.logger.Info("mdcapture: camera opened", "device_id", s.deviceID, "track", track.ID())
	return newReader(track, videoTrack.NewReader(false), cfg.FPS, s.source.logger.With("device_id", s.deviceID)), nil
}

func (s *session) Close() error { return nil }
