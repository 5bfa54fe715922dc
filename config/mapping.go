package config

import (
	"fmt"
	"log/slog"
	"strings"

	hellocamera "github.com/CyberPuffer/HelloCamera"
	"github.com/CyberPuffer/HelloCamera/internal/gstcapture"
	"github.com/CyberPuffer/HelloCamera/internal/gstoutput"
	"github.com/CyberPuffer/HelloCamera/internal/mdcapture"
	"github.com/CyberPuffer/HelloCamera/internal/metrics"
	"github.com/CyberPuffer/HelloCamera/internal/retry"
)

// Selection maps auto_select and camera_id to a selection policy.
// An explicit camera_id wins over auto_select.
func (c *Config) Selection() hellocamera.Selection {
	switch {
	case c.Capture.CameraID >= 0:
		return hellocamera.SelectByIndex(c.Capture.CameraID)
	case c.Capture.AutoSelect:
		return hellocamera.Selection{Mode: hellocamera.SelectFirst}
	default:
		return hellocamera.Selection{Mode: hellocamera.SelectUnique}
	}
}

// Relay builds the relay configuration. Observers and the logger are left
// to the caller.
func (c *Config) Relay() (hellocamera.RelayConfig, error) {
	kind, err := hellocamera.ParseSourceKind(c.Capture.Kind)
	if err != nil {
		return hellocamera.RelayConfig{}, fmt.Errorf("config: capture.kind: %w", err)
	}
	streamType, err := hellocamera.ParseStreamType(c.Capture.StreamType)
	if err != nil {
		return hellocamera.RelayConfig{}, fmt.Errorf("config: capture.stream_type: %w", err)
	}
	pixel, err := hellocamera.ParsePixelKind(c.Output.PixelFormat)
	if err != nil {
		return hellocamera.RelayConfig{}, fmt.Errorf("config: output.pixel_format: %w", err)
	}

	return hellocamera.RelayConfig{
		Kind:       kind,
		StreamType: streamType,
		Selection:  c.Selection(),
		Filter: hellocamera.FilterConfig{
			RawOutput:       c.Filter.RawOutput,
			LumaSampleCount: uint(max(c.Filter.LumaSample, 0)),
			LumaBase:        uint8(c.Filter.LumaBase),
			LumaThreshold:   uint8(c.Filter.LumaThreshold),
		},
		Settings: hellocamera.DefaultSessionSettings(),
		Output: hellocamera.OutputConfig{
			Width:     uint(c.Output.Width),
			Height:    uint(c.Output.Height),
			FPS:       uint(c.Output.FPS),
			PixelKind: pixel,
		},
		StatsInterval: c.Stats.Interval,
	}, nil
}

// GStreamerCapture builds the gstreamer backend configuration
func (c *Config) GStreamerCapture(logger *slog.Logger, onFault func(error)) gstcapture.Config {
	kind, _ := hellocamera.ParseSourceKind(c.Capture.Kind)

	devices := make([]gstcapture.Device, 0, len(c.Capture.Devices))
	for _, d := range c.Capture.Devices {
		dk := kind
		if d.Kind != "" {
			dk, _ = hellocamera.ParseSourceKind(d.Kind)
		}
		devices = append(devices, gstcapture.Device{Path: d.Path, Name: d.Name, Kind: dk})
	}

	return gstcapture.Config{
		Devices:       devices,
		DeviceGlob:    c.Capture.DeviceGlob,
		DefaultKind:   kind,
		FormatTimeout: c.Capture.FormatTimeout,
		OnFault:       onFault,
		Logger:        logger,
	}
}

// MediaDevicesCapture builds the mediadevices backend configuration
func (c *Config) MediaDevicesCapture(logger *slog.Logger) mdcapture.Config {
	kind, _ := hellocamera.ParseSourceKind(c.Capture.Kind)
	return mdcapture.Config{Kind: kind, Logger: logger}
}

// OutputSink builds the virtual camera sink configuration
func (c *Config) OutputSink(logger *slog.Logger) gstoutput.Config {
	return gstoutput.Config{
		Device:  c.Output.Device,
		Element: c.Output.Element,
		Logger:  logger,
	}
}

// MetricsServer builds the monitoring server configuration
func (c *Config) MetricsServer() metrics.ServerConfig {
	return metrics.ServerConfig{
		Addr:      c.Monitoring.MetricsAddr,
		URLPrefix: c.Monitoring.URLPrefix,
		Profiling: c.Monitoring.Profiling,
	}
}

// RetryPolicy builds the backoff between relay attempts
func (c *Config) RetryPolicy() retry.Config {
	return retry.Config{
		MaxRetries: c.Retry.MaxRetries,
		Delay:      c.Retry.Delay,
		MaxDelay:   c.Retry.MaxDelay,
	}
}

// LogLevel returns the configured slog level
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

// JSONLogs reports whether log.format is json
func (c *Config) JSONLogs() bool {
	return strings.EqualFold(c.Log.Format, "json")
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
