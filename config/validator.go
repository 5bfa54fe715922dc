package config

import (
	"fmt"
	"strings"

	hellocamera "github.com/CyberPuffer/HelloCamera"
)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	switch cfg.Capture.Backend {
	case BackendGStreamer, BackendMediaDevices:
	default:
		return fmt.Errorf("config: capture.backend must be %q or %q, got %q",
			BackendGStreamer, BackendMediaDevices, cfg.Capture.Backend)
	}
	if _, err := hellocamera.ParseSourceKind(cfg.Capture.Kind); err != nil {
		return fmt.Errorf("config: capture.kind: %w", err)
	}
	if _, err := hellocamera.ParseStreamType(cfg.Capture.StreamType); err != nil {
		return fmt.Errorf("config: capture.stream_type: %w", err)
	}
	if cfg.Capture.CameraID < -1 {
		return fmt.Errorf("config: capture.camera_id must be >= -1, got %d", cfg.Capture.CameraID)
	}
	for i, d := range cfg.Capture.Devices {
		if d.Path == "" {
			return fmt.Errorf("config: capture.devices[%d]: path is required", i)
		}
		if d.Kind == "" {
			continue
		}
		if _, err := hellocamera.ParseSourceKind(d.Kind); err != nil {
			return fmt.Errorf("config: capture.devices[%d].kind: %w", i, err)
		}
	}

	if !cfg.Filter.RawOutput && cfg.Filter.LumaSample <= 0 {
		return fmt.Errorf("config: filter.luma_sample must be > 0, got %d", cfg.Filter.LumaSample)
	}
	if err := byteRange("filter.luma_base", cfg.Filter.LumaBase); err != nil {
		return err
	}
	if err := byteRange("filter.luma_threshold", cfg.Filter.LumaThreshold); err != nil {
		return err
	}

	if cfg.Output.Width < 0 || cfg.Output.Height < 0 {
		return fmt.Errorf("config: output size must be >= 0, got %dx%d", cfg.Output.Width, cfg.Output.Height)
	}
	if (cfg.Output.Width == 0) != (cfg.Output.Height == 0) {
		return fmt.Errorf("config: output.width and output.height must be set together")
	}
	if cfg.Output.FPS < 0 {
		return fmt.Errorf("config: output.fps must be >= 0, got %d", cfg.Output.FPS)
	}
	if _, err := hellocamera.ParsePixelKind(cfg.Output.PixelFormat); err != nil {
		return fmt.Errorf("config: output.pixel_format: %w", err)
	}

	if cfg.Stats.Interval < 0 {
		return fmt.Errorf("config: stats.interval must be >= 0, got %s", cfg.Stats.Interval)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", cfg.Log.Format)
	}
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}

	if cfg.Retry.Delay < 0 || cfg.Retry.MaxDelay < 0 {
		return fmt.Errorf("config: retry delays must be >= 0")
	}
	return nil
}

func byteRange(key string, v int) error {
	if v < 0 || v > 255 {
		return fmt.Errorf("config: %s must be within 0..255, got %d", key, v)
	}
	return nil
}
