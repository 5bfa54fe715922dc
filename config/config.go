// Package config loads the hellocamera configuration from a YAML file,
// HELLOCAMERA_* environment variables and command line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kkyr/fig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment overrides, e.g.
// HELLOCAMERA_FILTER_LUMA_SAMPLE=500
const EnvPrefix = "HELLOCAMERA"

// DefaultFile is the config file name searched for when no path is given
const DefaultFile = "hellocamera.yaml"

// Backend names accepted by capture.backend
const (
	BackendGStreamer    = "gstreamer"
	BackendMediaDevices = "mediadevices"
)

// Config is the complete hellocamera configuration
type Config struct {
	Capture    CaptureConfig    `fig:"capture" yaml:"capture"`
	Filter     FilterConfig     `fig:"filter" yaml:"filter"`
	Output     OutputConfig     `fig:"output" yaml:"output"`
	Stats      StatsConfig      `fig:"stats" yaml:"stats"`
	Monitoring MonitoringConfig `fig:"monitoring" yaml:"monitoring"`
	Log        LogConfig        `fig:"log" yaml:"log"`
	Retry      RetryConfig      `fig:"retry" yaml:"retry"`
}

// CaptureConfig selects the capture backend and device
type CaptureConfig struct {
	Backend    string `fig:"backend" yaml:"backend"`         // gstreamer, mediadevices
	Kind       string `fig:"kind" yaml:"kind"`               // color, infrared, depth
	StreamType string `fig:"stream_type" yaml:"stream_type"` // video_record, video_preview
	AutoSelect bool   `fig:"auto_select" yaml:"auto_select"` // take the first matching camera
	CameraID   int    `fig:"camera_id" yaml:"camera_id"`     // index among matching cameras, -1 = unset

	// Devices pins the gstreamer backend to explicit V4L2 nodes
	Devices    []DeviceConfig `fig:"devices" yaml:"devices,omitempty"`
	DeviceGlob string         `fig:"device_glob" yaml:"device_glob,omitempty"`
	// FormatTimeout bounds the wait for the first sample at init
	FormatTimeout time.Duration `fig:"format_timeout" yaml:"format_timeout"`
}

// DeviceConfig is one explicitly configured capture node
type DeviceConfig struct {
	Path string `fig:"path" yaml:"path"`
	Name string `fig:"name" yaml:"name,omitempty"`
	Kind string `fig:"kind" yaml:"kind,omitempty"` // defaults to capture.kind
}

// FilterConfig controls the black-frame filter
type FilterConfig struct {
	RawOutput     bool `fig:"raw_output" yaml:"raw_output"`
	LumaSample    int  `fig:"luma_sample" yaml:"luma_sample"`
	LumaBase      int  `fig:"luma_base" yaml:"luma_base"`
	LumaThreshold int  `fig:"luma_threshold" yaml:"luma_threshold"`
}

// OutputConfig describes the virtual camera. Zero sizes and fps follow the
// capture device.
type OutputConfig struct {
	Device      string `fig:"device" yaml:"device"`
	Element     string `fig:"element" yaml:"element"`
	Width       int    `fig:"width" yaml:"width"`
	Height      int    `fig:"height" yaml:"height"`
	FPS         int    `fig:"fps" yaml:"fps"`
	PixelFormat string `fig:"pixel_format" yaml:"pixel_format"` // auto, NV12, I420, YUY2, ...
}

// StatsConfig controls the periodic throughput report
type StatsConfig struct {
	Interval time.Duration `fig:"interval" yaml:"interval"`
}

// MonitoringConfig controls the metrics HTTP server. An empty MetricsAddr
// disables it.
type MonitoringConfig struct {
	MetricsAddr string `fig:"metrics_addr" yaml:"metrics_addr"`
	URLPrefix   string `fig:"url_prefix" yaml:"url_prefix,omitempty"`
	Profiling   bool   `fig:"profiling" yaml:"profiling"`
}

// LogConfig controls the process logger
type LogConfig struct {
	Level  string `fig:"level" yaml:"level"`   // debug, info, warn, error
	Format string `fig:"format" yaml:"format"` // text, json
}

// RetryConfig is the backoff between relay attempts
type RetryConfig struct {
	MaxRetries int           `fig:"max_retries" yaml:"max_retries"` // < 0 retries forever
	Delay      time.Duration `fig:"delay" yaml:"delay"`
	MaxDelay   time.Duration `fig:"max_delay" yaml:"max_delay"`
}

// Default returns the stock configuration: infrared record stream, black
// frame filter on with 300 samples at 16+16, 30 fps output on the
// v4l2loopback node.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Backend:       BackendGStreamer,
			Kind:          "infrared",
			StreamType:    "video_record",
			CameraID:      -1,
			FormatTimeout: 5 * time.Second,
		},
		Filter: FilterConfig{
			LumaSample:    300,
			LumaBase:      16,
			LumaThreshold: 16,
		},
		Output: OutputConfig{
			Device:      "/dev/video10",
			Element:     "v4l2sink",
			FPS:         30,
			PixelFormat: "auto",
		},
		Stats: StatsConfig{Interval: time.Second},
		Log:   LogConfig{Level: "info", Format: "text"},
		Retry: RetryConfig{
			MaxRetries: 5,
			Delay:      time.Second,
			MaxDelay:   30 * time.Second,
		},
	}
}

// Load reads the configuration. With an empty path the working directory,
// /etc/hellocamera and ~/.config/hellocamera are searched for DefaultFile;
// a missing file there is not an error and the defaults are used.
// Environment overrides are applied either way, then the result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, dirs := DefaultFile, []string{".", "/etc/hellocamera"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "hellocamera"))
	}
	if path != "" {
		file, dirs = filepath.Base(path), []string{filepath.Dir(path)}
	}

	err := fig.Load(cfg, fig.File(file), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) && path == "" {
		cfg, err = loadDefaults()
	}
	if err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDefaults applies environment overrides to Default when no config
// file exists. fig only reads the environment alongside a file, so the
// defaults are rendered into a temporary one.
func loadDefaults() (*Config, error) {
	dir, err := os.MkdirTemp("", "hellocamera-config-")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	f, err := os.Create(filepath.Join(dir, DefaultFile))
	if err != nil {
		return nil, err
	}
	err = Dump(f, Default())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := fig.Load(cfg, fig.File(DefaultFile), fig.Dirs(dir), fig.UseEnv(EnvPrefix)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithFlags registers command line overrides on fs, bound to c. When the
// flags are parsed before Load, use ApplyFlags to carry them over to the
// loaded config.
func (c *Config) WithFlags(fs *pflag.FlagSet) *Config {
	fs.StringVar(&c.Capture.Backend, "backend", c.Capture.Backend, "Capture backend (gstreamer, mediadevices)")
	fs.StringVar(&c.Capture.Kind, "kind", c.Capture.Kind, "Source kind (color, infrared, depth)")
	fs.StringVar(&c.Capture.StreamType, "stream-type", c.Capture.StreamType, "Stream type (video_record, video_preview)")
	fs.BoolVar(&c.Capture.AutoSelect, "auto-select", c.Capture.AutoSelect, "Use the first matching camera")
	fs.IntVar(&c.Capture.CameraID, "camera-id", c.Capture.CameraID, "Index among matching cameras (-1 = unset)")
	fs.BoolVar(&c.Filter.RawOutput, "raw", c.Filter.RawOutput, "Disable the black-frame filter")
	fs.StringVar(&c.Output.Device, "output", c.Output.Device, "Virtual camera device")
	fs.IntVar(&c.Output.FPS, "fps", c.Output.FPS, "Output frame rate (0 = device rate)")
	fs.StringVar(&c.Monitoring.MetricsAddr, "metrics", c.Monitoring.MetricsAddr, "Metrics listen address, empty disables")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "Log level (debug, info, warn, error)")
	return c
}

// ApplyFlags copies the flags changed on fs onto c and validates the result.
// fs must carry the flags registered by WithFlags.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	target := pflag.NewFlagSet("config", pflag.ContinueOnError)
	c.WithFlags(target)
	fs.Visit(func(f *pflag.Flag) {
		if err != nil || target.Lookup(f.Name) == nil {
			return
		}
		if serr := target.Set(f.Name, f.Value.String()); serr != nil {
			err = fmt.Errorf("config: flag --%s: %w", f.Name, serr)
		}
	})
	if err != nil {
		return err
	}
	return Validate(c)
}

// Dump writes the effective configuration as YAML
func Dump(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: dump: %w", err)
	}
	return enc.Close()
}
