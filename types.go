package hellocamera

import (
	"fmt"
	"strings"

	"github.com/CyberPuffer/HelloCamera/internal/luma"
)

// PixelKind identifies the memory layout of a raw video frame
type PixelKind int

const (
	// PixelUnknown is the zero value; also used as "auto" in output overrides
	PixelUnknown PixelKind = iota
	// PixelNV12 is 4:2:0 planar Y with interleaved UV (12 bpp)
	PixelNV12
	// PixelI420 is 4:2:0 fully planar YUV (12 bpp)
	PixelI420
	// PixelYUY2 is packed 4:2:2 Y0 U Y1 V (16 bpp)
	PixelYUY2
	// PixelUYVY is packed 4:2:2 U Y0 V Y1 (16 bpp)
	PixelUYVY
	// PixelGray8 is single channel luma (8 bpp)
	PixelGray8
	// PixelRGB is packed 24-bit RGB
	PixelRGB
	// PixelBGR is packed 24-bit BGR
	PixelBGR
	// PixelRGBA is packed 32-bit RGBA
	PixelRGBA
)

// BitsPerPixel returns the average number of bits one pixel occupies.
// Returns 0 for PixelUnknown.
func (p PixelKind) BitsPerPixel() uint {
	switch p {
	case PixelNV12, PixelI420:
		return 12
	case PixelYUY2, PixelUYVY:
		return 16
	case PixelGray8:
		return 8
	case PixelRGB, PixelBGR:
		return 24
	case PixelRGBA:
		return 32
	default:
		return 0
	}
}

// String returns the GStreamer video/x-raw format name
func (p PixelKind) String() string {
	switch p {
	case PixelNV12:
		return "NV12"
	case PixelI420:
		return "I420"
	case PixelYUY2:
		return "YUY2"
	case PixelUYVY:
		return "UYVY"
	case PixelGray8:
		return "GRAY8"
	case PixelRGB:
		return "RGB"
	case PixelBGR:
		return "BGR"
	case PixelRGBA:
		return "RGBA"
	default:
		return "unknown"
	}
}

// ParsePixelKind parses a pixel format name. Both GStreamer names and the
// capture-API subtype aliases (YUYV, J400, 24BG, ABGR, "raw ") are accepted.
// "auto" and "" map to PixelUnknown without error.
func ParsePixelKind(s string) (PixelKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AUTO":
		return PixelUnknown, nil
	case "NV12":
		return PixelNV12, nil
	case "I420", "YV12":
		return PixelI420, nil
	case "YUY2", "YUYV":
		return PixelYUY2, nil
	case "UYVY":
		return PixelUYVY, nil
	case "GRAY8", "GRAY", "J400":
		return PixelGray8, nil
	case "RGB", "RAW":
		return PixelRGB, nil
	case "BGR", "24BG":
		return PixelBGR, nil
	case "RGBA", "ABGR":
		return PixelRGBA, nil
	default:
		return PixelUnknown, fmt.Errorf("hellocamera: unknown pixel format %q", s)
	}
}

// SourceKind is the sensor category a capture source exposes
type SourceKind int

const (
	SourceColor SourceKind = iota
	SourceInfrared
	SourceDepth
)

func (k SourceKind) String() string {
	switch k {
	case SourceColor:
		return "color"
	case SourceInfrared:
		return "infrared"
	case SourceDepth:
		return "depth"
	default:
		return "unknown"
	}
}

// ParseSourceKind parses "color", "infrared" or "depth" (case-insensitive)
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "color", "colour":
		return SourceColor, nil
	case "infrared", "ir":
		return SourceInfrared, nil
	case "depth":
		return SourceDepth, nil
	default:
		return SourceColor, fmt.Errorf("hellocamera: unknown source kind %q", s)
	}
}

// StreamType is the purpose a source entry streams for
type StreamType int

const (
	StreamVideoRecord StreamType = iota
	StreamVideoPreview
)

func (t StreamType) String() string {
	switch t {
	case StreamVideoRecord:
		return "video_record"
	case StreamVideoPreview:
		return "video_preview"
	default:
		return "unknown"
	}
}

// ParseStreamType parses "video_record" or "video_preview"
func ParseStreamType(s string) (StreamType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video_record", "record":
		return StreamVideoRecord, nil
	case "video_preview", "preview":
		return StreamVideoPreview, nil
	default:
		return StreamVideoRecord, fmt.Errorf("hellocamera: unknown stream type %q", s)
	}
}

// DeviceFormat is the frame format negotiated with the capture device.
// Immutable once returned by CaptureSession.Init.
type DeviceFormat struct {
	Width              uint
	Height             uint
	FrameRateNumerator uint
	PixelKind          PixelKind
}

// PixelCount returns Width*Height
func (f DeviceFormat) PixelCount() uint64 {
	return uint64(f.Width) * uint64(f.Height)
}

// BufferSize returns ceil(Width*Height*bpp/8). The error wraps
// ErrBufferSizeCorruption when the exact byte count is not integral; the
// rounded-up size is still returned.
func (f DeviceFormat) BufferSize() (int, error) {
	size, err := luma.BufferSize(f.Width, f.Height, f.PixelKind.BitsPerPixel())
	if err != nil {
		return size, fmt.Errorf("%w: %s", ErrBufferSizeCorruption, err)
	}
	return size, nil
}

func (f DeviceFormat) String() string {
	return fmt.Sprintf("%dx%d@%d %s", f.Width, f.Height, f.FrameRateNumerator, f.PixelKind)
}

// FilterConfig controls the black-frame filter. Immutable after construction.
type FilterConfig struct {
	// RawOutput disables the black-frame filter entirely
	RawOutput bool
	// LumaSampleCount is the number of evenly strided samples per frame
	LumaSampleCount uint
	// LumaBase is the black level of the luma channel (16 for studio range)
	LumaBase uint8
	// LumaThreshold is added to LumaBase to obtain the rejection level
	LumaThreshold uint8
}

// DefaultFilterConfig returns the stock filter values (300 samples, 16 + 16)
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		LumaSampleCount: 300,
		LumaBase:        16,
		LumaThreshold:   16,
	}
}

// SelectionMode decides which of several matching source groups is used
type SelectionMode int

const (
	// SelectUnique requires exactly one matching group
	SelectUnique SelectionMode = iota
	// SelectFirst takes the first matching group in enumeration order
	SelectFirst
	// SelectIndex takes the group at Selection.Index among the matches
	SelectIndex
)

// Selection is the source-group selection policy passed to CaptureSession.Init
type Selection struct {
	Mode  SelectionMode
	Index int
}

// SelectByIndex returns an index-based Selection
func SelectByIndex(i int) Selection {
	return Selection{Mode: SelectIndex, Index: i}
}

func (s Selection) String() string {
	switch s.Mode {
	case SelectFirst:
		return "first"
	case SelectIndex:
		return fmt.Sprintf("index:%d", s.Index)
	default:
		return "unique"
	}
}

// State is the lifecycle state of a CaptureSession
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
