package hellocamera

import (
	"errors"

	"github.com/CyberPuffer/HelloCamera/internal/luma"
)

// Initialization errors are fatal to the session and returned by Init/Start.
// Per-frame outcomes (empty frame, black frame) are counted, never returned.
var (
	// ErrNoDeviceFound: no source group exposes a source of the selected kind
	ErrNoDeviceFound = errors.New("hellocamera: no device found")

	// ErrInvalidSelection: an explicit group index is out of range
	ErrInvalidSelection = errors.New("hellocamera: invalid device selection")

	// ErrNoSourceFound: the chosen group has no source of the selected kind and type
	ErrNoSourceFound = errors.New("hellocamera: no source found")

	// ErrAmbiguousSource: more than one equally qualified candidate and no
	// policy to pick one
	ErrAmbiguousSource = errors.New("hellocamera: ambiguous source")

	// ErrFormatUnavailable: the reader did not report a usable format
	ErrFormatUnavailable = errors.New("hellocamera: format unavailable")

	// ErrNotInitialized: Start called before a successful Init
	ErrNotInitialized = errors.New("hellocamera: session not initialized")

	// ErrInvalidSampleConfig: luma sample count yields no usable stride
	ErrInvalidSampleConfig = luma.ErrInvalidSampleConfig

	// ErrBufferSizeCorruption: width*height*bpp is not byte aligned. Reported
	// per frame; the frame is dropped.
	ErrBufferSizeCorruption = errors.New("hellocamera: buffer size corruption")
)
