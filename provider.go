package hellocamera

import (
	"context"
)

// SourceInfo is one stream endpoint exposed by a capture device
type SourceInfo struct {
	ID         string
	Kind       SourceKind
	StreamType StreamType
}

// SourceGroup is a capture device and the stream endpoints it exposes
type SourceGroup struct {
	ID          string
	DisplayName string
	Sources     []SourceInfo
}

// HasKind reports whether any source in the group is of kind k
func (g SourceGroup) HasKind(k SourceKind) bool {
	for _, s := range g.Sources {
		if s.Kind == k {
			return true
		}
	}
	return false
}

// SessionSettings are passed to Source.Initialize
type SessionSettings struct {
	// CPUMemory asks the driver to deliver frames in system memory
	CPUMemory bool
	// VideoOnly disables audio streaming on devices that expose both
	VideoOnly bool
}

// DefaultSessionSettings returns CPU memory, video only
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{CPUMemory: true, VideoOnly: true}
}

// Source is the capture device collaborator.
//
// Implementations must guarantee:
//   - Enumerate is safe to call before any session exists
//   - Initialize does not start frame delivery
type Source interface {
	// Enumerate lists the available source groups
	Enumerate(ctx context.Context) ([]SourceGroup, error)

	// Initialize opens a capture session on group
	Initialize(ctx context.Context, group SourceGroup, settings SessionSettings) (Session, error)
}

// Session is an opened capture device
type Session interface {
	// CreateReader binds a frame reader to the source entry sourceID
	CreateReader(ctx context.Context, sourceID string) (Reader, error)

	// Close releases the device
	Close() error
}

// Reader delivers frame-arrival events from one source entry.
//
// The arrival handler is invoked on an execution context owned by the
// implementation (a driver thread, a GStreamer streaming thread, a reader
// goroutine) and may run concurrently with Stop.
type Reader interface {
	// Format returns the negotiated frame format
	Format() (DeviceFormat, error)

	// SetFrameArrivedHandler registers the arrival handler. Must be called
	// before Start.
	SetFrameArrivedHandler(h FrameArrivedHandler)

	// Start arms frame delivery
	Start(ctx context.Context) error

	// Stop halts frame delivery. The reader may be started again.
	Stop() error

	// Close releases the reader
	Close() error
}

// FrameEvent is one arrival notification from a Reader.
type FrameEvent interface {
	// AcquireFrame tries to obtain the frame payload. ok is false when the
	// driver delivered an empty or dropped frame. data is only valid until
	// release is called; release is nil when ok is false.
	AcquireFrame() (data []byte, release func(), ok bool)
}

// FrameArrivedHandler receives arrival events from a Reader
type FrameArrivedHandler interface {
	OnFrameArrived(ev FrameEvent)
}

// FrameArrivedFunc adapts a function to FrameArrivedHandler
type FrameArrivedFunc func(ev FrameEvent)

// OnFrameArrived calls f(ev)
func (f FrameArrivedFunc) OnFrameArrived(ev FrameEvent) { f(ev) }

// OutputFormat is the resolved format handed to Sink.Open.
type OutputFormat struct {
	// Source is the format of the buffers passed to SinkHandle.Send
	Source DeviceFormat

	// Width, Height and PixelKind describe what the sink emits
	Width     uint
	Height    uint
	PixelKind PixelKind

	// FPS is the target send rate
	FPS uint
}

// Sink is the virtual-output collaborator
type Sink interface {
	// Open prepares the output for format
	Open(ctx context.Context, format OutputFormat) (SinkHandle, error)
}

// SinkHandle is an opened output.
type SinkHandle interface {
	// Send submits one frame. May block until the next send slot is due.
	// The handle does not retain buf after returning.
	Send(buf []byte) error

	// Close releases the output
	Close() error
}

// StreamSources returns the record and preview entries a single-stream
// device exposes for kind. Entry IDs are groupID#<stream type>.
func StreamSources(groupID string, kind SourceKind) []SourceInfo {
	return []SourceInfo{
		{ID: groupID + "#" + StreamVideoRecord.String(), Kind: kind, StreamType: StreamVideoRecord},
		{ID: groupID + "#" + StreamVideoPreview.String(), Kind: kind, StreamType: StreamVideoPreview},
	}
}
