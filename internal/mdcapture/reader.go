package mdcapture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"

	"github.com/CyberPuffer/HelloCamera"
)

// reader implements hellocamera.Reader over a mediadevices video reader
type reader struct {
	track  mediadevices.Track
	frames video.Reader
	fps    uint
	logger *slog.Logger

	mu      sync.Mutex
	handler hellocamera.FrameArrivedHandler
	format  *hellocamera.DeviceFormat
	stop    chan struct{}
	done    chan struct{} // closed when the last reader goroutine exits

	stopTimeout time.Duration

	// scratch is reused by the single reader goroutine
	scratch []byte

	frameCount uint64
	readErrors uint64
}

func newReader(track mediadevices.Track, frames video.Reader, fps uint, logger *slog.Logger) *reader {
	return &reader{
		track:  track,
		frames: frames,
		fps:    fps,
		logger: logger,

		stopTimeout: 3 * time.Second,
	}
}

// Format reads one frame and derives the format from it. Cached.
func (r *reader) Format() (hellocamera.DeviceFormat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.format != nil {
		return *r.format, nil
	}
	if r.stop != nil || r.lingering() {
		return hellocamera.DeviceFormat{}, fmt.Errorf("mdcapture: format query while running")
	}

	img, release, err := r.frames.Read()
	if err != nil {
		return hellocamera.DeviceFormat{}, fmt.Errorf("mdcapture: read first frame: %w", err)
	}
	format, err := formatOf(img, r.fps)
	release()
	if err != nil {
		return hellocamera.DeviceFormat{}, fmt.Errorf("mdcapture: %w", err)
	}

	r.logger.Info("mdcapture: format negotiated", "format", format.String())
	r.format = &format
	return format, nil
}

func (r *reader) SetFrameArrivedHandler(h hellocamera.FrameArrivedHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Start launches the reader goroutine. A goroutine left parked in Read by
// a timed out Stop is waited for first, bounded by ctx.
func (r *reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stop != nil {
		return nil
	}
	if r.handler == nil {
		return fmt.Errorf("mdcapture: no frame handler registered")
	}
	if r.done != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return fmt.Errorf("mdcapture: previous reader still running: %w", ctx.Err())
		}
	}

	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.handler, r.stop, r.done)

	r.logger.Info("mdcapture: reader started")
	return nil
}

func (r *reader) run(h hellocamera.FrameArrivedHandler, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		img, release, err := r.frames.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.Info("mdcapture: track ended")
				return
			}
			n := atomic.AddUint64(&r.readErrors, 1)
			if n == 1 || n%100 == 0 {
				r.logger.Warn("mdcapture: read failed", "error", err, "read_errors", n)
			}
			// Avoid spinning on a persistently failing driver
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		atomic.AddUint64(&r.frameCount, 1)
		ev := &imageEvent{img: img, release: release, scratch: &r.scratch}
		h.OnFrameArrived(ev)
		ev.finish()
	}
}

// Stop signals the reader goroutine and waits for it (timeout 3s). A
// goroutine parked in Read exits after the next frame.
func (r *reader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stop == nil {
		return nil
	}
	close(r.stop)
	r.stop = nil

	select {
	case <-r.done:
		r.logger.Info("mdcapture: reader stopped", "frames", atomic.LoadUint64(&r.frameCount))
	case <-time.After(r.stopTimeout):
		r.logger.Warn("mdcapture: stop timeout exceeded, reader goroutine may still be running")
	}
	return nil
}

// lingering reports whether a stopped goroutine has not exited yet; caller
// holds mu
func (r *reader) lingering() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Close stops the reader and closes the track
func (r *reader) Close() error {
	if err := r.Stop(); err != nil {
		return err
	}
	if err := r.track.Close(); err != nil {
		return fmt.Errorf("mdcapture: close track: %w", err)
	}
	return nil
}

// imageEvent is one decoded frame. The handler may or may not acquire it;
// finish releases the decoder buffer either way.
type imageEvent struct {
	img     image.Image
	release func()
	scratch *[]byte

	released bool
}

// AcquireFrame packs the image into the reader's scratch buffer. The data
// is valid until release.
func (e *imageEvent) AcquireFrame() ([]byte, func(), bool) {
	if e.img == nil || e.img.Bounds().Empty() {
		return nil, nil, false
	}
	data, err := pack(e.img, *e.scratch)
	if err != nil {
		return nil, nil, false
	}
	*e.scratch = data
	return data, e.finish, true
}

func (e *imageEvent) finish() {
	if e.released {
		return
	}
	e.released = true
	if e.release != nil {
		e.release()
	}
}
