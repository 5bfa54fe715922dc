package hellocamera

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// quietLogger discards output so test logs stay readable
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEvent is a FrameEvent with a fixed payload
type fakeEvent struct {
	data     []byte
	ok       bool
	released *atomic.Int32
}

func (e fakeEvent) AcquireFrame() ([]byte, func(), bool) {
	if !e.ok {
		return nil, nil, false
	}
	return e.data, func() {
		if e.released != nil {
			e.released.Add(1)
		}
	}, true
}

func frameOf(size int, value byte) fakeEvent {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = value
	}
	return fakeEvent{data: buf, ok: true}
}

// fakeSource hands out a single fakeSession
type fakeSource struct {
	groups  []SourceGroup
	enumErr error
	initErr error
	session *fakeSession

	initialized SourceGroup
}

func (s *fakeSource) Enumerate(ctx context.Context) ([]SourceGroup, error) {
	return s.groups, s.enumErr
}

func (s *fakeSource) Initialize(ctx context.Context, group SourceGroup, settings SessionSettings) (Session, error) {
	if s.initErr != nil {
		return nil, s.initErr
	}
	s.initialized = group
	return s.session, nil
}

type fakeSession struct {
	reader    *fakeReader
	createErr error
	closed    atomic.Bool

	sourceID string
}

func (s *fakeSession) CreateReader(ctx context.Context, sourceID string) (Reader, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.sourceID = sourceID
	return s.reader, nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeReader records lifecycle calls. With produce set, Start launches a
// goroutine that emits frames every period until Stop, playing the role of
// a driver thread.
type fakeReader struct {
	format    DeviceFormat
	formatErr error
	startErr  error

	produce func(seq int) FrameEvent
	period  time.Duration

	mu       sync.Mutex
	handler  FrameArrivedHandler
	starts   int
	stops    int
	closed   bool
	stopProd chan struct{}
	prodDone chan struct{}
}

func (r *fakeReader) Format() (DeviceFormat, error) { return r.format, r.formatErr }

func (r *fakeReader) SetFrameArrivedHandler(h FrameArrivedHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

func (r *fakeReader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.starts++
	if r.produce != nil {
		r.stopProd = make(chan struct{})
		r.prodDone = make(chan struct{})
		go r.run(r.handler, r.stopProd, r.prodDone)
	}
	return nil
}

func (r *fakeReader) run(h FrameArrivedHandler, stop, done chan struct{}) {
	defer close(done)
	period := r.period
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.OnFrameArrived(r.produce(i))
		}
	}
}

func (r *fakeReader) Stop() error {
	r.mu.Lock()
	r.stops++
	stop, done := r.stopProd, r.prodDone
	r.stopProd, r.prodDone = nil, nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// emit invokes the registered handler synchronously
func (r *fakeReader) emit(ev FrameEvent) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h.OnFrameArrived(ev)
	}
}

func (r *fakeReader) counts() (starts, stops int, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops, r.closed
}

// irGroup returns a group exposing one infrared record source
func irGroup(id string) SourceGroup {
	return SourceGroup{
		ID:          id,
		DisplayName: "camera " + id,
		Sources: []SourceInfo{
			{ID: id + "/ir", Kind: SourceInfrared, StreamType: StreamVideoRecord},
			{ID: id + "/color", Kind: SourceColor, StreamType: StreamVideoRecord},
		},
	}
}

// gray10x10 is a 100-byte GRAY8 format
var gray10x10 = DeviceFormat{Width: 10, Height: 10, FrameRateNumerator: 30, PixelKind: PixelGray8}

// testFilter samples 5 bytes at stride 20 with a 32 threshold
var testFilter = FilterConfig{LumaSampleCount: 5, LumaBase: 16, LumaThreshold: 16}

func newFakeSource(format DeviceFormat, groups ...SourceGroup) (*fakeSource, *fakeReader) {
	reader := &fakeReader{format: format}
	return &fakeSource{
		groups:  groups,
		session: &fakeSession{reader: reader},
	}, reader
}

// fakeSink collects every buffer sent through its handle
type fakeSink struct {
	openErr error
	sendErr error

	mu     sync.Mutex
	opened OutputFormat
	frames [][]byte
	closed bool
	sent   chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{sent: make(chan struct{}, 1024)}
}

func (s *fakeSink) Open(ctx context.Context, format OutputFormat) (SinkHandle, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	s.opened = format
	s.mu.Unlock()
	return s, nil
}

func (s *fakeSink) Send(buf []byte) error {
	s.mu.Lock()
	s.frames = append(s.frames, buf)
	s.mu.Unlock()
	select {
	case s.sent <- struct{}{}:
	default:
	}
	return s.sendErr
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

var errFake = errors.New("fake failure")
