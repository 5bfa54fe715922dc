package hellocamera

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSession(src Source, filter FilterConfig) *CaptureSession {
	return NewCaptureSession(src, SessionConfig{
		Filter:   filter,
		Settings: DefaultSessionSettings(),
		Logger:   quietLogger(),
	})
}

// TestInit_SelectionErrors covers the group and source selection taxonomy
func TestInit_SelectionErrors(t *testing.T) {
	colorOnly := SourceGroup{ID: "c", Sources: []SourceInfo{
		{ID: "c/color", Kind: SourceColor, StreamType: StreamVideoRecord},
	}}
	previewOnly := SourceGroup{ID: "p", Sources: []SourceInfo{
		{ID: "p/ir", Kind: SourceInfrared, StreamType: StreamVideoPreview},
	}}
	twoIR := SourceGroup{ID: "d", Sources: []SourceInfo{
		{ID: "d/ir0", Kind: SourceInfrared, StreamType: StreamVideoRecord},
		{ID: "d/ir1", Kind: SourceInfrared, StreamType: StreamVideoRecord},
	}}

	tests := []struct {
		name    string
		groups  []SourceGroup
		sel     Selection
		wantErr error
	}{
		{"no_groups", nil, Selection{}, ErrNoDeviceFound},
		{"no_matching_kind", []SourceGroup{colorOnly}, Selection{}, ErrNoDeviceFound},
		{"two_groups_unique", []SourceGroup{irGroup("a"), irGroup("b")}, Selection{}, ErrAmbiguousSource},
		{"index_out_of_range", []SourceGroup{irGroup("a"), irGroup("b")}, SelectByIndex(2), ErrInvalidSelection},
		{"negative_index", []SourceGroup{irGroup("a")}, SelectByIndex(-1), ErrInvalidSelection},
		{"wrong_stream_type", []SourceGroup{previewOnly}, Selection{}, ErrNoSourceFound},
		{"two_sources_in_group", []SourceGroup{twoIR}, Selection{}, ErrAmbiguousSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, _ := newFakeSource(gray10x10, tt.groups...)
			s := newTestSession(src, testFilter)

			_, err := s.Init(context.Background(), SourceInfrared, StreamVideoRecord, tt.sel)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Init() error = %v, want %v", err, tt.wantErr)
			}
			if s.State() != StateFailed {
				t.Errorf("State() = %s, want failed", s.State())
			}
		})
	}
}

// TestInit_GroupSelection verifies which group each policy picks
func TestInit_GroupSelection(t *testing.T) {
	tests := []struct {
		name      string
		sel       Selection
		wantGroup string
	}{
		{"first", Selection{Mode: SelectFirst}, "a"},
		{"index_0", SelectByIndex(0), "a"},
		{"index_1", SelectByIndex(1), "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, _ := newFakeSource(gray10x10, irGroup("a"), irGroup("b"))
			s := newTestSession(src, testFilter)

			format, err := s.Init(context.Background(), SourceInfrared, StreamVideoRecord, tt.sel)
			if err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			if format != gray10x10 {
				t.Errorf("format = %v, want %v", format, gray10x10)
			}
			if src.initialized.ID != tt.wantGroup {
				t.Errorf("initialized group = %q, want %q", src.initialized.ID, tt.wantGroup)
			}
			if got := src.session.sourceID; got != tt.wantGroup+"/ir" {
				t.Errorf("reader source = %q, want %q", got, tt.wantGroup+"/ir")
			}
			if s.State() != StateReady {
				t.Errorf("State() = %s, want ready", s.State())
			}
		})
	}
}

// TestInit_SingleGroupIgnoresPolicy verifies a lone match needs no policy
func TestInit_SingleGroupIgnoresPolicy(t *testing.T) {
	src, _ := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, testFilter)

	if _, err := s.Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
}

// TestInit_FormatUnavailable covers reader format failures
func TestInit_FormatUnavailable(t *testing.T) {
	tests := []struct {
		name      string
		format    DeviceFormat
		formatErr error
	}{
		{"reader_error", DeviceFormat{}, errFake},
		{"zero_width", DeviceFormat{Height: 10, PixelKind: PixelGray8}, nil},
		{"unknown_pixel_kind", DeviceFormat{Width: 10, Height: 10}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, reader := newFakeSource(tt.format, irGroup("a"))
			reader.formatErr = tt.formatErr
			s := newTestSession(src, testFilter)

			_, err := s.Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{})
			if !errors.Is(err, ErrFormatUnavailable) {
				t.Fatalf("Init() error = %v, want ErrFormatUnavailable", err)
			}

			// Failed init releases what it acquired
			if _, _, closed := reader.counts(); !closed {
				t.Error("reader not closed after failed init")
			}
			if !src.session.closed.Load() {
				t.Error("session not closed after failed init")
			}
		})
	}
}

// TestInit_InvalidSampleConfig rejects sample counts without a usable stride
func TestInit_InvalidSampleConfig(t *testing.T) {
	for _, n := range []uint{0, 100, 1000} {
		src, _ := newFakeSource(gray10x10, irGroup("a"))
		filter := testFilter
		filter.LumaSampleCount = n
		s := newTestSession(src, filter)

		_, err := s.Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{})
		if !errors.Is(err, ErrInvalidSampleConfig) {
			t.Errorf("sample count %d: Init() error = %v, want ErrInvalidSampleConfig", n, err)
		}
	}

	// Raw output never consults the sample count
	src, _ := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, FilterConfig{RawOutput: true})
	if _, err := s.Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Errorf("raw output Init() error = %v", err)
	}
}

// TestInit_CollaboratorErrors verifies collaborator failures are wrapped
func TestInit_CollaboratorErrors(t *testing.T) {
	t.Run("enumerate", func(t *testing.T) {
		src, _ := newFakeSource(gray10x10)
		src.enumErr = errFake
		_, err := newTestSession(src, testFilter).Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{})
		if !errors.Is(err, errFake) {
			t.Errorf("Init() error = %v, want wrapped errFake", err)
		}
	})

	t.Run("create_reader", func(t *testing.T) {
		src, _ := newFakeSource(gray10x10, irGroup("a"))
		src.session.createErr = errFake
		_, err := newTestSession(src, testFilter).Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{})
		if !errors.Is(err, errFake) {
			t.Errorf("Init() error = %v, want wrapped errFake", err)
		}
		if !src.session.closed.Load() {
			t.Error("session not closed after reader failure")
		}
	})

	t.Run("init_twice", func(t *testing.T) {
		src, _ := newFakeSource(gray10x10, irGroup("a"))
		s := newTestSession(src, testFilter)
		if _, err := s.Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := s.Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{}); err == nil {
			t.Error("second Init() succeeded")
		}
	})
}

// TestStart_Lifecycle covers NotInitialized, idempotence and restart
func TestStart_Lifecycle(t *testing.T) {
	src, reader := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, testFilter)
	ctx := context.Background()

	if err := s.Start(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Start() before Init error = %v, want ErrNotInitialized", err)
	}

	if _, err := s.Init(ctx, SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if starts, _, _ := reader.counts(); starts != 1 {
		t.Errorf("reader started %d times, want 1", starts)
	}
	if s.State() != StateRunning {
		t.Errorf("State() = %s, want running", s.State())
	}

	first := s.Slot()
	s.Stop()
	if s.State() != StateStopped {
		t.Errorf("State() after Stop = %s, want stopped", s.State())
	}
	if !first.Stopped() {
		t.Error("slot not marked stopped")
	}

	// Restart from Stopped gets a fresh slot
	if err := s.Start(ctx); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	second := s.Slot()
	if second == first || second.Stopped() {
		t.Error("restart did not install a fresh slot")
	}
	s.Stop()

	t.Log("✅ Start is guarded, idempotent and restartable")
}

// TestStart_FailedSession verifies a failed session cannot start
func TestStart_FailedSession(t *testing.T) {
	src, _ := newFakeSource(gray10x10)
	s := newTestSession(src, testFilter)
	_, _ = s.Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{})

	if err := s.Start(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Start() on failed session error = %v, want ErrNotInitialized", err)
	}
}

// TestStart_ReaderError leaves the session Ready and disarmed
func TestStart_ReaderError(t *testing.T) {
	src, reader := newFakeSource(gray10x10, irGroup("a"))
	reader.startErr = errFake
	s := newTestSession(src, testFilter)
	if _, err := s.Init(context.Background(), SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := s.Start(context.Background()); !errors.Is(err, errFake) {
		t.Fatalf("Start() error = %v, want wrapped errFake", err)
	}
	reader.emit(frameOf(100, 255))
	if got := s.Counters().Snapshot().Frames; got != 0 {
		t.Errorf("frames = %d after failed start, want 0", got)
	}
}

// TestStop_WakesParkedConsumer is the anti-deadlock guarantee.
//
// Scenario:
//  1. Consumer parks in WaitAndTake on a running session
//  2. Stop is called from another goroutine
//  3. Consumer must return the stopped signal within bounded time
func TestStop_WakesParkedConsumer(t *testing.T) {
	src, _ := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, testFilter)
	ctx := context.Background()
	if _, err := s.Init(ctx, SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	result := make(chan bool, 1)
	go func() {
		_, ok := s.Slot().WaitAndTake()
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond) // let the consumer park
	s.Stop()

	select {
	case ok := <-result:
		if ok {
			t.Error("WaitAndTake returned a frame, want stopped")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer still parked 1s after Stop")
	}
}

// TestStop_NotStarted wakes a consumer even if the session never ran
func TestStop_NotStarted(t *testing.T) {
	src, _ := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, testFilter)

	result := make(chan bool, 1)
	go func() {
		_, ok := s.Slot().WaitAndTake()
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case ok := <-result:
		if ok {
			t.Error("WaitAndTake returned a frame, want stopped")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer still parked after Stop")
	}
	if s.State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", s.State())
	}
}

// TestStop_BeforeInit verifies an early Stop does not poison a later run.
//
// Scenario:
//  1. Stop on an uninitialized session marks its slot stopped
//  2. Init and Start follow
//  3. A bright frame must still reach the consumer
func TestStop_BeforeInit(t *testing.T) {
	src, reader := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, testFilter)
	ctx := context.Background()

	s.Stop()

	if _, err := s.Init(ctx, SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	current := s.Slot()
	if current.Stopped() {
		t.Fatal("running session has a stopped slot")
	}

	reader.emit(frameOf(100, 200))

	got := make(chan *Frame, 1)
	go func() {
		frame, ok := current.WaitAndTake()
		if ok {
			got <- frame
		}
		close(got)
	}()

	select {
	case frame, ok := <-got:
		if !ok {
			t.Fatal("WaitAndTake returned stopped, want the published frame")
		}
		if len(frame.Data) != 100 || frame.Data[0] != 200 {
			t.Errorf("frame len %d first byte %d, want 100 bytes of 200", len(frame.Data), frame.Data[0])
		}
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}

	if st := current.Stats(); st.Published != 1 || st.Rejected != 0 {
		t.Errorf("slot stats = %+v, want 1 published, 0 rejected", st)
	}

	t.Log("✅ Stop before Init leaves the next run deliverable")
}

// TestStop_Idempotent verifies repeated Stop calls stop the reader once
func TestStop_Idempotent(t *testing.T) {
	src, reader := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, testFilter)
	ctx := context.Background()
	if _, err := s.Init(ctx, SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		s.Stop()
	}
	if _, stops, _ := reader.counts(); stops != 1 {
		t.Errorf("reader stopped %d times, want 1", stops)
	}
}

// TestOnFrameArrived_IgnoredWhenNotRunning verifies no accounting outside Running
func TestOnFrameArrived_IgnoredWhenNotRunning(t *testing.T) {
	src, reader := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, testFilter)
	ctx := context.Background()
	if _, err := s.Init(ctx, SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	reader.emit(frameOf(100, 255)) // Ready
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	reader.emit(frameOf(100, 255)) // Running
	s.Stop()
	reader.emit(frameOf(100, 255)) // Stopped

	if got := s.Counters().Snapshot().Frames; got != 1 {
		t.Errorf("frames = %d, want 1 (only the Running arrival)", got)
	}
}

// TestClose_ReleasesResources verifies Close releases the reader and the
// device session and that the session cannot be restarted.
func TestClose_ReleasesResources(t *testing.T) {
	src, reader := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, testFilter)
	ctx := context.Background()
	if _, err := s.Init(ctx, SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, _, closed := reader.counts(); !closed {
		t.Error("reader not closed")
	}
	if !src.session.closed.Load() {
		t.Error("session not closed")
	}
	if err := s.Start(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Start() after Close error = %v, want ErrNotInitialized", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// TestCounters_ConsistentUnderConcurrentStop races many producers against Stop.
//
// Properties checked after quiescence:
//   - frame == black + skipped + good
//   - nothing is left in the slot after Stop
//   - no arrival is accounted after Stop returns
func TestCounters_ConsistentUnderConcurrentStop(t *testing.T) {
	src, reader := newFakeSource(gray10x10, irGroup("a"))
	s := newTestSession(src, testFilter)
	ctx := context.Background()
	if _, err := s.Init(ctx, SourceInfrared, StreamVideoRecord, Selection{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	slot := s.Slot()
	var consumed atomic.Uint64
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			if _, ok := slot.WaitAndTake(); !ok {
				return
			}
			consumed.Add(1)
		}
	}()

	events := []FrameEvent{
		frameOf(100, 255),
		frameOf(100, 0),
		fakeEvent{ok: false},
		frameOf(40, 200),
	}

	var wg sync.WaitGroup
	stopProducers := make(chan struct{})
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stopProducers:
					return
				default:
				}
				reader.emit(events[(p+i)%len(events)])
			}
		}(p)
	}

	time.Sleep(30 * time.Millisecond)
	s.Stop()
	afterStop := s.Counters().Snapshot()

	close(stopProducers)
	wg.Wait()

	select {
	case <-consumerDone:
	case <-time.After(time.Second):
		t.Fatal("consumer did not exit after Stop")
	}

	snap := s.Counters().Snapshot()
	if snap != afterStop {
		t.Errorf("counters moved after Stop: %+v → %+v", afterStop, snap)
	}
	if snap.Frames != snap.Black+snap.Skipped+snap.Good {
		t.Errorf("frames %d != black %d + skipped %d + good %d",
			snap.Frames, snap.Black, snap.Skipped, snap.Good)
	}
	if snap.Frames == 0 {
		t.Fatal("no frames processed")
	}
	if slot.Pending() {
		t.Error("frame pending in slot after Stop")
	}
	if consumed.Load() > snap.Good {
		t.Errorf("consumed %d > good %d", consumed.Load(), snap.Good)
	}

	t.Logf("✅ %d frames (good=%d black=%d skipped=%d), consumed=%d",
		snap.Frames, snap.Good, snap.Black, snap.Skipped, consumed.Load())
}
