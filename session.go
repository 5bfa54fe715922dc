package hellocamera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CyberPuffer/HelloCamera/internal/slot"
)

// FrameSlot is the single-slot, latest-wins handoff between the arrival
// handler and the delivery loop.
type FrameSlot = slot.Slot

// Frame is one accepted frame travelling through a FrameSlot
type Frame = slot.Frame

// SessionConfig configures a CaptureSession
type SessionConfig struct {
	Filter   FilterConfig
	Settings SessionSettings
	Logger   *slog.Logger
}

// CaptureSession owns the init/start/stop lifecycle against a Source and
// exposes OnFrameArrived as the entry point for the device binding.
//
// Concurrency:
//   - Lifecycle calls (Init, Start, Stop, Close) are serialized by mu
//   - OnFrameArrived may run on any goroutine, concurrently with Stop
//   - Arrivals hold gate for reading; Stop clears running and then takes
//     gate for writing, so once it returns no handler is in flight and none
//     will publish again
//
// Counters and the FrameSlot are per session. Nothing is process-wide.
type CaptureSession struct {
	id     string
	source Source
	cfg    SessionConfig
	logger *slog.Logger

	mu      sync.Mutex
	state   atomic.Int32
	session Session
	reader  Reader
	group   SourceGroup
	info    SourceInfo
	format  DeviceFormat
	started time.Time

	gate    sync.RWMutex
	running atomic.Bool
	slot    *FrameSlot // swapped under gate on restart
	handler arrivalHandler

	counters Counters
}

// NewCaptureSession creates an uninitialized session over source
func NewCaptureSession(source Source, cfg SessionConfig) *CaptureSession {
	id := uuid.New().String()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	s := &CaptureSession{
		id:     id,
		source: source,
		cfg:    cfg,
		logger: logger,
		slot:   slot.New(),
	}
	s.handler = arrivalHandler{
		filter:   cfg.Filter,
		counters: &s.counters,
		logger:   logger,
	}
	return s
}

// Init selects a source, opens a reader on it and negotiates the format.
//
// Transitions Uninitialized → Initializing → Ready. Any failure moves the
// session to Failed and releases everything acquired so far.
func (s *CaptureSession) Init(ctx context.Context, kind SourceKind, streamType StreamType, sel Selection) (DeviceFormat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateUninitialized {
		return DeviceFormat{}, fmt.Errorf("hellocamera: init called in state %s", st)
	}
	s.setState(StateInitializing)

	s.logger.Info("capture: initializing",
		"kind", kind.String(),
		"stream_type", streamType.String(),
		"selection", sel.String(),
	)

	format, err := s.init(ctx, kind, streamType, sel)
	if err != nil {
		if rerr := s.release(); rerr != nil {
			s.logger.Warn("capture: release after failed init", "error", rerr)
		}
		s.setState(StateFailed)
		s.logger.Error("capture: init failed", "error", err)
		return DeviceFormat{}, err
	}

	s.setState(StateReady)
	s.logger.Info("capture: ready",
		"group", s.group.DisplayName,
		"source_id", s.info.ID,
		"format", format.String(),
	)
	return format, nil
}

func (s *CaptureSession) init(ctx context.Context, kind SourceKind, streamType StreamType, sel Selection) (DeviceFormat, error) {
	groups, err := s.source.Enumerate(ctx)
	if err != nil {
		return DeviceFormat{}, fmt.Errorf("hellocamera: enumerate sources: %w", err)
	}

	group, err := selectGroup(groups, kind, sel)
	if err != nil {
		return DeviceFormat{}, err
	}
	info, err := selectSource(group, kind, streamType)
	if err != nil {
		return DeviceFormat{}, err
	}
	s.group, s.info = group, info

	sess, err := s.source.Initialize(ctx, group, s.cfg.Settings)
	if err != nil {
		return DeviceFormat{}, fmt.Errorf("hellocamera: initialize %q: %w", group.DisplayName, err)
	}
	s.session = sess

	reader, err := sess.CreateReader(ctx, info.ID)
	if err != nil {
		return DeviceFormat{}, fmt.Errorf("hellocamera: create reader for %q: %w", info.ID, err)
	}
	s.reader = reader

	format, err := reader.Format()
	if err != nil {
		return DeviceFormat{}, fmt.Errorf("%w: %v", ErrFormatUnavailable, err)
	}
	if format.Width == 0 || format.Height == 0 || format.PixelKind.BitsPerPixel() == 0 {
		return DeviceFormat{}, fmt.Errorf("%w: reader reported %s", ErrFormatUnavailable, format)
	}

	if err := validateFilter(s.cfg.Filter, format); err != nil {
		return DeviceFormat{}, err
	}
	if _, err := format.BufferSize(); err != nil {
		// Not fatal: every frame will be dropped and counted as corrupt.
		s.logger.Error("capture: negotiated format is not byte aligned", "error", err)
	}

	s.format = format
	s.handler.format = format
	reader.SetFrameArrivedHandler(FrameArrivedFunc(s.OnFrameArrived))
	return format, nil
}

// selectGroup filters groups to those exposing kind and applies sel.
func selectGroup(groups []SourceGroup, kind SourceKind, sel Selection) (SourceGroup, error) {
	var matches []SourceGroup
	for _, g := range groups {
		if g.HasKind(kind) {
			matches = append(matches, g)
		}
	}

	if len(matches) == 0 {
		return SourceGroup{}, fmt.Errorf("%w: no group exposes a %s source (%d enumerated)",
			ErrNoDeviceFound, kind, len(groups))
	}

	switch sel.Mode {
	case SelectIndex:
		if sel.Index < 0 || sel.Index >= len(matches) {
			return SourceGroup{}, fmt.Errorf("%w: index %d, %d matching groups",
				ErrInvalidSelection, sel.Index, len(matches))
		}
		return matches[sel.Index], nil
	case SelectFirst:
		return matches[0], nil
	default:
		if len(matches) > 1 {
			return SourceGroup{}, fmt.Errorf("%w: %d groups expose a %s source, select one by index",
				ErrAmbiguousSource, len(matches), kind)
		}
		return matches[0], nil
	}
}

// selectSource finds the single entry of group matching kind and streamType
func selectSource(group SourceGroup, kind SourceKind, streamType StreamType) (SourceInfo, error) {
	var found []SourceInfo
	for _, info := range group.Sources {
		if info.Kind == kind && info.StreamType == streamType {
			found = append(found, info)
		}
	}

	switch len(found) {
	case 0:
		return SourceInfo{}, fmt.Errorf("%w: %q has no %s/%s source",
			ErrNoSourceFound, group.DisplayName, kind, streamType)
	case 1:
		return found[0], nil
	default:
		return SourceInfo{}, fmt.Errorf("%w: %q has %d %s/%s sources",
			ErrAmbiguousSource, group.DisplayName, len(found), kind, streamType)
	}
}

// Start arms frame delivery from Ready or Stopped. Idempotent while Running.
//
// A slot already marked stopped (restart, or Stop before Init) is replaced
// by a fresh FrameSlot; callers must fetch it again through Slot.
func (s *CaptureSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.State()
	switch {
	case st == StateRunning:
		return nil
	case (st == StateReady || st == StateStopped) && s.reader != nil:
	default:
		return fmt.Errorf("%w (state %s)", ErrNotInitialized, st)
	}

	// Stop marks the slot in every state, including before Init
	s.gate.Lock()
	if s.slot.Stopped() {
		s.slot = slot.New()
	}
	s.gate.Unlock()

	// Armed before the reader so the first frames are not discarded
	s.running.Store(true)
	if err := s.reader.Start(ctx); err != nil {
		s.running.Store(false)
		return fmt.Errorf("hellocamera: start reader: %w", err)
	}

	s.started = time.Now()
	s.setState(StateRunning)
	s.logger.Info("capture: started", "format", s.format.String())
	return nil
}

// Stop halts frame delivery. Idempotent and infallible.
//
// Sequence:
//  1. Clear running so new arrivals return immediately
//  2. Take gate for writing to wait out in-flight arrivals
//  3. Mark the slot stopped, waking any consumer
//  4. Stop the reader
//
// The slot is marked stopped in every state, so a consumer parked on a
// session that never started still returns.
func (s *CaptureSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.State()
	if st == StateRunning {
		s.setState(StateStopping)
	}

	s.running.Store(false)
	s.gate.Lock()
	current := s.slot
	s.gate.Unlock()
	current.MarkStopped()

	switch st {
	case StateRunning:
		if err := s.reader.Stop(); err != nil {
			s.logger.Warn("capture: reader stop failed", "error", err)
		}
		s.setState(StateStopped)
		snap := s.counters.Snapshot()
		s.logger.Info("capture: stopped",
			"uptime", time.Since(s.started).Round(time.Millisecond),
			"frames", snap.Frames,
			"good", snap.Good,
			"black", snap.Black,
			"skipped", snap.Skipped,
		)
	case StateReady:
		s.setState(StateStopped)
	}
}

// Close stops the session and releases the reader and the device session.
// The session cannot be started again.
func (s *CaptureSession) Close() error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release()
}

// release closes reader and session; caller holds mu
func (s *CaptureSession) release() error {
	var errs []error
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader: %w", err))
		}
		s.reader = nil
	}
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
		s.session = nil
	}
	return errors.Join(errs...)
}

// OnFrameArrived is the per-frame entry point for the device binding.
//
// A no-op unless the session is running; the check happens before any
// counter is touched.
func (s *CaptureSession) OnFrameArrived(ev FrameEvent) {
	if !s.running.Load() {
		return
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	// Stop may have cleared running while we waited for the gate
	if !s.running.Load() {
		return
	}
	s.handler.handle(ev, s.slot)
}

// ID returns the session identifier attached to every log line
func (s *CaptureSession) ID() string { return s.id }

// State returns the current lifecycle state
func (s *CaptureSession) State() State { return State(s.state.Load()) }

func (s *CaptureSession) setState(st State) { s.state.Store(int32(st)) }

// Format returns the format negotiated by Init
func (s *CaptureSession) Format() DeviceFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Source returns the group and source entry chosen by Init
func (s *CaptureSession) Source() (SourceGroup, SourceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group, s.info
}

// Slot returns the FrameSlot of the current run
func (s *CaptureSession) Slot() *FrameSlot {
	s.gate.RLock()
	defer s.gate.RUnlock()
	return s.slot
}

// Counters returns the session's frame counters
func (s *CaptureSession) Counters() *Counters { return &s.counters }
