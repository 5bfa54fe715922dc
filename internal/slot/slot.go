// Package slot implements the single-slot handoff between the capture
// callback and the delivery loop.
//
// Semantics:
//   - Publish never blocks and overwrites any unconsumed frame (latest wins)
//   - WaitAndTake blocks on a sync.Cond until a frame or a stop arrives
//   - MarkStopped wakes every waiter unconditionally
//
// A slow consumer therefore observes frame loss instead of growing latency.
package slot

import (
	"sync"
	"time"
)

// Frame is one accepted frame owned by whoever currently holds it.
//
// Ownership moves publisher → Slot → consumer. The publisher must not touch
// Data after Publish.
type Frame struct {
	// Data is a freshly allocated copy of the pixel payload
	Data []byte

	// Seq is the arrival sequence number (value of the frame counter)
	Seq uint64

	// Timestamp is when the frame was accepted by the arrival handler
	Timestamp time.Time
}

// Stats is a snapshot of slot activity.
type Stats struct {
	// Published counts frames stored by Publish
	Published uint64
	// Overwritten counts frames superseded before anyone took them
	Overwritten uint64
	// Taken counts frames returned by WaitAndTake
	Taken uint64
	// Rejected counts publishes that arrived after MarkStopped
	Rejected uint64
}

// Slot is a capacity-one mailbox with overwrite-on-publish.
type Slot struct {
	mu      sync.Mutex // Protects all fields
	cond    *sync.Cond // Signals the consumer
	frame   *Frame     // nil = empty
	stopped bool

	stats Stats
}

// New returns an empty, running slot.
func New() *Slot {
	s := &Slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish stores frame, replacing any unconsumed one, and wakes one waiter.
//
// Returns false if the slot is stopped; the frame is then discarded.
// Never blocks beyond the internal mutex.
func (s *Slot) Publish(frame *Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.stats.Rejected++
		return false
	}

	if s.frame != nil {
		s.stats.Overwritten++
	}
	s.frame = frame
	s.stats.Published++

	s.cond.Signal()
	return true
}

// WaitAndTake blocks until a frame is available or the slot is stopped.
//
// Returns (frame, true) after consuming the pending frame, or (nil, false)
// once stopped. A stop always wins over a pending frame.
func (s *Slot) WaitAndTake() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.frame == nil && !s.stopped {
		s.cond.Wait()
	}

	if s.stopped {
		return nil, false
	}

	frame := s.frame
	s.frame = nil
	s.stats.Taken++
	return frame, true
}

// MarkStopped sets the stopped flag and wakes all blocked waiters.
// Idempotent.
func (s *Slot) MarkStopped() {
	s.mu.Lock()
	s.stopped = true
	s.frame = nil
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Stopped reports whether MarkStopped has been called.
func (s *Slot) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Pending reports whether an unconsumed frame is stored.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame != nil
}

// Stats returns a consistent snapshot of slot counters.
func (s *Slot) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
