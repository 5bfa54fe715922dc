// Package pacing spaces frame submissions to a target rate.
package pacing

import (
	"context"
	"time"
)

// Pacer hands out send slots every 1/fps seconds.
//
// When the caller falls behind by more than one period the schedule resyncs
// to now instead of bursting to catch up. Not safe for concurrent use; one
// pacer per sink.
type Pacer struct {
	period time.Duration
	next   time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a pacer for fps frames per second. fps == 0 disables pacing.
func New(fps uint) *Pacer {
	var period time.Duration
	if fps > 0 {
		period = time.Second / time.Duration(fps)
	}
	return &Pacer{
		period: period,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Period returns the interval between send slots
func (p *Pacer) Period() time.Duration { return p.period }

// Wait blocks until the next send slot is due.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.period == 0 {
		return ctx.Err()
	}

	now := p.now()
	if p.next.IsZero() || now.Sub(p.next) > p.period {
		// First frame or fell behind: send now, schedule from here
		p.next = now.Add(p.period)
		return ctx.Err()
	}

	if wait := p.next.Sub(now); wait > 0 {
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
	p.next = p.next.Add(p.period)
	return nil
}

// Reset forgets the schedule; the next Wait returns immediately
func (p *Pacer) Reset() { p.next = time.Time{} }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
