// Package progress synthesizes a time-driven progress signal for operations
// that report nothing until they finish.
package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the tick period used when a Session leaves Interval unset.
const DefaultInterval = 100 * time.Millisecond

// CreepStep is the per-tick increment used when no duration estimate exists.
const CreepStep = 0.01

// Session describes one interpolation run from StartFraction to EndFraction.
type Session struct {
	StartFraction float64
	EndFraction   float64
	Estimated     time.Duration // <= 0 selects fallback creep
	Interval      time.Duration // 0 uses DefaultInterval
}

// Tick is one periodic update emitted by an Estimator.
type Tick struct {
	Progress     float64
	Remaining    float64 // seconds; meaningful only when HasRemaining
	HasRemaining bool
	Elapsed      time.Duration
}

// TickFunc receives ticks on the estimator goroutine.
type TickFunc func(Tick)

// Interpolate computes the tick for a given elapsed time. last is the
// previously emitted progress; the result never falls below it nor rises
// above EndFraction.
func Interpolate(s Session, elapsed time.Duration, last float64) Tick {
	t := Tick{Elapsed: elapsed}
	if s.Estimated > 0 {
		frac := elapsed.Seconds() / s.Estimated.Seconds()
		t.Progress = s.StartFraction + frac*(s.EndFraction-s.StartFraction)
		// Only strictly inside the window; the first and last ticks carry no text.
		if frac > 0 && frac < 1 {
			t.Remaining = s.Estimated.Seconds() - elapsed.Seconds()
			t.HasRemaining = true
		}
	} else {
		t.Progress = last + CreepStep
	}
	if t.Progress > s.EndFraction {
		t.Progress = s.EndFraction
	}
	if t.Progress < last {
		t.Progress = last
	}
	return t
}

// Estimator runs one Session on its own goroutine until the end fraction is
// reached or Stop is called.
type Estimator struct {
	session Session
	onTick  TickFunc
	now     func() time.Time

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		e.now = now
	}
}

// Start launches the ticking loop and returns immediately.
func Start(s Session, onTick TickFunc, opts ...Option) *Estimator {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.EndFraction < s.StartFraction {
		s.EndFraction = s.StartFraction
	}
	e := &Estimator{
		session: s,
		onTick:  onTick,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	e.running.Store(true)
	go e.loop()
	return e
}

func (e *Estimator) loop() {
	defer close(e.done)
	defer e.running.Store(false)

	started := e.now()
	last := e.session.StartFraction
	ticker := time.NewTicker(e.session.Interval)
	defer ticker.Stop()

	// The first tick is pinned to elapsed zero.
	elapsed := time.Duration(0)
	for {
		if !e.running.Load() {
			return
		}
		t := Interpolate(e.session, elapsed, last)
		last = t.Progress
		if e.onTick != nil {
			e.onTick(t)
		}
		if last >= e.session.EndFraction {
			return
		}
		select {
		case <-e.stop:
			return
		case <-ticker.C:
		}
		elapsed = e.now().Sub(started)
	}
}

// Stop asks the loop to exit. It does not wait; a tick already being
// computed may still be delivered. Safe to call more than once and from
// inside the tick callback.
func (e *Estimator) Stop() {
	e.running.Store(false)
	e.stopOnce.Do(func() { close(e.stop) })
}

// Wait blocks until the loop has exited or timeout elapses, reporting
// whether the loop exited.
func (e *Estimator) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-e.done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed once the loop has exited.
func (e *Estimator) Done() <-chan struct{} {
	return e.done
}

// Running reports whether the loop has neither finished nor been stopped.
func (e *Estimator) Running() bool {
	return e.running.Load()
}

// Session returns the parameters the estimator was started with.
func (e *Estimator) Session() Session {
	return e.session
}
