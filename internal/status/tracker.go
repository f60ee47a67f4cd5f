// Package status holds the observable "what is happening now" state: status
// text, progress, the operation timer and the active progress estimator.
package status

import (
	"context"
	"math"
	"sync"
	"time"

	"whisperdesk/internal/logger"
	"whisperdesk/internal/progress"
)

// MaxEstimatedSeconds caps estimates handed to the progress estimator.
const MaxEstimatedSeconds = 7 * 24 * 3600.0

// DefaultStopWait bounds how long StopTimer waits for an estimator to exit.
const DefaultStopWait = 500 * time.Millisecond

// State is an immutable snapshot of the tracker.
type State struct {
	Seq        uint64
	Message    string
	Fraction   float64
	Percent    int
	TimeInfo   string
	Remaining  *float64
	Processing bool
}

// Formatter renders remaining seconds as display text.
type Formatter func(remaining float64) string

// Tracker is safe for concurrent use. Every mutation happens under one mutex
// and is broadcast to subscribers in mutation order.
type Tracker struct {
	mu           sync.Mutex
	state        State
	timerStart   time.Time
	timerRunning bool
	sessionID    uint64
	active       *progress.Estimator
	subs         map[int]chan State
	nextSub      int

	// serializes estimator start/stop
	sessionMu sync.Mutex

	now      func() time.Time
	stopWait time.Duration
	interval time.Duration
	log      logger.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithStopWait sets the bounded wait used when stopping an estimator.
func WithStopWait(d time.Duration) Option {
	return func(t *Tracker) { t.stopWait = d }
}

// WithTickInterval sets the estimator tick period.
func WithTickInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithLogger sets the tracker logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// NewTracker returns an idle tracker. Its timer baseline is the construction
// time.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		subs:     make(map[int]chan State),
		now:      time.Now,
		stopWait: DefaultStopWait,
		interval: progress.DefaultInterval,
		log:      logger.Nop(),
	}
	for _, o := range opts {
		o(t)
	}
	t.timerStart = t.now()
	return t
}

// UpdateStatus sets the status text.
func (t *Tracker) UpdateStatus(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Message = message
	t.publishLocked()
}

// UpdateProgress sets the fraction, clamped to [0,1], and its annotation.
func (t *Tracker) UpdateProgress(fraction float64, timeInfo string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setProgressLocked(fraction, timeInfo, nil)
	t.publishLocked()
}

func (t *Tracker) setProgressLocked(fraction float64, timeInfo string, remaining *float64) {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	t.state.Fraction = fraction
	t.state.Percent = int(math.Round(fraction * 100))
	t.state.TimeInfo = timeInfo
	t.state.Remaining = remaining
}

// StartTimer records the start time and marks the tracker as processing.
// A running timer is overwritten.
func (t *Tracker) StartTimer() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTimerLocked()
}

func (t *Tracker) startTimerLocked() time.Time {
	t.timerStart = t.now()
	t.timerRunning = true
	if !t.state.Processing {
		t.state.Processing = true
		t.publishLocked()
	}
	return t.timerStart
}

// Begin atomically claims the processing flag and starts the timer. It
// returns false when an operation is already in progress.
func (t *Tracker) Begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Processing {
		return false
	}
	t.startTimerLocked()
	return true
}

// StopTimer clears the processing flag, stops any estimator session and
// returns the seconds elapsed since the last StartTimer (or construction).
func (t *Tracker) StopTimer() float64 {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()

	t.mu.Lock()
	elapsed := t.now().Sub(t.timerStart).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	t.timerRunning = false
	t.state.Processing = false
	est := t.detachLocked()
	t.publishLocked()
	t.mu.Unlock()

	t.stopEstimator(est)
	return elapsed
}

// StartProgressUpdates stops any active session and starts a new estimator
// interpolating from start to end over estimatedSeconds. format renders the
// remaining time; ticks without a remaining time carry empty text.
func (t *Tracker) StartProgressUpdates(start, end, estimatedSeconds float64, format Formatter) {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()

	t.mu.Lock()
	old := t.detachLocked()
	t.mu.Unlock()
	t.stopEstimator(old)

	if format == nil {
		format = RemainingText
	}

	t.mu.Lock()
	t.sessionID++
	id := t.sessionID
	t.mu.Unlock()

	est := progress.Start(progress.Session{
		StartFraction: start,
		EndFraction:   end,
		Estimated:     estimateDuration(estimatedSeconds),
		Interval:      t.interval,
	}, func(tk progress.Tick) {
		t.applyTick(id, tk, format)
	})

	t.mu.Lock()
	t.active = est
	t.mu.Unlock()
	t.log.Debug(context.Background(), "progress session %d: %.2f -> %.2f over %.1fs", id, start, end, estimatedSeconds)
}

// estimateDuration converts seconds to a Duration. NaN and non-positive
// values select fallback creep; large values are capped.
func estimateDuration(seconds float64) time.Duration {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	if seconds > MaxEstimatedSeconds {
		seconds = MaxEstimatedSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

// StopProgressUpdates stops the active session, if any.
func (t *Tracker) StopProgressUpdates() {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()

	t.mu.Lock()
	est := t.detachLocked()
	t.mu.Unlock()
	t.stopEstimator(est)
}

// applyTick drops ticks from sessions that are no longer active.
func (t *Tracker) applyTick(id uint64, tk progress.Tick, format Formatter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id != t.sessionID {
		return
	}
	var (
		text      string
		remaining *float64
	)
	if tk.HasRemaining {
		r := tk.Remaining
		remaining = &r
		text = format(r)
	}
	t.setProgressLocked(tk.Progress, text, remaining)
	t.publishLocked()
}

// detachLocked invalidates the active session so its ticks are discarded.
func (t *Tracker) detachLocked() *progress.Estimator {
	t.sessionID++
	est := t.active
	t.active = nil
	return est
}

func (t *Tracker) stopEstimator(est *progress.Estimator) {
	if est == nil {
		return
	}
	est.Stop()
	if !est.Wait(t.stopWait) {
		t.log.Warn(context.Background(), "progress estimator still running after %s", t.stopWait)
	}
}

// Processing reports whether an operation is in progress.
func (t *Tracker) Processing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Processing
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reset stops any session and returns to an idle state showing message.
func (t *Tracker) Reset(message string) {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()

	t.mu.Lock()
	est := t.detachLocked()
	t.timerRunning = false
	t.resetLocked(message)
	t.mu.Unlock()

	t.stopEstimator(est)
}

// ResetIfIdle resets status and progress unless an operation is in progress.
// It reports whether the reset happened.
func (t *Tracker) ResetIfIdle(message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Processing || t.active != nil {
		return false
	}
	t.resetLocked(message)
	return true
}

func (t *Tracker) resetLocked(message string) {
	t.state.Message = message
	t.state.Processing = false
	t.setProgressLocked(0, "", nil)
	t.publishLocked()
}

// Subscribe returns a channel that always holds the latest state. Slow
// readers skip intermediate snapshots. cancel closes the channel.
func (t *Tracker) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	ch <- t.state
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			close(ch)
			t.mu.Unlock()
		})
	}
	return ch, cancel
}

func (t *Tracker) publishLocked() {
	t.state.Seq++
	s := t.state
	for _, ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// TimerRunning reports whether StartTimer was called without a matching
// StopTimer.
func (t *Tracker) TimerRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timerRunning
}
