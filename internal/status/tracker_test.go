package status

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestUpdateProgressClampsAndRounds(t *testing.T) {
	tests := []struct {
		in          float64
		wantFrac    float64
		wantPercent int
	}{
		{0.5, 0.5, 50},
		{0.555, 0.555, 56},
		{-0.2, 0, 0},
		{1.7, 1, 100},
		{0.004, 0.004, 0},
	}
	tr := NewTracker()
	for _, tt := range tests {
		tr.UpdateProgress(tt.in, "info")
		s := tr.Snapshot()
		if s.Fraction != tt.wantFrac || s.Percent != tt.wantPercent {
			t.Errorf("UpdateProgress(%v) = %v/%d, want %v/%d", tt.in, s.Fraction, s.Percent, tt.wantFrac, tt.wantPercent)
		}
		if s.TimeInfo != "info" || s.Remaining != nil {
			t.Errorf("UpdateProgress(%v) time info = %q remaining = %v", tt.in, s.TimeInfo, s.Remaining)
		}
	}
}

func TestStopTimerWithoutStart(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	tr := NewTracker(WithClock(clock.Now))
	clock.Advance(1500 * time.Millisecond)

	if got := tr.StopTimer(); got != 1.5 {
		t.Fatalf("StopTimer() = %v, want 1.5 from construction baseline", got)
	}
}

func TestStopTimerNeverNegative(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	tr := NewTracker(WithClock(clock.Now))
	tr.StartTimer()
	clock.Advance(-time.Second)

	if got := tr.StopTimer(); got != 0 {
		t.Fatalf("StopTimer() = %v, want 0", got)
	}
}

func TestTimerAndProcessing(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tr := NewTracker(WithClock(clock.Now))

	if tr.Processing() || tr.TimerRunning() {
		t.Fatal("new tracker should be idle")
	}
	tr.StartTimer()
	if !tr.Processing() || !tr.TimerRunning() {
		t.Fatal("expected processing after StartTimer")
	}
	clock.Advance(2 * time.Second)
	tr.StartTimer() // overwrites, no nesting
	clock.Advance(time.Second)

	if got := tr.StopTimer(); got != 1 {
		t.Errorf("StopTimer() = %v, want 1", got)
	}
	if tr.Processing() || tr.TimerRunning() {
		t.Error("expected idle after StopTimer")
	}
}

func TestBegin(t *testing.T) {
	tr := NewTracker()
	if !tr.Begin() {
		t.Fatal("Begin() on idle tracker = false")
	}
	if tr.Begin() {
		t.Fatal("second Begin() = true while processing")
	}
	tr.StopTimer()
	if !tr.Begin() {
		t.Fatal("Begin() after StopTimer = false")
	}
}

func TestBeginIsAtomic(t *testing.T) {
	tr := NewTracker()
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Begin() {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Fatalf("Begin() succeeded %d times, want 1", won)
	}
}

func TestStartProgressUpdatesTicks(t *testing.T) {
	tr := NewTracker(WithTickInterval(2 * time.Millisecond))
	tr.StartProgressUpdates(0.3, 0.9, 0.1, func(r float64) string { return "left" })
	defer tr.StopProgressUpdates()

	waitFor(t, func() bool { return tr.Snapshot().Fraction >= 0.9 })
	s := tr.Snapshot()
	if s.Fraction != 0.9 || s.Percent != 90 {
		t.Errorf("final = %v/%d, want 0.9/90", s.Fraction, s.Percent)
	}
	if s.TimeInfo != "" || s.Remaining != nil {
		t.Errorf("end tick should carry no remaining text, got %q", s.TimeInfo)
	}
}

func TestStartProgressUpdatesRemainingText(t *testing.T) {
	tr := NewTracker(WithTickInterval(5 * time.Millisecond))
	tr.StartProgressUpdates(0.3, 0.9, 3600, nil)
	defer tr.StopProgressUpdates()

	waitFor(t, func() bool { return tr.Snapshot().Remaining != nil })
	s := tr.Snapshot()
	if !strings.HasPrefix(s.TimeInfo, "Remaining: ~") {
		t.Errorf("TimeInfo = %q", s.TimeInfo)
	}
	if *s.Remaining <= 0 || *s.Remaining > 3600 {
		t.Errorf("Remaining = %v", *s.Remaining)
	}
}

func TestStopTimerSilencesEstimator(t *testing.T) {
	tr := NewTracker(WithTickInterval(time.Millisecond))
	tr.Begin()
	tr.StartProgressUpdates(0.3, 0.9, 3600, nil)
	waitFor(t, func() bool { return tr.Snapshot().Fraction >= 0.3 })

	tr.StopTimer()
	tr.UpdateStatus("done")
	tr.UpdateProgress(1.0, "final")

	time.Sleep(20 * time.Millisecond)
	s := tr.Snapshot()
	if s.Fraction != 1.0 || s.TimeInfo != "final" || s.Message != "done" {
		t.Fatalf("late tick overwrote final state: %+v", s)
	}
	if s.Processing {
		t.Error("processing still set")
	}
}

func TestNewSessionReplacesOld(t *testing.T) {
	tr := NewTracker(WithTickInterval(time.Millisecond))
	tr.StartProgressUpdates(0.0, 0.2, 3600, func(float64) string { return "first" })
	tr.StartProgressUpdates(0.5, 0.6, 3600, func(float64) string { return "second" })
	defer tr.StopProgressUpdates()

	waitFor(t, func() bool { return tr.Snapshot().TimeInfo == "second" })
	time.Sleep(10 * time.Millisecond)
	s := tr.Snapshot()
	if s.Fraction < 0.5 || s.TimeInfo != "second" {
		t.Fatalf("old session still ticking: %+v", s)
	}
}

func TestResetIfIdle(t *testing.T) {
	tr := NewTracker()
	tr.Begin()
	tr.UpdateProgress(1, "Loaded in 1.0s")
	if tr.ResetIfIdle("Ready") {
		t.Fatal("reset while processing")
	}

	tr.StopTimer()
	if !tr.ResetIfIdle("Ready") {
		t.Fatal("reset refused while idle")
	}
	s := tr.Snapshot()
	if s.Message != "Ready" || s.Fraction != 0 || s.TimeInfo != "" {
		t.Fatalf("state after reset = %+v", s)
	}
}

func TestReset(t *testing.T) {
	tr := NewTracker(WithTickInterval(time.Millisecond))
	tr.Begin()
	tr.StartProgressUpdates(0.3, 0.9, 3600, nil)

	tr.Reset("Ready")
	time.Sleep(10 * time.Millisecond)
	s := tr.Snapshot()
	if s.Processing || s.Fraction != 0 || s.Message != "Ready" {
		t.Fatalf("state after Reset = %+v", s)
	}
}

func TestSubscribeDeliversLatest(t *testing.T) {
	tr := NewTracker()
	ch, cancel := tr.Subscribe()

	first := <-ch
	if first.Message != "" {
		t.Fatalf("initial snapshot = %+v", first)
	}

	tr.UpdateStatus("a")
	tr.UpdateStatus("b")
	tr.UpdateStatus("c")

	got := <-ch
	if got.Message != "c" {
		t.Fatalf("latest = %q, want c", got.Message)
	}
	select {
	case s := <-ch:
		t.Fatalf("unexpected extra snapshot %+v", s)
	default:
	}

	tr.UpdateStatus("d")
	if s := <-ch; s.Seq <= got.Seq {
		t.Errorf("seq did not advance: %d -> %d", got.Seq, s.Seq)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel open after cancel")
	}
	tr.UpdateStatus("after cancel") // must not panic
}

func TestEstimateDuration(t *testing.T) {
	max := time.Duration(MaxEstimatedSeconds * float64(time.Second))
	tests := []struct {
		name string
		in   float64
		want time.Duration
	}{
		{"regular", 1.5, 1500 * time.Millisecond},
		{"zero", 0, 0},
		{"negative", -3, 0},
		{"nan", math.NaN(), 0},
		{"huge", 1e300, max},
		{"infinite", math.Inf(1), max},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimateDuration(tt.in); got != tt.want {
				t.Errorf("estimateDuration(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStartProgressUpdatesHugeEstimateInterpolates(t *testing.T) {
	tr := NewTracker(WithTickInterval(time.Millisecond))
	tr.StartProgressUpdates(0.3, 0.9, math.Inf(1), nil)
	defer tr.StopProgressUpdates()

	// creep would pass 0.3 within a few ticks; interpolation over a week does not
	time.Sleep(30 * time.Millisecond)
	if got := tr.Snapshot().Fraction; got > 0.31 {
		t.Errorf("fraction = %v, want near 0.3", got)
	}
}
